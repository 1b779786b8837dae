package api

import (
	"context"
	"net/http"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
)

// ListUsers returns every account. The endpoint is not paginated.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	r := request{op: "list users", method: http.MethodGet, path: "/users", listing: true}
	if err := c.sendJSON(ctx, r, &users); err != nil {
		return nil, err
	}
	return users, nil
}
