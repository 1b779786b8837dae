package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
)

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RegisterRequest struct {
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role,omitempty"`
}

// Login exchanges username and password for a bearer token and stores it in
// the session. The credential is written only after the server accepted it.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	r := request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		public:      true,
	}

	var result TokenResponse
	if err := c.sendJSON(ctx, r, &result); err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("login: response carried no access token")
	}

	if err := c.session.SetCredential(ctx, result.AccessToken); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return result.AccessToken, nil
}

// Register creates an account for an anonymous visitor. No credential is
// attached.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*domain.User, error) {
	return c.register(ctx, "register", in, true)
}

// CreateUser provisions an account through the registration endpoint using
// the caller's own credential, so the server attributes it to an admin.
func (c *Client) CreateUser(ctx context.Context, in RegisterRequest) (*domain.User, error) {
	return c.register(ctx, "create user", in, false)
}

func (c *Client) register(ctx context.Context, op string, in RegisterRequest, public bool) (*domain.User, error) {
	r, err := c.jsonRequest(op, http.MethodPost, "/auth/register", in)
	if err != nil {
		return nil, err
	}
	r.public = public

	var user domain.User
	if err := c.sendJSON(ctx, r, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	err := c.sendJSON(ctx, request{op: "current user", method: http.MethodGet, path: "/users/me"}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
