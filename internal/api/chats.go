package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
)

type CreateChatRequest struct {
	Name    string `json:"name"`
	IsGroup bool   `json:"is_group"`
}

// ListChats returns the caller's chats in server order.
func (c *Client) ListChats(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	r := request{op: "list chats", method: http.MethodGet, path: "/chats", listing: true}
	if err := c.sendJSON(ctx, r, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) CreateChat(ctx context.Context, in CreateChatRequest) (*domain.Chat, error) {
	r, err := c.jsonRequest("create chat", http.MethodPost, "/chats", in)
	if err != nil {
		return nil, err
	}

	var chat domain.Chat
	if err := c.sendJSON(ctx, r, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) AddParticipant(ctx context.Context, chatID, userID int64) error {
	r, err := c.jsonRequest("add participant", http.MethodPost,
		fmt.Sprintf("/chats/%d/participants", chatID),
		map[string]int64{"user_id": userID})
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, r, nil)
}
