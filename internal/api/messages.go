package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
)

type SendMessageRequest struct {
	Content string `json:"content"`
	ChatID  int64  `json:"chat_id"`
}

// ListMessages returns a chat's messages in chronological order.
func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]domain.Message, error) {
	var messages []domain.Message
	r := request{
		op:      "list messages",
		method:  http.MethodGet,
		path:    fmt.Sprintf("/messages/chat/%d", chatID),
		listing: true,
	}
	if err := c.sendJSON(ctx, r, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, in SendMessageRequest) (*domain.Message, error) {
	r, err := c.jsonRequest("send message", http.MethodPost, "/messages", in)
	if err != nil {
		return nil, err
	}

	var msg domain.Message
	if err := c.sendJSON(ctx, r, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
