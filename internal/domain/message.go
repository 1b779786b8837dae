package domain

import (
	"encoding/json"
	"time"
)

// Message is immutable once created.
type Message struct {
	ID             int64     `json:"id"`
	ChatID         int64     `json:"chat_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageSender struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// UnmarshalJSON flattens the embedded sender object the server returns.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var wire struct {
		plain
		Sender *messageSender `json:"sender"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Message(wire.plain)
	if wire.Sender != nil {
		if m.SenderID == 0 {
			m.SenderID = wire.Sender.ID
		}
		if m.SenderUsername == "" {
			m.SenderUsername = wire.Sender.Username
		}
	}
	return nil
}
