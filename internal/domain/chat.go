package domain

import (
	"encoding/json"
	"time"
)

type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatorID int64     `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON accepts both creator_id and created_by_id, since older
// server builds emit the latter.
func (c *Chat) UnmarshalJSON(data []byte) error {
	type plain Chat
	var wire struct {
		plain
		CreatedByID *int64 `json:"created_by_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = Chat(wire.plain)
	if c.CreatorID == 0 && wire.CreatedByID != nil {
		c.CreatorID = *wire.CreatedByID
	}
	return nil
}

type ChatParticipant struct {
	ChatID   int64     `json:"chat_id"`
	UserID   int64     `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}
