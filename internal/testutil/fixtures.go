package testutil

import (
	"fmt"
	"testing"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/google/uuid"
)

// Seeded administrator account.
const (
	AdminUsername = "admin"
	AdminPassword = "adminpass123"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	username string
	email    string
	password string
	role     domain.Role
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		username: fmt.Sprintf("testuser_%s", suffix),
		email:    fmt.Sprintf("testuser_%s@example.com", suffix),
		password: "testpassword123",
		role:     domain.RoleUser,
	}
}

// WithUsername sets the username
func (b *UserBuilder) WithUsername(name string) *UserBuilder {
	b.username = name
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

func (b *UserBuilder) WithRole(role domain.Role) *UserBuilder {
	b.role = role
	return b
}

// Build creates the user in the fake API and returns it with the raw password
func (b *UserBuilder) Build(t *testing.T, f *FakeAPI) (*domain.User, string) {
	t.Helper()
	return f.AddUser(t, b.username, b.email, b.password, b.role), b.password
}

// ChatBuilder creates chats directly in the fake API
type ChatBuilder struct {
	name     string
	isGroup  bool
	creator  *domain.User
	members  []*domain.User
	messages []string
}

func NewChatBuilder(creator *domain.User) *ChatBuilder {
	return &ChatBuilder{
		name:    fmt.Sprintf("chat_%s", uuid.New().String()[:8]),
		isGroup: true,
		creator: creator,
	}
}

func (b *ChatBuilder) WithName(name string) *ChatBuilder {
	b.name = name
	return b
}

func (b *ChatBuilder) Direct() *ChatBuilder {
	b.isGroup = false
	return b
}

func (b *ChatBuilder) WithMembers(users ...*domain.User) *ChatBuilder {
	b.members = append(b.members, users...)
	return b
}

// WithMessages adds messages sent by the creator, in order.
func (b *ChatBuilder) WithMessages(contents ...string) *ChatBuilder {
	b.messages = append(b.messages, contents...)
	return b
}

func (b *ChatBuilder) Build(f *FakeAPI) *domain.Chat {
	ids := make([]int64, 0, len(b.members))
	for _, m := range b.members {
		ids = append(ids, m.ID)
	}
	chat := f.AddChat(b.name, b.isGroup, b.creator.ID, ids...)
	for _, content := range b.messages {
		f.AddMessage(chat.ID, b.creator.ID, content)
	}
	return chat
}
