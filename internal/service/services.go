package service

import (
	"context"
	"errors"

	"github.com/AnzeMiles69/pet-chat/internal/api"
	"github.com/AnzeMiles69/pet-chat/internal/config"
	"github.com/AnzeMiles69/pet-chat/internal/guard"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
)

type Services struct {
	Auth   *AuthService
	Chats  *ChatService
	Admin  *AdminService
	Guard  *guard.Guard
	Notice *notice.Board
}

func NewServices(client *api.Client, cfg *config.Config, board *notice.Board) *Services {
	sess := client.Session()
	s := &Services{
		Auth:   NewAuthService(client, sess, board),
		Chats:  NewChatService(client, board, cfg.ParticipantConcurrency),
		Admin:  NewAdminService(client, board, cfg),
		Guard:  guard.New(sess),
		Notice: board,
	}
	s.Admin.SetReloader(s)
	return s
}

// Reload drops every cached collection and re-fetches from the server, the
// way a full page reload would.
func (s *Services) Reload(ctx context.Context) error {
	s.Chats.Reset()
	s.Admin.ClearCache()

	if s.Guard.Enter(guard.DefaultHome).State != guard.Allowed {
		return nil
	}
	if err := s.Chats.LoadChats(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}
