package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AnzeMiles69/pet-chat/internal/api"
	"github.com/AnzeMiles69/pet-chat/internal/domain"
	clog "github.com/AnzeMiles69/pet-chat/internal/log"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/AnzeMiles69/pet-chat/internal/session"
	"github.com/rs/zerolog"
)

type AuthService struct {
	client  *api.Client
	session *session.Store
	board   *notice.Board
	logger  zerolog.Logger
}

func NewAuthService(client *api.Client, sess *session.Store, board *notice.Board) *AuthService {
	return &AuthService{
		client:  client,
		session: sess,
		board:   board,
		logger:  clog.Component("auth"),
	}
}

type LoginInput struct {
	Username string
	Password string
}

// RegisterInput is the self-registration form. It has no role field: new
// accounts are always USER, and only AdminService.CreateUser may pick a role.
type RegisterInput struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) error {
	s.board.Dismiss(notice.AreaLogin)

	if domain.Blank(input.Username) || input.Password == "" {
		s.board.Show(notice.AreaLogin, notice.Error, domain.ErrCredentialsMissing.Error())
		return domain.ErrCredentialsMissing
	}

	if _, err := s.client.Login(ctx, input.Username, input.Password); err != nil {
		err = mapLoginError(err)
		s.logger.Error().Err(err).Str("username", input.Username).Msg("login failed")
		s.board.Show(notice.AreaLogin, notice.Error, err.Error())
		return err
	}

	s.logger.Info().Str("username", input.Username).Msg("logged in")
	return nil
}

func mapLoginError(err error) error {
	switch api.StatusOf(err) {
	case http.StatusUnauthorized:
		return ErrInvalidCredentials
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrMalformedInput, api.DetailOf(err))
	}
	return err
}

// Register validates the form locally and creates the account. It does not
// log the new user in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	s.board.Dismiss(notice.AreaRegister)

	if err := validateRegistration(input); err != nil {
		s.board.Show(notice.AreaRegister, notice.Error, err.Error())
		return nil, err
	}

	user, err := s.client.Register(ctx, api.RegisterRequest{
		Email:    input.Email,
		Username: input.Username,
		Password: input.Password,
	})
	if err != nil {
		err = mapRegisterError(err)
		s.logger.Error().Err(err).Str("username", input.Username).Msg("registration failed")
		s.board.Show(notice.AreaRegister, notice.Error, err.Error())
		return nil, err
	}

	s.logger.Info().Str("username", user.Username).Msg("registered")
	return user, nil
}

func validateRegistration(input RegisterInput) error {
	if domain.Blank(input.Username) {
		return domain.ErrUsernameRequired
	}
	if domain.Blank(input.Email) {
		return domain.ErrEmailRequired
	}
	return domain.ValidatePassword(input.Password, &input.ConfirmPassword)
}

func mapRegisterError(err error) error {
	detail := strings.ToLower(api.DetailOf(err))
	switch api.StatusOf(err) {
	case http.StatusBadRequest:
		switch {
		case strings.Contains(detail, "username"):
			return ErrUsernameTaken
		case strings.Contains(detail, "email"):
			return ErrEmailTaken
		}
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrMalformedInput, api.DetailOf(err))
	}
	return err
}

// Logout forgets the credential. There is no server-side session to end.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.session.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("logged out")
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context) (*domain.User, error) {
	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, api.ErrUnauthenticated) {
			s.logger.Error().Err(err).Msg("failed to fetch current user")
		}
		return nil, err
	}
	return user, nil
}
