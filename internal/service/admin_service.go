package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/api"
	"github.com/AnzeMiles69/pet-chat/internal/config"
	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/AnzeMiles69/pet-chat/internal/guard"
	clog "github.com/AnzeMiles69/pet-chat/internal/log"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/rs/zerolog"
)

// Confirmer asks the operator to approve a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Reloader re-synchronizes every cached view with the server after its data
// was replaced wholesale.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Saver stores a downloaded backup and returns where it went.
type Saver interface {
	Save(filename string, data []byte) (string, error)
}

// DirSaver writes backups into a local directory.
type DirSaver struct {
	Dir string
}

func (s DirSaver) Save(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}

const ResetPrompt = "This will permanently delete ALL users, chats and messages. Continue?"

// AccessDecision is the outcome of opening the admin console.
type AccessDecision struct {
	Allowed bool
	User    *domain.User
	// Reason is shown to a denied caller before the redirect.
	Reason        string
	RedirectTo    string
	RedirectAfter time.Duration
}

// AwaitRedirect blocks for RedirectAfter and returns where to go. It returns
// early with ctx's error when ctx ends first.
func (d *AccessDecision) AwaitRedirect(ctx context.Context) (string, error) {
	if d.Allowed {
		return "", nil
	}
	if d.RedirectAfter > 0 {
		if err := sleep(ctx, d.RedirectAfter); err != nil {
			return "", err
		}
	}
	return d.RedirectTo, nil
}

type AdminService struct {
	client   *api.Client
	board    *notice.Board
	saver    Saver
	reloader Reloader
	logger   zerolog.Logger

	denyDelay        time.Duration
	dialogCloseDelay time.Duration
	reloadDelay      time.Duration

	mu    sync.Mutex
	admin *domain.User
	users []domain.User
}

func NewAdminService(client *api.Client, board *notice.Board, cfg *config.Config) *AdminService {
	return &AdminService{
		client:           client,
		board:            board,
		saver:            DirSaver{Dir: cfg.BackupDir},
		logger:           clog.Component("admin"),
		denyDelay:        cfg.AdminDenyDelay,
		dialogCloseDelay: cfg.AdminDialogCloseDelay,
		reloadDelay:      cfg.ReloadDelay,
	}
}

func (s *AdminService) SetSaver(saver Saver) {
	s.saver = saver
}

func (s *AdminService) SetReloader(r Reloader) {
	s.reloader = r
}

// Authorize resolves the caller's identity and decides whether the console
// may open. A missing or rejected credential goes straight to login; any
// other failure is a denial with a delayed redirect to the chat list.
func (s *AdminService) Authorize(ctx context.Context) (*AccessDecision, error) {
	s.board.Dismiss(notice.AreaAdmin)

	user, err := s.client.CurrentUser(ctx)
	switch {
	case err == nil && user.IsAdmin():
		s.mu.Lock()
		s.admin = user
		s.mu.Unlock()
		return &AccessDecision{Allowed: true, User: user}, nil
	case err == nil:
		return s.deny(user, domain.ErrForbidden.Error()), nil
	case errors.Is(err, api.ErrUnauthenticated) || api.IsUnauthorized(err):
		return &AccessDecision{RedirectTo: guard.LoginPath}, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		s.logger.Error().Err(err).Msg("failed to resolve current user")
		return s.deny(nil, "access denied: could not verify your account"), nil
	}
}

func (s *AdminService) deny(user *domain.User, reason string) *AccessDecision {
	s.mu.Lock()
	s.admin = nil
	s.mu.Unlock()

	s.board.Show(notice.AreaAdmin, notice.Error, reason)
	return &AccessDecision{
		User:          user,
		Reason:        reason,
		RedirectTo:    guard.DefaultHome,
		RedirectAfter: s.denyDelay,
	}
}

func (s *AdminService) requireAdmin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admin.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

// ClearCache forgets the resolved admin and the user list.
func (s *AdminService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = nil
	s.users = nil
}

func (s *AdminService) Users() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.User(nil), s.users...)
}

func (s *AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}

	users, err := s.client.ListUsers(ctx)
	if err != nil {
		s.fail(notice.AreaAdmin, "failed to load users", err)
		return nil, err
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return append([]domain.User(nil), users...), nil
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// CreateUser creates an account with the chosen role. On success it shows a
// confirmation, dismisses it after the dialog delay and then calls onClose,
// and refreshes the user list.
func (s *AdminService) CreateUser(ctx context.Context, input CreateUserInput, onClose func()) (*domain.User, error) {
	s.board.Dismiss(notice.AreaCreateUser)

	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	if input.Role == "" {
		input.Role = domain.RoleUser
	}
	if err := validateCreateUser(input); err != nil {
		s.board.Show(notice.AreaCreateUser, notice.Error, err.Error())
		return nil, err
	}

	user, err := s.client.CreateUser(ctx, api.RegisterRequest{
		Email:    input.Email,
		Username: input.Username,
		Password: input.Password,
		Role:     input.Role,
	})
	if err != nil {
		err = mapRegisterError(err)
		s.fail(notice.AreaCreateUser, "failed to create user", err)
		return nil, err
	}

	s.logger.Info().Str("username", user.Username).Str("role", string(user.Role)).Msg("user created")
	n := s.board.Show(notice.AreaCreateUser, notice.Success, fmt.Sprintf("user %s created", user.Username))
	s.board.DismissAfter(n, s.dialogCloseDelay, onClose)

	if _, err := s.ListUsers(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to refresh users after create")
	}
	return user, nil
}

func validateCreateUser(input CreateUserInput) error {
	if domain.Blank(input.Username) {
		return domain.ErrUsernameRequired
	}
	if domain.Blank(input.Email) {
		return domain.ErrEmailRequired
	}
	if !input.Role.Valid() {
		return domain.ErrInvalidRole
	}
	return domain.ValidatePassword(input.Password, nil)
}

// CreateBackup downloads a full export and saves it. It returns the path
// the backup was written to.
func (s *AdminService) CreateBackup(ctx context.Context) (string, error) {
	if err := s.requireAdmin(); err != nil {
		return "", err
	}

	download, err := s.client.CreateBackup(ctx)
	if err != nil {
		s.fail(notice.AreaAdmin, "failed to create backup", err)
		return "", err
	}

	path, err := s.saver.Save(download.Filename, download.Data)
	if err != nil {
		s.fail(notice.AreaAdmin, "failed to save backup", err)
		return "", err
	}

	s.logger.Info().Str("path", path).Int("bytes", len(download.Data)).Msg("backup saved")
	s.board.Show(notice.AreaAdmin, notice.Success, "backup saved to "+path)
	return path, nil
}

// RestoreBackup uploads src as the new server state and then resyncs.
func (s *AdminService) RestoreBackup(ctx context.Context, filename string, src io.Reader) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}

	if err := s.client.RestoreBackup(ctx, filename, src); err != nil {
		s.fail(notice.AreaAdmin, "failed to restore backup", err)
		return err
	}

	s.logger.Info().Str("file", filename).Msg("backup restored")
	s.board.Show(notice.AreaAdmin, notice.Success, "backup restored, reloading")
	return s.reload(ctx)
}

// ResetDatabase wipes all server data once confirm approves. A declined or
// failed confirmation sends nothing.
func (s *AdminService) ResetDatabase(ctx context.Context, confirm Confirmer) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}

	ok, err := confirm.Confirm(ctx, ResetPrompt)
	if err != nil {
		return fmt.Errorf("confirm reset: %w", err)
	}
	if !ok {
		s.logger.Info().Msg("reset declined")
		return ErrNotConfirmed
	}

	if err := s.client.ResetDatabase(ctx); err != nil {
		s.fail(notice.AreaAdmin, "failed to reset database", err)
		return err
	}

	s.logger.Warn().Msg("database reset")
	s.board.Show(notice.AreaAdmin, notice.Success, "database reset, reloading")
	return s.reload(ctx)
}

// reload waits out the reload delay and resyncs. A resync failure is shown
// and logged; the operation that triggered it already succeeded.
func (s *AdminService) reload(ctx context.Context) error {
	if err := sleep(ctx, s.reloadDelay); err != nil {
		return err
	}
	if s.reloader == nil {
		return nil
	}
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.Error().Err(err).Msg("reload failed")
		s.board.Show(notice.AreaAdmin, notice.Warning, userMessage("reload failed", err))
	}
	return nil
}

func (s *AdminService) fail(area, what string, err error) {
	s.logger.Error().Err(err).Msg(what)
	s.board.Show(area, notice.Error, userMessage(what, err))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
