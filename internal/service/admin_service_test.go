package service_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/AnzeMiles69/pet-chat/internal/guard"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/AnzeMiles69/pet-chat/internal/service"
	"github.com/AnzeMiles69/pet-chat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminServices(t *testing.T) (*service.Services, *testutil.TestClient) {
	t.Helper()
	tc := testutil.NewTestClient(t)
	tc.LoginAdmin(t)
	svc := service.NewServices(tc.Client, tc.Config, notice.NewBoard())
	svc.Admin.SetSaver(service.DirSaver{Dir: t.TempDir()})
	return svc, tc
}

func authorizeAdmin(t *testing.T, svc *service.Services) {
	t.Helper()
	decision, err := svc.Admin.Authorize(context.Background())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestAdminService_Authorize(t *testing.T) {
	tests := []struct {
		name          string
		login         func(t *testing.T, tc *testutil.TestClient)
		wantAllowed   bool
		wantRedirect  string
		wantDelay     bool
		wantSignedOut bool
	}{
		{
			name:        "administrator",
			login:       func(t *testing.T, tc *testutil.TestClient) { tc.LoginAdmin(t) },
			wantAllowed: true,
		},
		{
			name: "regular user is denied",
			login: func(t *testing.T, tc *testutil.TestClient) {
				user, password := testutil.NewUserBuilder().Build(t, tc.API)
				tc.LoginAs(t, user.Username, password)
			},
			wantRedirect: guard.DefaultHome,
			wantDelay:    true,
		},
		{
			name:          "signed out",
			login:         func(t *testing.T, tc *testutil.TestClient) {},
			wantRedirect:  guard.LoginPath,
			wantSignedOut: true,
		},
		{
			name: "revoked credential",
			login: func(t *testing.T, tc *testutil.TestClient) {
				tc.LoginAdmin(t)
				tc.API.RevokeTokens()
			},
			wantRedirect:  guard.LoginPath,
			wantSignedOut: true,
		},
		{
			name: "server error is a denial",
			login: func(t *testing.T, tc *testutil.TestClient) {
				tc.LoginAdmin(t)
				tc.API.FailNext(http.MethodGet, "/users/me", 1)
			},
			wantRedirect: guard.DefaultHome,
			wantDelay:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestClient(t)
			tt.login(t, tc)
			board := notice.NewBoard()
			admin := service.NewAdminService(tc.Client, board, tc.Config)

			decision, err := admin.Authorize(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			assert.Equal(t, tt.wantRedirect, decision.RedirectTo)
			assert.Equal(t, tt.wantSignedOut, !tc.Session.IsAuthenticated())

			if tt.wantDelay {
				assert.Equal(t, tc.Config.AdminDenyDelay, decision.RedirectAfter)
				assert.NotEmpty(t, decision.Reason)
				n, ok := board.Current(notice.AreaAdmin)
				require.True(t, ok)
				assert.Equal(t, decision.Reason, n.Text)

				start := time.Now()
				to, err := decision.AwaitRedirect(context.Background())
				require.NoError(t, err)
				assert.Equal(t, guard.DefaultHome, to)
				assert.GreaterOrEqual(t, time.Since(start), tc.Config.AdminDenyDelay)
			}
		})
	}
}

func TestAdminService_OperationsRequireAuthorization(t *testing.T) {
	svc, tc := newAdminServices(t)
	ctx := context.Background()
	before := len(tc.API.Calls())

	_, err := svc.Admin.ListUsers(ctx)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Admin.CreateBackup(ctx)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	err = svc.Admin.ResetDatabase(ctx, service.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil }))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	testutil.AssertNoTraffic(t, tc.API, before)
}

func TestAdminService_ListUsers(t *testing.T) {
	svc, tc := newAdminServices(t)
	testutil.NewUserBuilder().WithUsername("bob").Build(t, tc.API)
	authorizeAdmin(t, svc)

	users, err := svc.Admin.ListUsers(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"admin", "bob"}, names)
	assert.Len(t, svc.Admin.Users(), 2)
}

func TestAdminService_CreateUser(t *testing.T) {
	tests := []struct {
		name     string
		input    service.CreateUserInput
		wantRole domain.Role
		wantErr  error
	}{
		{
			name:     "defaults to user role",
			input:    service.CreateUserInput{Username: "bob", Email: "bob@example.com", Password: "password123"},
			wantRole: domain.RoleUser,
		},
		{
			name:     "admin role",
			input:    service.CreateUserInput{Username: "root", Email: "root@example.com", Password: "password123", Role: domain.RoleAdmin},
			wantRole: domain.RoleAdmin,
		},
		{
			name:    "unknown role",
			input:   service.CreateUserInput{Username: "bob", Email: "bob@example.com", Password: "password123", Role: "OWNER"},
			wantErr: domain.ErrInvalidRole,
		},
		{
			name:    "short password",
			input:   service.CreateUserInput{Username: "bob", Email: "bob@example.com", Password: "1234567"},
			wantErr: domain.ErrPasswordTooShort,
		},
		{
			name:    "duplicate username",
			input:   service.CreateUserInput{Username: "admin", Email: "other@example.com", Password: "password123"},
			wantErr: service.ErrUsernameTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, tc := newAdminServices(t)
			authorizeAdmin(t, svc)

			closed := make(chan struct{})
			user, err := svc.Admin.CreateUser(context.Background(), tt.input, func() { close(closed) })

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				n, ok := svc.Notice.Current(notice.AreaCreateUser)
				require.True(t, ok)
				assert.Equal(t, notice.Error, n.Kind)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, user.Role)
			assert.Equal(t, 1, tc.API.CallCount(http.MethodPost, "/auth/register"))

			// the list is refreshed after creation
			assert.Len(t, svc.Admin.Users(), 2)

			select {
			case <-closed:
			case <-time.After(2 * time.Second):
				t.Fatal("dialog was not closed")
			}
			_, ok := svc.Notice.Current(notice.AreaCreateUser)
			assert.False(t, ok)
		})
	}
}

func TestAdminService_CreateBackup(t *testing.T) {
	svc, tc := newAdminServices(t)
	dir := t.TempDir()
	svc.Admin.SetSaver(service.DirSaver{Dir: dir})
	tc.API.SetBackup([]byte("-- dump --"))
	authorizeAdmin(t, svc)

	path, err := svc.Admin.CreateBackup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "backup-"))
	assert.True(t, strings.HasSuffix(path, ".sql"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-- dump --", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAdminService_RestoreBackupResyncs(t *testing.T) {
	svc, tc := newAdminServices(t)
	ctx := context.Background()
	authorizeAdmin(t, svc)

	admin := &domain.User{ID: 1}
	testutil.NewChatBuilder(admin).WithName("general").Build(tc.API)

	require.NoError(t, svc.Admin.RestoreBackup(ctx, "backup.sql", strings.NewReader("-- restore --")))

	data, name := tc.API.Restored()
	assert.Equal(t, "-- restore --", string(data))
	assert.Equal(t, "backup.sql", name)

	assert.Equal(t, 1, tc.API.CallCount(http.MethodGet, "/chats"))
	testutil.AssertChatNames(t, svc.Chats.Chats(), "general")
	assert.Empty(t, svc.Admin.Users())
}

func TestAdminService_ResetDatabase(t *testing.T) {
	t.Run("declined sends nothing", func(t *testing.T) {
		svc, tc := newAdminServices(t)
		authorizeAdmin(t, svc)
		before := len(tc.API.Calls())

		var prompt string
		err := svc.Admin.ResetDatabase(context.Background(), service.ConfirmFunc(func(_ context.Context, p string) (bool, error) {
			prompt = p
			return false, nil
		}))

		assert.ErrorIs(t, err, service.ErrNotConfirmed)
		assert.Equal(t, service.ResetPrompt, prompt)
		testutil.AssertNoTraffic(t, tc.API, before)
	})

	t.Run("confirmation error sends nothing", func(t *testing.T) {
		svc, tc := newAdminServices(t)
		authorizeAdmin(t, svc)
		before := len(tc.API.Calls())
		boom := errors.New("stdin closed")

		err := svc.Admin.ResetDatabase(context.Background(), service.ConfirmFunc(func(context.Context, string) (bool, error) {
			return false, boom
		}))

		assert.ErrorIs(t, err, boom)
		testutil.AssertNoTraffic(t, tc.API, before)
	})

	t.Run("confirmed wipes and resyncs", func(t *testing.T) {
		svc, tc := newAdminServices(t)
		ctx := context.Background()
		authorizeAdmin(t, svc)

		admin := &domain.User{ID: 1}
		chat := testutil.NewChatBuilder(admin).WithName("general").WithMessages("hi").Build(tc.API)
		require.NoError(t, svc.Chats.LoadChats(ctx))
		require.NoError(t, svc.Chats.SelectChat(ctx, *chat))

		err := svc.Admin.ResetDatabase(ctx, service.ConfirmFunc(func(context.Context, string) (bool, error) {
			return true, nil
		}))
		require.NoError(t, err)

		assert.Equal(t, 1, tc.API.CallCount(http.MethodPost, "/admin/reset"))
		assert.Zero(t, tc.API.ChatCount())
		assert.Empty(t, svc.Chats.Chats())
		assert.Empty(t, svc.Chats.Messages())
		_, active := svc.Chats.ActiveChat()
		assert.False(t, active)
	})
}

func TestAdminService_ReloadWaitsForDelay(t *testing.T) {
	tc := testutil.NewTestClient(t)
	tc.LoginAdmin(t)
	tc.Config.ReloadDelay = time.Hour
	svc := service.NewServices(tc.Client, tc.Config, notice.NewBoard())
	authorizeAdmin(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := svc.Admin.ResetDatabase(ctx, service.ConfirmFunc(func(context.Context, string) (bool, error) {
		return true, nil
	}))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, tc.API.CallCount(http.MethodPost, "/admin/reset"))
	assert.Zero(t, tc.API.CallCount(http.MethodGet, "/chats"))
}
