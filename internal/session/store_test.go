package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/AnzeMiles69/pet-chat/internal/repository"
	"github.com/AnzeMiles69/pet-chat/internal/repository/store"
	"github.com/AnzeMiles69/pet-chat/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct {
	loadErr, saveErr, deleteErr error
}

func (r failingRepo) Load(context.Context) (string, error) { return "", r.loadErr }
func (r failingRepo) Save(context.Context, string) error   { return r.saveErr }
func (r failingRepo) Delete(context.Context) error         { return r.deleteErr }

func TestStore_Lifecycle(t *testing.T) {
	s := session.NewMemoryStore()
	ctx := context.Background()

	assert.False(t, s.IsAuthenticated())
	_, ok := s.Credential()
	assert.False(t, ok)

	require.NoError(t, s.SetCredential(ctx, "tok_abc"))
	assert.True(t, s.IsAuthenticated())
	token, ok := s.Credential()
	assert.True(t, ok)
	assert.Equal(t, "tok_abc", token)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.IsAuthenticated())
}

func TestStore_RejectsEmptyCredential(t *testing.T) {
	s := session.NewMemoryStore()
	assert.Error(t, s.SetCredential(context.Background(), ""))
	assert.False(t, s.IsAuthenticated())
}

func TestStore_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	db, err := store.NewConnection(path)
	require.NoError(t, err)
	first, err := session.Open(ctx, store.NewCredentialRepository(db))
	require.NoError(t, err)
	require.NoError(t, first.SetCredential(ctx, "tok_abc"))

	db2, err := store.NewConnection(path)
	require.NoError(t, err)
	second, err := session.Open(ctx, store.NewCredentialRepository(db2))
	require.NoError(t, err)

	token, ok := second.Credential()
	assert.True(t, ok)
	assert.Equal(t, "tok_abc", token)

	require.NoError(t, second.Clear(ctx))
	third, err := session.Open(ctx, store.NewCredentialRepository(db2))
	require.NoError(t, err)
	assert.False(t, third.IsAuthenticated())
}

func TestStore_OpenPropagatesLoadFailure(t *testing.T) {
	_, err := session.Open(context.Background(), failingRepo{loadErr: errors.New("disk gone")})
	assert.Error(t, err)
}

func TestStore_SaveFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	s, err := session.Open(ctx, failingRepo{loadErr: repository.ErrNoCredential, saveErr: errors.New("read-only")})
	require.NoError(t, err)

	assert.Error(t, s.SetCredential(ctx, "tok"))
	assert.False(t, s.IsAuthenticated())
}

func TestStore_ClearEmptiesSlotEvenOnRepoFailure(t *testing.T) {
	ctx := context.Background()
	s, err := session.Open(ctx, failingRepo{loadErr: repository.ErrNoCredential, deleteErr: errors.New("locked")})
	require.NoError(t, err)
	require.NoError(t, s.SetCredential(ctx, "tok"))

	assert.Error(t, s.Clear(ctx))
	assert.False(t, s.IsAuthenticated())
}
