// Package session holds the client's bearer credential.
//
// A Store is the single owner of the credential slot. It is created once at
// startup and handed to every collaborator that needs it; nothing reaches it
// through package state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AnzeMiles69/pet-chat/internal/repository"
)

type Store struct {
	mu    sync.RWMutex
	token string
	repo  repository.CredentialRepository
}

// Open creates a Store backed by repo and loads any persisted credential.
func Open(ctx context.Context, repo repository.CredentialRepository) (*Store, error) {
	s := &Store{repo: repo}
	token, err := repo.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrNoCredential):
	case err != nil:
		return nil, fmt.Errorf("load credential: %w", err)
	default:
		s.token = token
	}
	return s, nil
}

// NewMemoryStore returns a Store that persists nothing. Useful in tests and
// for one-shot commands.
func NewMemoryStore() *Store {
	return &Store{repo: memoryRepository{}}
}

// SetCredential stores token in memory and in the backing repository.
func (s *Store) SetCredential(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("empty credential")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	s.token = token
	return nil
}

func (s *Store) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Clear drops the credential. The in-memory slot is emptied even when the
// repository fails, so a revoked token is never reused.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := s.repo.Delete(ctx); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// IsAuthenticated is a presence check only; a server-revoked token still
// reports true until a request fails with 401.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Credential()
	return ok
}

type memoryRepository struct{}

func (memoryRepository) Load(context.Context) (string, error) { return "", repository.ErrNoCredential }
func (memoryRepository) Save(context.Context, string) error   { return nil }
func (memoryRepository) Delete(context.Context) error         { return nil }
