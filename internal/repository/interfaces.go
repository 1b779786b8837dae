package repository

import (
	"context"
	"errors"
)

// ErrNoCredential is returned by Load when nothing has been persisted.
var ErrNoCredential = errors.New("no stored credential")

// CredentialRepository persists the single client credential slot.
type CredentialRepository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}
