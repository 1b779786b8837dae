package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// slotID is the primary key of the only row the table ever holds.
const slotID = 1

type credential struct {
	ID        int    `gorm:"primaryKey"`
	Token     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (credential) TableName() string { return "client_credentials" }

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *credentialRepository {
	return &credentialRepository{db: db}
}

var _ repository.CredentialRepository = (*credentialRepository)(nil)

func (r *credentialRepository) Load(ctx context.Context) (string, error) {
	var row credential
	err := r.db.WithContext(ctx).First(&row, "id = ?", slotID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", repository.ErrNoCredential
		}
		return "", err
	}
	return row.Token, nil
}

func (r *credentialRepository) Save(ctx context.Context, token string) error {
	row := credential{ID: slotID, Token: token, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&row).Error
}

func (r *credentialRepository) Delete(ctx context.Context) error {
	return r.db.WithContext(ctx).Delete(&credential{}, "id = ?", slotID).Error
}
