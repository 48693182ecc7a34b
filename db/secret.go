package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSecretNotFound is returned by Lookup when no value is stored under a name.
var ErrSecretNotFound = errors.New("secret not found")

// Secret is one named, sealed value.
type Secret struct {
	Name      string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// SecretRepository is a GORM-backed secret store. Values are sealed when a
// Sealer is configured. Every failure is reported as apierr.StorageUnavailable.
type SecretRepository struct {
	db     *gorm.DB
	sealer *Sealer
}

// NewSecretRepository creates a SecretRepository. Accepts *gorm.DB to avoid global access.
func NewSecretRepository(db *gorm.DB, sealer *Sealer) *SecretRepository {
	return &SecretRepository{db: db, sealer: sealer}
}

// SetSecret inserts or replaces the value stored under name.
func (r *SecretRepository) SetSecret(ctx context.Context, name, value string) error {
	if r.db == nil {
		return unavailable("write", fmt.Errorf("repository not initialized"))
	}
	data := []byte(value)
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(name, data)
		if err != nil {
			return unavailable("seal", err)
		}
		data = sealed
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Secret{Name: name, Value: data}).Error
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to write secret")
		return unavailable("write", err)
	}
	return nil
}

// Lookup returns the opened value stored under name or ErrSecretNotFound.
func (r *SecretRepository) Lookup(ctx context.Context, name string) ([]byte, error) {
	if r.db == nil {
		return nil, unavailable("read", fmt.Errorf("repository not initialized"))
	}
	var s Secret
	err := r.db.WithContext(ctx).First(&s, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to read secret")
		return nil, unavailable("read", err)
	}
	if r.sealer == nil {
		return s.Value, nil
	}
	plain, err := r.sealer.Open(name, s.Value)
	if err != nil {
		return nil, unavailable("open", err)
	}
	return plain, nil
}

// GetSecret reports ok=false when name is absent.
func (r *SecretRepository) GetSecret(ctx context.Context, name string) (string, bool, error) {
	v, err := r.Lookup(ctx, name)
	if errors.Is(err, ErrSecretNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// DeleteSecret removes every named value in one transaction.
func (r *SecretRepository) DeleteSecret(ctx context.Context, names ...string) error {
	if r.db == nil {
		return unavailable("delete", fmt.Errorf("repository not initialized"))
	}
	if len(names) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("name IN ?", names).Delete(&Secret{}).Error
	})
	if err != nil {
		log.Error().Err(err).Strs("names", names).Msg("Failed to delete secrets")
		return unavailable("delete", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return apierr.New(apierr.StorageUnavailable, "secret store: "+op+" failed", err)
}
