package auth

import (
	"context"
)

// SecretStore is the secure-storage collaborator. Implementations keep values
// confidential at rest where the platform allows it and report medium
// failures as apierr.StorageUnavailable.
type SecretStore interface {
	SetSecret(ctx context.Context, key, value string) error
	// GetSecret reports ok=false when the key is absent.
	GetSecret(ctx context.Context, key string) (value string, ok bool, err error)
	// DeleteSecret removes all keys as one unit. Missing keys are not an error.
	DeleteSecret(ctx context.Context, keys ...string) error
}

// Exchanger trades a refresh token for a new credential pair.
type Exchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*Record, error)
}
