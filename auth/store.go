package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/rs/zerolog/log"
)

// Secret keys used by the credential store.
const (
	KeyCredentials = "credentials"
	KeyProfile     = "profile"
	KeyDeviceID    = "device_id"
)

// ErrNoSession is returned when an operation needs stored credentials and
// there are none.
var ErrNoSession = errors.New("no active session")

// CredentialStore persists the credential record and user snapshot. All
// operations are atomic with respect to each other.
type CredentialStore struct {
	mu      sync.RWMutex
	secrets SecretStore
}

// NewCredentialStore creates a store on top of a secure-storage collaborator.
func NewCredentialStore(secrets SecretStore) *CredentialStore {
	return &CredentialStore{secrets: secrets}
}

// Set replaces the credential record. Both tokens are written as one value.
func (s *CredentialStore) Set(ctx context.Context, rec Record) error {
	if rec.AccessToken == "" {
		return fmt.Errorf("credential record without access token")
	}
	raw, err := encode(kindCredentials, rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.secrets.SetSecret(ctx, KeyCredentials, raw); err != nil {
		return storageErr("write credentials", err)
	}
	log.Debug().Str("access_token", redact(rec.AccessToken)).Msg("Credentials stored")
	return nil
}

// Replace writes rec only while the stored record still carries
// refreshToken. It reports false without writing when the session was
// cleared or replaced in the meantime.
func (s *CredentialStore) Replace(ctx context.Context, refreshToken string, rec Record) (bool, error) {
	if rec.AccessToken == "" {
		return false, fmt.Errorf("credential record without access token")
	}
	raw, err := encode(kindCredentials, rec)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.getLocked(ctx)
	if err != nil {
		return false, err
	}
	if current == nil || current.RefreshToken != refreshToken {
		return false, nil
	}
	if err := s.secrets.SetSecret(ctx, KeyCredentials, raw); err != nil {
		return false, storageErr("write credentials", err)
	}
	log.Debug().Str("access_token", redact(rec.AccessToken)).Msg("Credentials replaced")
	return true, nil
}

// Get returns the stored record, or nil when there is none.
func (s *CredentialStore) Get(ctx context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx)
}

func (s *CredentialStore) getLocked(ctx context.Context) (*Record, error) {
	raw, ok, err := s.secrets.GetSecret(ctx, KeyCredentials)
	if err != nil {
		return nil, storageErr("read credentials", err)
	}
	if !ok {
		return nil, nil
	}
	var rec Record
	if err := decode(kindCredentials, raw, &rec); err != nil {
		return nil, storageErr("decode credentials", err)
	}
	return &rec, nil
}

// AccessToken returns the stored access token or "" when signed out.
func (s *CredentialStore) AccessToken(ctx context.Context) (string, error) {
	rec, err := s.Get(ctx)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// Clear removes the credential record only.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.secrets.DeleteSecret(ctx, KeyCredentials); err != nil {
		return storageErr("clear credentials", err)
	}
	return nil
}

// ClearAll removes the credential record and the user snapshot together.
func (s *CredentialStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.secrets.DeleteSecret(ctx, KeyCredentials, KeyProfile); err != nil {
		return storageErr("clear session", err)
	}
	return nil
}

// ClearAllIf clears like ClearAll, but only when a record is stored and
// match accepts it. It reports whether anything was cleared.
func (s *CredentialStore) ClearAllIf(ctx context.Context, match func(Record) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.getLocked(ctx)
	if err != nil {
		return false, err
	}
	if current == nil || !match(*current) {
		return false, nil
	}
	if err := s.secrets.DeleteSecret(ctx, KeyCredentials, KeyProfile); err != nil {
		return false, storageErr("clear session", err)
	}
	return true, nil
}

// SetProfile caches p. It refuses to write once the session is gone so a
// late profile response cannot outlive a logout.
func (s *CredentialStore) SetProfile(ctx context.Context, p Profile) error {
	raw, err := encode(kindProfile, p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getLocked(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNoSession
	}
	if err := s.secrets.SetSecret(ctx, KeyProfile, raw); err != nil {
		return storageErr("write profile", err)
	}
	return nil
}

// Profile returns the cached snapshot, or nil when there is none.
func (s *CredentialStore) Profile(ctx context.Context) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok, err := s.secrets.GetSecret(ctx, KeyProfile)
	if err != nil {
		return nil, storageErr("read profile", err)
	}
	if !ok {
		return nil, nil
	}
	var p Profile
	if err := decode(kindProfile, raw, &p); err != nil {
		return nil, storageErr("decode profile", err)
	}
	return &p, nil
}

// ClearProfile removes the cached snapshot only.
func (s *CredentialStore) ClearProfile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.secrets.DeleteSecret(ctx, KeyProfile); err != nil {
		return storageErr("clear profile", err)
	}
	return nil
}

// DeviceID returns the per-install identifier, creating it on first use. It
// survives logout.
func (s *CredentialStore) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok, err := s.secrets.GetSecret(ctx, KeyDeviceID)
	if err != nil {
		return "", storageErr("read device id", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.secrets.SetSecret(ctx, KeyDeviceID, id); err != nil {
		return "", storageErr("write device id", err)
	}
	log.Info().Str("device_id", id).Msg("Generated device identifier")
	return id, nil
}

func storageErr(op string, err error) error {
	if apierr.Is(err, apierr.StorageUnavailable) {
		return fmt.Errorf("credential store: %s: %w", op, err)
	}
	return apierr.New(apierr.StorageUnavailable, "credential store: "+op+" failed", err)
}

// redact keeps a short prefix of a secret for log correlation.
func redact(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:6] + "***"
}
