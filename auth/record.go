package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// schemaVersion is the newest persisted layout this build understands.
const schemaVersion = 1

const (
	kindCredentials = "credentials"
	kindProfile     = "profile"
)

// Record is the persisted credential pair.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	// ExpiresAt is zero when the access token does not carry an expiry.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token's own expiry has passed.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Profile is the cached user snapshot. It is advisory and may be stale.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Verified  bool   `json:"verified"`
	// Placeholder marks the minimal profile kept until the first successful fetch.
	Placeholder bool `json:"placeholder,omitempty"`
}

// DisplayName returns the best human-readable name for the profile.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	}
	return p.Email
}

// NewRecord builds a record, reading iat/exp from the access token when it is
// a JWT. The signature is not checked; the server remains the authority.
func NewRecord(accessToken, refreshToken string, now time.Time) Record {
	rec := Record{AccessToken: accessToken, RefreshToken: refreshToken, IssuedAt: now.UTC()}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return rec
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		rec.IssuedAt = iat.UTC()
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		rec.ExpiresAt = exp.UTC()
	}
	return rec
}

// envelope is the versioned wrapper around every persisted value.
type envelope struct {
	Version int             `json:"v"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func encode(kind string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	raw, err := json.Marshal(envelope{Version: schemaVersion, Kind: kind, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s envelope: %w", kind, err)
	}
	return string(raw), nil
}

func decode(kind, raw string, v any) error {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return fmt.Errorf("corrupt %s record: %w", kind, err)
	}
	if env.Version < 1 || env.Version > schemaVersion {
		return fmt.Errorf("unsupported %s schema version %d", kind, env.Version)
	}
	if env.Kind != kind {
		return fmt.Errorf("expected %s record, found %q", kind, env.Kind)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("corrupt %s payload: %w", kind, err)
	}
	return nil
}
