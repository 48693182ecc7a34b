package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habedi/salonctl/pkg/apierr"
)

// Header names attached to every outbound request.
const (
	HeaderAuthorization = "Authorization"
	HeaderAppVersion    = "X-App-Version"
	HeaderPlatform      = "X-Platform"
	HeaderDeviceID      = "X-Device-ID"
	HeaderRequestTime   = "X-Request-Time"
	HeaderRequestID     = "X-Request-ID"
)

// TokenSource yields the current access token, or "" when none is stored.
// It must only read local state.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Metadata identifies this client install to the API.
type Metadata struct {
	AppVersion string
	Platform   string
	DeviceID   string
}

// Augmenter attaches credentials and client metadata to requests. Headers
// the caller already set are never overwritten.
type Augmenter struct {
	Tokens TokenSource
	Meta   Metadata
	Now    func() time.Time
	NewID  func() string
}

// NewAugmenter creates an Augmenter reading tokens from tokens.
func NewAugmenter(tokens TokenSource, meta Metadata) *Augmenter {
	return &Augmenter{Tokens: tokens, Meta: meta, Now: time.Now, NewID: uuid.NewString}
}

// Augment mutates req in place and returns the bearer token it carries, if any.
func (a *Augmenter) Augment(ctx context.Context, req *Request) (string, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if !req.SkipAuth && a.Tokens != nil && !hasHeader(req.Header, HeaderAuthorization) {
		token, err := a.Tokens.AccessToken(ctx)
		if err != nil {
			if apierr.Is(err, apierr.StorageUnavailable) {
				return "", err
			}
			return "", apierr.New(apierr.StorageUnavailable, "failed to read access token", err)
		}
		if token != "" {
			req.Header.Set(HeaderAuthorization, "Bearer "+token)
		}
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	setIfAbsent(req.Header, HeaderAppVersion, a.Meta.AppVersion)
	setIfAbsent(req.Header, HeaderPlatform, a.Meta.Platform)
	setIfAbsent(req.Header, HeaderDeviceID, a.Meta.DeviceID)
	setIfAbsent(req.Header, HeaderRequestTime, now().UTC().Format(time.RFC3339Nano))
	if a.NewID != nil {
		setIfAbsent(req.Header, HeaderRequestID, a.NewID())
	}

	return bearerToken(req.Header), nil
}

func hasHeader(h http.Header, key string) bool {
	_, ok := h[http.CanonicalHeaderKey(key)]
	return ok
}

func setIfAbsent(h http.Header, key, value string) {
	if value == "" || hasHeader(h, key) {
		return
	}
	h.Set(key, value)
}

func bearerToken(h http.Header) string {
	v := h.Get(HeaderAuthorization)
	if len(v) > len("Bearer ") && strings.EqualFold(v[:len("Bearer ")], "Bearer ") {
		return v[len("Bearer "):]
	}
	return ""
}
