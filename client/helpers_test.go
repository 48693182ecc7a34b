package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// staticTokens is an in-memory TokenSource.
type staticTokens struct {
	mu    sync.Mutex
	token string
	err   error
}

func (s *staticTokens) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *staticTokens) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// fakeRecoverer swaps in a new token on Recover and records calls.
type fakeRecoverer struct {
	tokens     *staticTokens
	next       string
	recoverErr error
	recovers   atomic.Int32
	expires    atomic.Int32
	staleSeen  atomic.Value
}

var errExpiredForTest = errors.New("expired for test")

func (f *fakeRecoverer) Recover(ctx context.Context, staleToken string) error {
	f.recovers.Add(1)
	f.staleSeen.Store(staleToken)
	if f.recoverErr != nil {
		return f.recoverErr
	}
	f.tokens.set(f.next)
	return nil
}

func (f *fakeRecoverer) Expire(ctx context.Context, staleToken string, cause error) error {
	f.expires.Add(1)
	return errExpiredForTest
}
