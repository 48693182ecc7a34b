package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/habedi/salonctl/client"
	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/rs/zerolog/log"
)

// DefaultRefreshTimeout bounds one refresh exchange.
const DefaultRefreshTimeout = 15 * time.Second

// State is the refresh coordinator's state.
type State int

const (
	Idle State = iota
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	errNoRefreshToken = errors.New("no refresh token stored")
	errSessionChanged = errors.New("session changed during refresh")
)

// waiter receives the outcome of the refresh it queued behind.
type waiter chan error

// Coordinator ensures that concurrent Unauthorized responses lead to at most
// one refresh exchange. The Idle to Refreshing transition and waiter enqueue
// happen in one critical section.
type Coordinator struct {
	store       *CredentialStore
	exchanger   Exchanger
	invalidator *Invalidator
	timeout     time.Duration

	mu        sync.Mutex
	state     State
	waiters   []waiter
	refreshes int
}

// NewCoordinator wires a coordinator. A non-positive timeout uses DefaultRefreshTimeout.
func NewCoordinator(store *CredentialStore, exchanger Exchanger, invalidator *Invalidator, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Coordinator{store: store, exchanger: exchanger, invalidator: invalidator, timeout: timeout}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refreshes returns how many refresh exchanges succeeded in this process.
func (c *Coordinator) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// Recover is called by a request that was rejected while carrying
// staleToken. It returns nil when the request should be replayed, a
// SessionExpired error when the session could not be restored, a
// NetworkError when the refresh could not reach the server, and
// client.ErrNothingToRecover for an anonymous request with no session.
func (c *Coordinator) Recover(ctx context.Context, staleToken string) error {
	c.mu.Lock()
	if c.state != Idle {
		w := c.enqueueLocked()
		c.mu.Unlock()
		return c.wait(ctx, w)
	}

	rec, err := c.store.Get(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if rec != nil && rec.AccessToken != staleToken {
		// Already replaced by an earlier refresh or a new sign-in.
		c.mu.Unlock()
		return nil
	}

	if rec == nil {
		c.mu.Unlock()
		if staleToken == "" {
			// Anonymous request; no session ever existed.
			return client.ErrNothingToRecover
		}
		// Already invalidated; there is nothing left to refresh or clear.
		return apierr.New(apierr.SessionExpired, "session expired, please sign in again", errNoRefreshToken)
	}

	w := c.enqueueLocked()
	detached := context.WithoutCancel(ctx)
	if rec.RefreshToken == "" {
		c.state = Failed
		c.mu.Unlock()
		c.finish(detached, "", errNoRefreshToken)
		return c.wait(ctx, w)
	}
	c.state = Refreshing
	c.mu.Unlock()

	log.Info().Msg("Access token rejected, refreshing session")
	go c.run(detached, rec.RefreshToken)
	return c.wait(ctx, w)
}

// Expire handles a request that was rejected again after its replay. The
// session is invalidated unless it already changed.
func (c *Coordinator) Expire(ctx context.Context, staleToken string, cause error) error {
	expired := apierr.New(apierr.SessionExpired, "session expired, please sign in again", cause)
	if staleToken == "" {
		return expired
	}
	_, err := c.invalidator.InvalidateIf(context.WithoutCancel(ctx), ReasonRejected, func(rec Record) bool {
		return rec.AccessToken == staleToken
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear rejected session")
	}
	return expired
}

func (c *Coordinator) enqueueLocked() waiter {
	w := make(waiter, 1)
	c.waiters = append(c.waiters, w)
	return w
}

func (c *Coordinator) wait(ctx context.Context, w waiter) error {
	select {
	case err := <-w:
		return err
	case <-ctx.Done():
		return apierr.New(apierr.NetworkError, "stopped waiting for session refresh", ctx.Err())
	}
}

func (c *Coordinator) run(ctx context.Context, refreshToken string) {
	exchangeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	rec, err := c.exchanger.ExchangeRefreshToken(exchangeCtx, refreshToken)
	cancel()
	if err == nil && (rec == nil || rec.AccessToken == "") {
		err = apierr.New(apierr.Unknown, "refresh response carried no access token", nil)
	}
	if err == nil {
		if rec.RefreshToken == "" {
			rec.RefreshToken = refreshToken
		}
		// Written before any waiter is released, and only into the session
		// the exchange started from.
		var replaced bool
		replaced, err = c.store.Replace(ctx, refreshToken, *rec)
		if err == nil && !replaced {
			err = errSessionChanged
		}
	}
	c.finish(ctx, refreshToken, err)
}

// finish resolves the current round and releases every waiter with the same outcome.
func (c *Coordinator) finish(ctx context.Context, refreshToken string, cause error) {
	result := c.outcome(ctx, refreshToken, cause)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = Idle
	if cause == nil {
		c.refreshes++
	}
	c.mu.Unlock()

	for _, w := range waiters {
		w <- result
	}
}

func (c *Coordinator) outcome(ctx context.Context, refreshToken string, cause error) error {
	switch {
	case cause == nil:
		log.Info().Msg("Session refreshed")
		return nil
	case errors.Is(cause, errSessionChanged):
		log.Info().Msg("Session ended during refresh, discarding refreshed credentials")
		return apierr.New(apierr.SessionExpired, "session expired, please sign in again", cause)
	case apierr.Is(cause, apierr.NetworkError):
		log.Warn().Err(cause).Msg("Session refresh could not reach the server")
		return fmt.Errorf("session refresh failed: %w", cause)
	case apierr.Is(cause, apierr.StorageUnavailable):
		log.Error().Err(cause).Msg("Session refresh could not persist credentials")
		return fmt.Errorf("session refresh failed: %w", cause)
	}

	c.mu.Lock()
	c.state = Failed
	c.mu.Unlock()
	log.Warn().Err(cause).Msg("Session refresh rejected")
	_, _ = c.invalidator.InvalidateIf(ctx, ReasonRefreshFailed, func(rec Record) bool {
		return rec.RefreshToken == refreshToken
	})
	return apierr.New(apierr.SessionExpired, "session expired, please sign in again", cause)
}
