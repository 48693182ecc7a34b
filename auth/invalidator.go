package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Reason explains why a session was invalidated.
type Reason string

const (
	ReasonLogout        Reason = "logout"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonRejected      Reason = "credentials_rejected"
)

// Invalidation is the signal emitted once per invalidation.
type Invalidation struct {
	Reason Reason
	At     time.Time
}

// Invalidator clears the session and notifies subscribers. It performs no
// navigation itself; subscribers decide how to reset.
type Invalidator struct {
	store *CredentialStore
	now   func() time.Time

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Invalidation)
}

// NewInvalidator creates an Invalidator for store.
func NewInvalidator(store *CredentialStore) *Invalidator {
	return &Invalidator{store: store, now: time.Now, subs: make(map[int]func(Invalidation))}
}

// Subscribe registers fn for every future invalidation and returns a
// function that removes it.
func (v *Invalidator) Subscribe(fn func(Invalidation)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Invalidate clears credentials and snapshot, then emits one signal. The
// signal fires even when clearing failed; the storage error is returned.
func (v *Invalidator) Invalidate(ctx context.Context, reason Reason) error {
	err := v.store.ClearAll(ctx)
	v.logCleared(reason, err)
	v.emit(reason)
	return err
}

// InvalidateIf invalidates only the session match accepts. When the stored
// record is gone or no longer matches, nothing is cleared and no signal is
// emitted. It reports whether the signal fired.
func (v *Invalidator) InvalidateIf(ctx context.Context, reason Reason, match func(Record) bool) (bool, error) {
	cleared, err := v.store.ClearAllIf(ctx, match)
	if err == nil && !cleared {
		log.Debug().Str("reason", string(reason)).Msg("Session already replaced, nothing to invalidate")
		return false, nil
	}
	v.logCleared(reason, err)
	v.emit(reason)
	return true, err
}

func (v *Invalidator) logCleared(reason Reason, err error) {
	if err != nil {
		log.Error().Err(err).Str("reason", string(reason)).Msg("Failed to clear session during invalidation")
		return
	}
	log.Info().Str("reason", string(reason)).Msg("Session invalidated")
}

func (v *Invalidator) emit(reason Reason) {
	v.mu.Lock()
	subs := make([]func(Invalidation), 0, len(v.subs))
	for _, fn := range v.subs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()

	event := Invalidation{Reason: reason, At: v.now()}
	for _, fn := range subs {
		fn(event)
	}
}
