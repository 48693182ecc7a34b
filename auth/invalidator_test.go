package auth_test

import (
	"context"
	"testing"

	"github.com/habedi/salonctl/auth"
	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidator_ClearsBeforeSignalling(t *testing.T) {
	ctx := context.Background()
	secrets := newMemorySecrets()
	store := auth.NewCredentialStore(secrets)
	require.NoError(t, store.Set(ctx, auth.Record{AccessToken: "a", RefreshToken: "r"}))
	inv := auth.NewInvalidator(store)

	var seen []auth.Invalidation
	inv.Subscribe(func(ev auth.Invalidation) {
		rec, err := store.Get(ctx)
		assert.NoError(t, err)
		assert.Nil(t, rec, "store is empty by the time subscribers run")
		seen = append(seen, ev)
	})

	require.NoError(t, inv.Invalidate(ctx, auth.ReasonLogout))
	require.Len(t, seen, 1)
	assert.Equal(t, auth.ReasonLogout, seen[0].Reason)
	assert.False(t, seen[0].At.IsZero())
}

func TestInvalidator_SignalsEvenWhenClearFails(t *testing.T) {
	ctx := context.Background()
	secrets := newMemorySecrets()
	secrets.failDel = errDiskGone
	inv := auth.NewInvalidator(auth.NewCredentialStore(secrets))

	calls := 0
	inv.Subscribe(func(auth.Invalidation) { calls++ })

	err := inv.Invalidate(ctx, auth.ReasonRefreshFailed)
	assert.Equal(t, apierr.StorageUnavailable, apierr.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestInvalidator_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	inv := auth.NewInvalidator(auth.NewCredentialStore(newMemorySecrets()))

	a, b := 0, 0
	unsubA := inv.Subscribe(func(auth.Invalidation) { a++ })
	inv.Subscribe(func(auth.Invalidation) { b++ })

	require.NoError(t, inv.Invalidate(ctx, auth.ReasonLogout))
	unsubA()
	unsubA()
	require.NoError(t, inv.Invalidate(ctx, auth.ReasonLogout))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestInvalidator_InvalidateIfOnlyClearsMatchingSession(t *testing.T) {
	ctx := context.Background()
	secrets := newMemorySecrets()
	store := auth.NewCredentialStore(secrets)
	require.NoError(t, store.Set(ctx, auth.Record{AccessToken: "a2", RefreshToken: "r2"}))
	inv := auth.NewInvalidator(store)

	calls := 0
	inv.Subscribe(func(auth.Invalidation) { calls++ })

	byRefresh := func(token string) func(auth.Record) bool {
		return func(rec auth.Record) bool { return rec.RefreshToken == token }
	}

	fired, err := inv.InvalidateIf(ctx, auth.ReasonRefreshFailed, byRefresh("r1"))
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Zero(t, calls)
	assert.True(t, secrets.has(auth.KeyCredentials))

	fired, err = inv.InvalidateIf(ctx, auth.ReasonRefreshFailed, byRefresh("r2"))
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 1, calls)
	assert.False(t, secrets.has(auth.KeyCredentials))

	fired, err = inv.InvalidateIf(ctx, auth.ReasonRefreshFailed, byRefresh("r2"))
	require.NoError(t, err)
	assert.False(t, fired, "nothing left to invalidate")
	assert.Equal(t, 1, calls)
}
