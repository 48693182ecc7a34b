package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/habedi/salonctl/auth"
	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestService_SignInRefreshRetryScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	require.NoError(t, h.service.SignIn(ctx, "ana@example.com", "secret12"))
	require.NoError(t, h.service.WaitProfile(ctx))

	rec, err := h.service.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "access-1", rec.AccessToken)
	assert.Equal(t, "refresh-1", rec.RefreshToken)

	p, err := h.service.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana", p.FirstName)
	assert.False(t, p.Placeholder)

	h.server.rotate()
	appts, err := h.client.ListAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
	assert.Equal(t, int32(1), h.server.refreshCalls.Load())

	rec, err = h.service.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", rec.AccessToken)
	assert.Equal(t, "refresh-2", rec.RefreshToken)
	assert.Zero(t, h.signalCount())
}

func TestService_SignInRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	err := h.service.SignIn(ctx, "ana@example.com", "wrong-password1")
	assert.Equal(t, apierr.Unauthorized, apierr.KindOf(err), "a failed sign-in is not treated as an expired session")
	assert.Zero(t, h.server.refreshCalls.Load())

	ok, err := h.service.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_SignInValidatesInput(t *testing.T) {
	h := newHarness(t, nil)
	err := h.service.SignIn(context.Background(), "", "secret12")
	assert.Equal(t, apierr.ValidationFailed, apierr.KindOf(err))
}

func TestService_ProfileFetchFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.server.configure(func(f *fakeAPI) { f.meStatus = 500 })

	require.NoError(t, h.service.SignIn(ctx, "ana@example.com", "secret12"))
	require.NoError(t, h.service.WaitProfile(ctx))

	ok, err := h.service.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "a failed profile fetch keeps the session")

	p, err := h.service.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID)
}

func TestService_RevokedRefreshEmptiesStoreAndSignalsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.service.SignIn(ctx, "ana@example.com", "secret12"))
	require.NoError(t, h.service.WaitProfile(ctx))

	h.server.rotate()
	h.server.revoke()

	_, err := h.client.ListAppointments(ctx)
	assert.Equal(t, apierr.SessionExpired, apierr.KindOf(err))
	assert.False(t, h.secrets.has(auth.KeyCredentials))
	assert.False(t, h.secrets.has(auth.KeyProfile))
	assert.Equal(t, 1, h.signalCount())
	assert.Equal(t, auth.ReasonRefreshFailed, h.lastSignal().Reason)
}

func TestService_LogoutClearsEvenWhenServerFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.service.SignIn(ctx, "ana@example.com", "secret12"))
	require.NoError(t, h.service.WaitProfile(ctx))
	h.server.configure(func(f *fakeAPI) { f.logoutStatus = 500 })

	require.NoError(t, h.service.Logout(ctx))
	assert.Equal(t, int32(1), h.server.logoutCalls.Load())
	assert.False(t, h.secrets.has(auth.KeyCredentials))
	assert.False(t, h.secrets.has(auth.KeyProfile))
	assert.Equal(t, 1, h.signalCount())
	assert.Equal(t, auth.ReasonLogout, h.lastSignal().Reason)
}

func TestService_LogoutWithCancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.service.SignIn(context.Background(), "ana@example.com", "secret12"))
	require.NoError(t, h.service.WaitProfile(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.service.Logout(ctx))
	assert.False(t, h.secrets.has(auth.KeyCredentials))
	assert.Equal(t, 1, h.signalCount())
}

func TestService_LogoutWithoutSessionStillSignals(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.service.Logout(context.Background()))
	assert.Zero(t, h.server.logoutCalls.Load())
	assert.Equal(t, 1, h.signalCount())
}

func TestService_InitializeFlipsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.Set(ctx, auth.Record{AccessToken: "stale", RefreshToken: "missing"}))
	h.server.setRefresh("missing")
	assert.False(t, h.service.IsInitialized())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.service.Initialize(ctx))
		}()
	}
	wg.Wait()

	assert.True(t, h.service.IsInitialized())
	select {
	case <-h.service.Initialized():
	case <-time.After(time.Second):
		t.Fatal("Initialized channel was not closed")
	}
	assert.Equal(t, int32(1), h.server.refreshCalls.Load())
	assert.Equal(t, int32(2), h.server.meCalls.Load(), "one rejected fetch and its replay")
	p, err := h.service.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana", p.FirstName)

	require.NoError(t, h.service.Initialize(ctx))
	assert.True(t, h.service.IsInitialized())
}

func TestService_InitializeWithStorageFailure(t *testing.T) {
	secrets := newMemorySecrets()
	secrets.failGet = errDiskGone
	h := newHarness(t, secrets)

	err := h.service.Initialize(context.Background())
	assert.Equal(t, apierr.StorageUnavailable, apierr.KindOf(err))
	assert.True(t, h.service.IsInitialized(), "initialization completes even when rehydration fails")
}

func TestService_SignInLeavesInitializationToRehydration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	require.NoError(t, h.service.SignIn(ctx, "ana@example.com", "secret12"))
	require.NoError(t, h.service.WaitProfile(ctx))
	assert.False(t, h.service.IsInitialized())

	require.NoError(t, h.service.Initialize(ctx))
	assert.True(t, h.service.IsInitialized())
	authenticated, err := h.service.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, authenticated)
}

func TestService_SignUpAndVerify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	res, err := h.service.SignUp(ctx, auth.NewAccount{Email: "ana@example.com", Password: "secret12", FirstName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "vt-1", res.VerificationToken)

	ok, err := h.service.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "sign-up does not establish a session")

	verified, err := h.service.VerifyCode(ctx, res.UserID, "123456")
	require.NoError(t, err)
	assert.True(t, verified)

	verified, err = h.service.VerifyCode(ctx, res.UserID, "654321")
	require.NoError(t, err)
	assert.False(t, verified)

	_, err = h.service.VerifyCode(ctx, res.UserID, "abc")
	assert.Equal(t, apierr.ValidationFailed, apierr.KindOf(err))
}

func TestService_SignUpValidatesPassword(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.service.SignUp(context.Background(), auth.NewAccount{Email: "ana@example.com", Password: "short"})
	assert.Equal(t, apierr.ValidationFailed, apierr.KindOf(err))
}

func TestService_SocialAuth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	tok := (&oauth2.Token{AccessToken: "provider-access"}).WithExtra(map[string]any{"id_token": "provider-id-token"})
	assertion, err := auth.AssertionFromToken("Google", tok)
	require.NoError(t, err)
	assert.Equal(t, "google", assertion.Provider)
	assert.Equal(t, "provider-id-token", assertion.Token)

	require.NoError(t, h.service.SocialAuth(ctx, assertion))
	require.NoError(t, h.service.WaitProfile(ctx))
	assert.Equal(t, "access-1", h.accessToken(t))

	p, err := h.service.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ana@example.com", p.Email)
}

func TestAssertionFromToken_FallsBackToAccessToken(t *testing.T) {
	a, err := auth.AssertionFromToken("apple", &oauth2.Token{AccessToken: "at"})
	require.NoError(t, err)
	assert.Equal(t, "at", a.Token)

	_, err = auth.AssertionFromToken("apple", nil)
	assert.Error(t, err)
	_, err = auth.AssertionFromToken("apple", &oauth2.Token{})
	assert.Error(t, err)
}
