package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/habedi/salonctl/pkg/validation"
	"github.com/rs/zerolog/log"
)

// Service is the session facade used by the CLI.
type Service struct {
	api         *API
	store       *CredentialStore
	invalidator *Invalidator

	initOnce    sync.Once
	initialized atomic.Bool
	initDone    chan struct{}

	mu          sync.Mutex
	profileDone chan struct{}
}

// NewService is the constructor for the session facade.
func NewService(api *API, store *CredentialStore, invalidator *Invalidator) *Service {
	return &Service{
		api:         api,
		store:       store,
		invalidator: invalidator,
		initDone:    make(chan struct{}),
	}
}

// SignUp creates an account. The user must verify it before signing in.
func (s *Service) SignUp(ctx context.Context, acct NewAccount) (*SignUpResult, error) {
	if err := validation.ValidateEmail(acct.Email); err != nil {
		return nil, apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	if err := validation.ValidatePassword(acct.Password); err != nil {
		return nil, apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	res, err := s.api.SignUp(ctx, acct)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", res.UserID).Msg("Account created")
	return res, nil
}

// SignIn establishes a session. The profile is fetched in the background;
// its failure does not undo the sign-in.
func (s *Service) SignIn(ctx context.Context, identifier, secret string) error {
	if err := validation.ValidateNonEmptyString("identifier", identifier); err != nil {
		return apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	if err := validation.ValidateNonEmptyString("password", secret); err != nil {
		return apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	rec, profile, err := s.api.SignIn(ctx, identifier, secret)
	if err != nil {
		return err
	}
	return s.establish(ctx, rec, profile, identifier)
}

func (s *Service) establish(ctx context.Context, rec *Record, profile *Profile, identifier string) error {
	if err := s.store.Set(ctx, *rec); err != nil {
		return err
	}
	snapshot := Profile{Email: identifier, Placeholder: true}
	if profile != nil {
		snapshot = *profile
		snapshot.Placeholder = false
	}
	if err := s.store.SetProfile(ctx, snapshot); err != nil {
		log.Warn().Err(err).Msg("Failed to cache profile after sign-in")
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.profileDone = done
	s.mu.Unlock()
	go func() {
		defer close(done)
		if _, err := s.RefreshProfile(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Background profile fetch failed")
		}
	}()
	log.Info().Msg("Signed in")
	return nil
}

// WaitProfile blocks until the background profile fetch started by the last
// sign-in has finished.
func (s *Service) WaitProfile(ctx context.Context) error {
	s.mu.Lock()
	done := s.profileDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshProfile fetches the profile and replaces the cached snapshot.
func (s *Service) RefreshProfile(ctx context.Context) (*Profile, error) {
	p, err := s.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetProfile(ctx, *p); err != nil {
		if errors.Is(err, ErrNoSession) {
			log.Debug().Msg("Session ended before profile arrived, discarding it")
		}
		return nil, err
	}
	return p, nil
}

// VerifyCode confirms an account created by SignUp.
func (s *Service) VerifyCode(ctx context.Context, userID, code string) (bool, error) {
	if err := validation.ValidateNonEmptyString("user id", userID); err != nil {
		return false, apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	if err := validation.ValidateVerificationCode(code); err != nil {
		return false, apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	return s.api.Verify(ctx, userID, code)
}

func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) error {
	if err := validation.ValidateEmail(identifier); err != nil {
		return apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	return s.api.ForgotPassword(ctx, identifier)
}

func (s *Service) ResetPassword(ctx context.Context, token, newSecret string) (bool, error) {
	if err := validation.ValidateNonEmptyString("reset token", token); err != nil {
		return false, apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	if err := validation.ValidatePassword(newSecret); err != nil {
		return false, apierr.New(apierr.ValidationFailed, err.Error(), nil)
	}
	return s.api.ResetPassword(ctx, token, newSecret)
}

// Logout ends the session. The server call is best effort; local state is
// always cleared and the invalidation signal always fires.
func (s *Service) Logout(ctx context.Context) error {
	rec, err := s.store.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read credentials before logout")
	}
	if rec != nil {
		if err := s.api.Logout(ctx, rec.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("Server-side logout failed, clearing local session anyway")
		}
	}
	return s.invalidator.Invalidate(context.WithoutCancel(ctx), ReasonLogout)
}

// CurrentUser returns the cached profile, or nil when signed out.
func (s *Service) CurrentUser(ctx context.Context) (*Profile, error) {
	return s.store.Profile(ctx)
}

// IsAuthenticated reports whether a credential record is stored.
func (s *Service) IsAuthenticated(ctx context.Context) (bool, error) {
	rec, err := s.store.Get(ctx)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Session returns the stored credential record, or nil.
func (s *Service) Session(ctx context.Context) (*Record, error) {
	return s.store.Get(ctx)
}

// Initialize rehydrates the session from storage. Only the first call does
// any work; IsInitialized flips to true when it finishes, success or not.
func (s *Service) Initialize(ctx context.Context) error {
	var err error
	s.initOnce.Do(func() {
		defer s.markInitialized()
		err = s.rehydrate(ctx)
	})
	return err
}

func (s *Service) rehydrate(ctx context.Context) error {
	rec, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Debug().Msg("No stored session")
		return nil
	}
	p, err := s.store.Profile(ctx)
	if err != nil {
		return err
	}
	if p != nil && !p.Placeholder {
		return nil
	}
	if _, err := s.RefreshProfile(ctx); err != nil {
		log.Warn().Err(err).Msg("Profile refresh during start-up failed")
	}
	return nil
}

func (s *Service) markInitialized() {
	if s.initialized.CompareAndSwap(false, true) {
		close(s.initDone)
	}
}

// IsInitialized reports whether rehydration has finished.
func (s *Service) IsInitialized() bool { return s.initialized.Load() }

// Initialized is closed once IsInitialized becomes true.
func (s *Service) Initialized() <-chan struct{} { return s.initDone }
