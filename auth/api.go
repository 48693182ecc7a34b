package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/habedi/salonctl/client"
	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/tidwall/gjson"
)

// Paths lists the auth endpoints relative to the API base URL.
type Paths struct {
	SignUp         string `yaml:"signup"`
	SignIn         string `yaml:"login"`
	Social         string `yaml:"social"`
	Verify         string `yaml:"verify"`
	ForgotPassword string `yaml:"forgot_password"`
	ResetPassword  string `yaml:"reset_password"`
	Refresh        string `yaml:"refresh"`
	Logout         string `yaml:"logout"`
	Me             string `yaml:"me"`
}

// DefaultPaths returns the endpoint layout of the salon API.
func DefaultPaths() Paths {
	return Paths{
		SignUp:         "/auth/signup",
		SignIn:         "/auth/login",
		Social:         "/auth/social",
		Verify:         "/auth/verify",
		ForgotPassword: "/auth/forgot-password",
		ResetPassword:  "/auth/reset-password",
		Refresh:        client.DefaultRefreshPath,
		Logout:         "/auth/logout",
		Me:             "/users/me",
	}
}

// NewAccount is the sign-up payload.
type NewAccount struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// SignUpResult identifies the created, not yet verified, account.
type SignUpResult struct {
	UserID            string
	VerificationToken string
}

// API speaks the auth endpoints over a client.Client.
type API struct {
	client *client.Client
	paths  Paths
	now    func() time.Time
}

// NewAPI creates an API. Empty paths fall back to DefaultPaths.
func NewAPI(c *client.Client, paths Paths) *API {
	def := DefaultPaths()
	fill := func(p *string, d string) {
		if *p == "" {
			*p = d
		}
	}
	fill(&paths.SignUp, def.SignUp)
	fill(&paths.SignIn, def.SignIn)
	fill(&paths.Social, def.Social)
	fill(&paths.Verify, def.Verify)
	fill(&paths.ForgotPassword, def.ForgotPassword)
	fill(&paths.ResetPassword, def.ResetPassword)
	fill(&paths.Refresh, def.Refresh)
	fill(&paths.Logout, def.Logout)
	fill(&paths.Me, def.Me)
	return &API{client: c, paths: paths, now: time.Now}
}

// postAnonymous sends body without a bearer credential and without session recovery.
func (a *API) postAnonymous(ctx context.Context, path string, body any) (*client.Response, error) {
	req, err := client.NewRequest(http.MethodPost, path).WithJSON(body)
	if err != nil {
		return nil, err
	}
	req.SkipAuth = true
	return a.client.Send(ctx, req)
}

// SignUp creates an account. It does not establish a session.
func (a *API) SignUp(ctx context.Context, acct NewAccount) (*SignUpResult, error) {
	resp, err := a.postAnonymous(ctx, a.paths.SignUp, acct)
	if err != nil {
		return nil, err
	}
	res := &SignUpResult{
		UserID:            lookup(resp.Body, "userId", "user_id", "data.userId", "data.user_id", "user.id", "data.user.id"),
		VerificationToken: lookup(resp.Body, "verificationToken", "verification_token", "data.verificationToken", "data.verification_token"),
	}
	if res.UserID == "" {
		return nil, apierr.New(apierr.Unknown, "sign-up response carried no user id", nil)
	}
	return res, nil
}

// SignIn exchanges an identifier and secret for a credential pair.
func (a *API) SignIn(ctx context.Context, identifier, secret string) (*Record, *Profile, error) {
	resp, err := a.postAnonymous(ctx, a.paths.SignIn, map[string]string{"email": identifier, "password": secret})
	if err != nil {
		return nil, nil, err
	}
	return a.session(resp.Body)
}

// Social exchanges a third-party assertion for a credential pair.
func (a *API) Social(ctx context.Context, assertion ProviderAssertion) (*Record, *Profile, error) {
	resp, err := a.postAnonymous(ctx, a.paths.Social, map[string]string{"provider": assertion.Provider, "token": assertion.Token})
	if err != nil {
		return nil, nil, err
	}
	return a.session(resp.Body)
}

// Verify confirms an account with the code the user received.
func (a *API) Verify(ctx context.Context, userID, code string) (bool, error) {
	resp, err := a.postAnonymous(ctx, a.paths.Verify, map[string]string{"userId": userID, "code": code})
	if err != nil {
		return false, err
	}
	return flag(resp.Body, "verified", "success", "data.verified", "data.success"), nil
}

// ForgotPassword asks the server to send a reset token.
func (a *API) ForgotPassword(ctx context.Context, identifier string) error {
	_, err := a.postAnonymous(ctx, a.paths.ForgotPassword, map[string]string{"email": identifier})
	return err
}

// ResetPassword sets a new secret using a reset token.
func (a *API) ResetPassword(ctx context.Context, token, newSecret string) (bool, error) {
	resp, err := a.postAnonymous(ctx, a.paths.ResetPassword, map[string]string{"token": token, "password": newSecret})
	if err != nil {
		return false, err
	}
	return flag(resp.Body, "success", "reset", "data.success"), nil
}

// ExchangeRefreshToken implements Exchanger. A response without a new access
// token is a failure.
func (a *API) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*Record, error) {
	resp, err := a.postAnonymous(ctx, a.paths.Refresh, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	rec, err := a.parseRecord(resp.Body)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Logout terminates the session server-side. It carries the bearer
// credential but never triggers a refresh.
func (a *API) Logout(ctx context.Context, refreshToken string) error {
	req, err := client.NewRequest(http.MethodPost, a.paths.Logout).WithJSON(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return err
	}
	_, err = a.client.Send(ctx, req)
	return err
}

// Me fetches the authoritative profile of the signed-in user.
func (a *API) Me(ctx context.Context) (*Profile, error) {
	var raw json.RawMessage
	if err := a.client.GetJSON(ctx, a.paths.Me, nil, &raw); err != nil {
		return nil, err
	}
	p, err := parseProfile(raw)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apierr.New(apierr.Unknown, "profile response carried no user", nil)
	}
	return p, nil
}

func (a *API) session(body []byte) (*Record, *Profile, error) {
	rec, err := a.parseRecord(body)
	if err != nil {
		return nil, nil, err
	}
	var p *Profile
	for _, path := range []string{"user", "data.user"} {
		if v := gjson.GetBytes(body, path); v.IsObject() {
			if p, err = parseProfile([]byte(v.Raw)); err != nil {
				return nil, nil, err
			}
			break
		}
	}
	return rec, p, nil
}

func (a *API) parseRecord(body []byte) (*Record, error) {
	access := lookup(body, "accessToken", "access_token", "token",
		"data.accessToken", "data.access_token", "data.token",
		"tokens.accessToken", "tokens.access_token")
	if access == "" {
		return nil, apierr.New(apierr.Unknown, "response carried no access token", nil)
	}
	refresh := lookup(body, "refreshToken", "refresh_token",
		"data.refreshToken", "data.refresh_token",
		"tokens.refreshToken", "tokens.refresh_token")
	rec := NewRecord(access, refresh, a.now())
	return &rec, nil
}

func parseProfile(raw []byte) (*Profile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, apierr.New(apierr.Unknown, "malformed profile", nil)
	}
	if u := gjson.GetBytes(raw, "user"); u.IsObject() {
		raw = []byte(u.Raw)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apierr.New(apierr.Unknown, "malformed profile", fmt.Errorf("decode profile: %w", err))
	}
	if p.ID == "" {
		p.ID = gjson.GetBytes(raw, "_id").String()
	}
	if p.ID == "" && p.Email == "" {
		return nil, nil
	}
	return &p, nil
}

func lookup(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// flag reads the first boolean present; a successful response without any
// of them counts as true.
func flag(body []byte, paths ...string) bool {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.IsBool() {
			return v.Bool()
		}
	}
	return true
}
