package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

// ProviderAssertion is a third-party identity proof handed to the API.
type ProviderAssertion struct {
	Provider string
	Token    string
}

var errEmptyAssertion = errors.New("provider token is empty")

// AssertionFromToken turns a provider's OAuth2 token into an assertion. The
// OpenID Connect id_token is preferred over the access token when present.
func AssertionFromToken(provider string, tok *oauth2.Token) (ProviderAssertion, error) {
	if tok == nil {
		return ProviderAssertion{}, errEmptyAssertion
	}
	value := tok.AccessToken
	if id, ok := tok.Extra("id_token").(string); ok && id != "" {
		value = id
	}
	if value == "" {
		return ProviderAssertion{}, errEmptyAssertion
	}
	return ProviderAssertion{Provider: strings.ToLower(strings.TrimSpace(provider)), Token: value}, nil
}

// SocialAuth establishes a session from a provider assertion. It has the
// same contract as SignIn.
func (s *Service) SocialAuth(ctx context.Context, assertion ProviderAssertion) error {
	if assertion.Provider == "" || assertion.Token == "" {
		return errEmptyAssertion
	}
	rec, profile, err := s.api.Social(ctx, assertion)
	if err != nil {
		return err
	}
	return s.establish(ctx, rec, profile, "")
}
