package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/habedi/salonctl/auth"
	"github.com/habedi/salonctl/pkg/apierr"
)

// Exit codes.
const (
	exitFailure   = 1
	exitAuth      = 2
	exitTransient = 3
)

// describeError turns a pipeline error into a message for the terminal.
func describeError(err error) string {
	if errors.Is(err, auth.ErrNoSession) {
		return "You are not logged in. Run 'salonctl login' first."
	}
	var e *apierr.Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch e.Kind {
	case apierr.SessionExpired:
		return "Your session has expired. Please log in again."
	case apierr.Unauthorized:
		return "The server rejected your credentials."
	case apierr.Forbidden:
		return "You are not allowed to do that."
	case apierr.NotFound:
		return "Not found."
	case apierr.ValidationFailed, apierr.BadRequest:
		return withFields(messageOr(e, "The request was invalid."), e.Fields)
	case apierr.NetworkError:
		return "Could not reach the server. Check your connection and try again."
	case apierr.ServerError:
		return "The server had a problem. Please try again later."
	case apierr.RateLimited:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("Too many requests. Try again in %s.", e.RetryAfter)
		}
		return "Too many requests. Please slow down and try again."
	case apierr.StorageUnavailable:
		return "Local credential storage is unavailable: " + messageOr(e, "unknown error")
	}
	return err.Error()
}

func messageOr(e *apierr.Error, fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

func withFields(msg string, fields map[string][]string) string {
	if len(fields) == 0 {
		return msg
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(msg)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, strings.Join(fields[name], "; "))
	}
	return b.String()
}

func exitCode(err error) int {
	switch kind := apierr.KindOf(err); {
	case kind == apierr.SessionExpired, kind == apierr.Unauthorized, errors.Is(err, auth.ErrNoSession):
		return exitAuth
	case kind.Transient():
		return exitTransient
	}
	return exitFailure
}
