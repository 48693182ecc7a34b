package apierr

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// FromStatus maps an HTTP status code onto the taxonomy. Success codes have
// no kind and report the empty string.
func FromStatus(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusBadRequest:
		return BadRequest
	case status == http.StatusUnauthorized:
		return Unauthorized
	case status == http.StatusForbidden:
		return Forbidden
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusUnprocessableEntity:
		return ValidationFailed
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status >= 400 && status < 500:
		return BadRequest
	case status >= 500 && status < 600:
		return ServerError
	}
	return Unknown
}

// Map classifies one transport outcome. A non-nil transportErr means no
// response was received and always yields NetworkError. Otherwise a 2xx
// status yields nil and every other status yields exactly one kind. The body
// only contributes message and field detail; it never changes the kind.
func Map(status int, header http.Header, body []byte, transportErr error) error {
	if transportErr != nil {
		return &Error{Kind: NetworkError, Message: "no response received", Err: transportErr}
	}
	kind := FromStatus(status)
	if kind == "" {
		return nil
	}
	e := &Error{Kind: kind, Status: status}
	if len(body) > 0 && gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		e.Message = messageOf(parsed)
		e.Fields = fieldsOf(parsed)
	}
	if e.Message == "" {
		e.Message = strings.ToLower(http.StatusText(status))
	}
	if kind == RateLimited {
		e.RetryAfter = retryAfter(header)
	}
	return e
}

func messageOf(body gjson.Result) string {
	for _, path := range []string{"message", "error_description", "error.message", "error", "detail"} {
		if v := body.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// fieldsOf accepts both {"errors":{"email":["taken"]}} and
// {"errors":[{"field":"email","message":"taken"}]}.
func fieldsOf(body gjson.Result) map[string][]string {
	errs := body.Get("errors")
	if !errs.Exists() {
		return nil
	}
	fields := make(map[string][]string)
	switch {
	case errs.IsObject():
		errs.ForEach(func(key, value gjson.Result) bool {
			if value.IsArray() {
				for _, msg := range value.Array() {
					fields[key.String()] = append(fields[key.String()], msg.String())
				}
			} else {
				fields[key.String()] = append(fields[key.String()], value.String())
			}
			return true
		})
	case errs.IsArray():
		for _, item := range errs.Array() {
			field := firstString(item, "field", "path", "param")
			msg := firstString(item, "message", "msg")
			if field == "" || msg == "" {
				continue
			}
			fields[field] = append(fields[field], msg)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func retryAfter(header http.Header) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
