package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds every network call that does not configure its own.
const DefaultTimeout = 15 * time.Second

// ErrNoResponse marks a call that never produced an HTTP response: dial
// failures, resets, timeouts and cancellations all wrap it.
var ErrNoResponse = errors.New("no response received")

// Request describes one outbound API call. Path is resolved against the
// transport's base URL unless it is already absolute.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	// SkipAuth leaves the bearer credential off, e.g. for the refresh exchange.
	SkipAuth bool
}

// NewRequest returns a request with an empty header set.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: http.Header{}}
}

// WithJSON encodes v as the request body and sets the content type.
func (r *Request) WithJSON(v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	r.Body = body
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set("Content-Type", "application/json")
	return r, nil
}

// clone copies everything a send may mutate, so replays start from the
// caller's original headers.
func (r *Request) clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response body: %w", err)
	}
	return nil
}

// Transport executes a single request. It returns an error only when no
// response was received; any HTTP status is a response.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the net/http backed Transport.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPTransport creates a transport for baseURL with a bounded per-call timeout.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{BaseURL: baseURL, Client: &http.Client{}, Timeout: timeout}
}

// Do sends req and reads the whole response body.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := t.resolve(req)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("url", target).Msg("Failed to create HTTP request object")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	httpClient := t.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	log.Debug().Str("method", req.Method).Str("url", target).Msg("Sending HTTP request")
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Str("method", req.Method).Str("url", target).Msg("HTTP request failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNoResponse, req.Method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %s %s: %w", ErrNoResponse, req.Method, target, err)
	}
	log.Debug().Str("method", req.Method).Str("url", target).Int("status", resp.StatusCode).Msg("HTTP request completed")
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (t *HTTPTransport) resolve(req *Request) (string, error) {
	raw := req.Path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", raw, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
