package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/rs/zerolog/log"
)

// DefaultRefreshPath identifies the refresh-token exchange endpoint.
const DefaultRefreshPath = "/auth/refresh-token"

// Recoverer restores the session after a request was rejected as
// Unauthorized. Recover returns nil when the caller should replay its request.
// Expire is called when a replayed request is rejected again; it returns the
// terminal error to surface.
type Recoverer interface {
	Recover(ctx context.Context, staleToken string) error
	Expire(ctx context.Context, staleToken string, cause error) error
}

// ErrNothingToRecover is returned by a Recoverer when the rejected request
// belonged to no session. Do then reports the original Unauthorized error.
var ErrNothingToRecover = errors.New("no session to recover")

// attempt is the per-call annotation of one logical request.
type attempt struct {
	retried bool
	token   string
}

// Client runs requests through augmentation, transport, error mapping and,
// for Do, one round of session recovery.
type Client struct {
	transport   Transport
	augmenter   *Augmenter
	recoverer   Recoverer
	refreshPath string
}

// Option configures a Client.
type Option func(*Client)

// WithRefreshPath overrides the path that identifies the refresh exchange.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.refreshPath = path
		}
	}
}

// New creates a Client. SetRecoverer must be called before Do is used
// concurrently.
func New(transport Transport, augmenter *Augmenter, opts ...Option) *Client {
	c := &Client{transport: transport, augmenter: augmenter, refreshPath: DefaultRefreshPath}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRecoverer installs the session recovery hook.
func (c *Client) SetRecoverer(r Recoverer) { c.recoverer = r }

// RefreshPath returns the path of the refresh exchange.
func (c *Client) RefreshPath() string { return c.refreshPath }

// IsRefreshExchange reports whether req targets the refresh-token exchange.
func (c *Client) IsRefreshExchange(req *Request) bool {
	path := req.Path
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.TrimRight(path, "/") == strings.TrimRight(c.refreshPath, "/")
}

// Do sends req. On the first Unauthorized it asks the Recoverer to restore
// the session and replays req once; a second Unauthorized is terminal.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	at := &attempt{}
	for {
		resp, err := c.send(ctx, req, at)
		if err == nil {
			return resp, nil
		}
		if !apierr.Is(err, apierr.Unauthorized) || c.recoverer == nil || c.IsRefreshExchange(req) {
			return resp, err
		}
		if at.retried {
			log.Warn().Str("path", req.Path).Msg("Request rejected again after session refresh")
			return resp, c.recoverer.Expire(ctx, at.token, err)
		}
		log.Debug().Str("path", req.Path).Msg("Request unauthorized, recovering session")
		if rerr := c.recoverer.Recover(ctx, at.token); rerr != nil {
			if errors.Is(rerr, ErrNothingToRecover) {
				return resp, err
			}
			return resp, rerr
		}
		at.retried = true
	}
}

// Send runs req once without session recovery. Sign-in, logout and the
// refresh exchange use it so their own 401s are reported as-is.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	return c.send(ctx, req, &attempt{})
}

func (c *Client) send(ctx context.Context, req *Request, at *attempt) (*Response, error) {
	out := req.clone()
	if c.augmenter != nil {
		token, err := c.augmenter.Augment(ctx, out)
		if err != nil {
			return nil, err
		}
		at.token = token
	}

	resp, terr := c.transport.Do(ctx, out)
	var (
		status int
		header http.Header
		body   []byte
	)
	if resp != nil {
		status, header, body = resp.StatusCode, resp.Header, resp.Body
	}
	if err := apierr.Map(status, header, body, terr); err != nil {
		log.Debug().Err(err).Str("method", out.Method).Str("path", out.Path).Msg("Request failed")
		return resp, err
	}
	return resp, nil
}

// GetJSON issues an authenticated GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	req := NewRequest(http.MethodGet, path)
	req.Query = query
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(resp.Body, out)
}

// SendJSON issues an authenticated request with a JSON body and decodes the
// response into out when out is non-nil.
func (c *Client) SendJSON(ctx context.Context, method, path string, in, out any) error {
	req := NewRequest(method, path)
	if in != nil {
		if _, err := req.WithJSON(in); err != nil {
			return err
		}
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return decodeData(resp.Body, out)
}
