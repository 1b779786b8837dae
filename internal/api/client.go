package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	clog "github.com/AnzeMiles69/pet-chat/internal/log"
	"github.com/AnzeMiles69/pet-chat/internal/metrics"
	"github.com/AnzeMiles69/pet-chat/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const apiPrefix = "/api/v1"

// Client talks to the chat service. Every protected call reads its
// credential from the session Store; the Client writes the Store only on
// login and clears it on any 401.
type Client struct {
	baseURL string
	session *session.Store

	httpClient *http.Client
	limiter    *rate.Limiter
	doer       Doer
	listDoer   Doer

	onUnauthorized func()
	now            func() time.Time
	logger         zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its redirect policy is
// overridden so 307s reach FollowRedirectOnce.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		c.httpClient = &copied
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit caps outgoing requests; rps <= 0 leaves them unlimited.
func WithRateLimit(rps, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithUnauthorizedHook registers fn to run after a 401 has cleared the
// session, e.g. to send the UI back to the login view.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the service rooted at baseURL
// (e.g. http://localhost:8000).
func New(baseURL string, sess *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		session: sess,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now:    time.Now,
		logger: clog.Component("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.CheckRedirect = noFollow

	mws := []Middleware{RequestID()}
	if c.limiter != nil {
		mws = append(mws, RateLimit(c.limiter))
	}
	c.doer = Chain(c.httpClient, mws...)
	c.listDoer = FollowRedirectOnce(c.doer)

	return c
}

// Session returns the store this client reads its credential from.
func (c *Client) Session() *session.Store {
	return c.session
}

type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	// public requests never carry a credential
	public bool
	// listing requests go through FollowRedirectOnce
	listing bool
}

func (c *Client) jsonRequest(op, method, path string, payload interface{}) (request, error) {
	r := request{op: op, method: method, path: path}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return r, fmt.Errorf("%s: encode request: %w", op, err)
		}
		r.body = bytes.NewReader(body)
		r.contentType = "application/json"
	}
	return r, nil
}

// send builds, authenticates, and issues r. A nil error means a 2xx
// response whose body the caller must close.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if !r.public {
		token, ok := c.session.Credential()
		if !ok {
			return nil, fmt.Errorf("%s: %w", r.op, ErrUnauthenticated)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	doer := c.doer
	if r.listing {
		doer = c.listDoer
	}

	start := time.Now()
	resp, err := doer.Do(req)
	metrics.APIRequestDuration.WithLabelValues(r.op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(r.op, "error").Inc()
		c.logger.Error().Err(err).Str("op", r.op).Str("request_id", req.Header.Get(RequestIDHeader)).Msg("request failed")
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	metrics.APIRequestsTotal.WithLabelValues(r.op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := newError(r.op, resp)
		c.logger.Error().
			Str("op", r.op).
			Int("status", apiErr.Status).
			Str("detail", apiErr.Detail).
			Str("request_id", req.Header.Get(RequestIDHeader)).
			Msg("request rejected")
		// a rejected login says nothing about the stored credential
		if resp.StatusCode == http.StatusUnauthorized && !r.public {
			c.invalidate(ctx)
		}
		return nil, apiErr
	}

	return resp, nil
}

// invalidate drops the credential after a 401, whichever call received it.
func (c *Client) invalidate(ctx context.Context) {
	if !c.session.IsAuthenticated() {
		return
	}
	metrics.SessionInvalidations.Inc()
	if err := c.session.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear session after 401")
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

func (c *Client) sendJSON(ctx context.Context, r request, out interface{}) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", r.op, err)
	}
	return nil
}
