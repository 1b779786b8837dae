package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/AnzeMiles69/pet-chat/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// Middleware decorates a Doer.
type Middleware func(Doer) Doer

// Chain applies mws so that the first one is outermost.
func Chain(d Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

const RequestIDHeader = "X-Request-ID"

// RequestID tags each outgoing request with a fresh id unless one is set.
func RequestID() Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) == "" {
				req.Header.Set(RequestIDHeader, uuid.NewString())
			}
			return next.Do(req)
		})
	}
}

// RateLimit blocks until the limiter admits the request or its context ends.
func RateLimit(l *rate.Limiter) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			if err := l.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.Do(req)
		})
	}
}

// FollowRedirectOnce re-issues a GET that came back 307 against the
// response's Location, carrying the same headers (Authorization included).
// The second response is returned as-is; it is never followed again.
//
// The wrapped Doer must not follow redirects on its own.
func FollowRedirectOnce(next Doer) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.Do(req)
		if err != nil || resp.StatusCode != http.StatusTemporaryRedirect || req.Method != http.MethodGet {
			return resp, err
		}

		location := resp.Header.Get("Location")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if location == "" {
			return nil, fmt.Errorf("redirect from %s without Location header", req.URL.Path)
		}

		target, err := req.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect location %q: %w", location, err)
		}

		follow := req.Clone(req.Context())
		follow.URL = target
		follow.Host = ""
		metrics.RedirectsFollowed.Inc()

		return next.Do(follow)
	})
}

// noFollow makes an http.Client hand 3xx responses back to the caller.
func noFollow(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}
