package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 16 << 20

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// StatusError is returned for a non-2xx response that is not retried.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", errUnexpected, e.Code)
}

func (e *StatusError) Unwrap() error {
	return errUnexpected
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

func defaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Option customizes an adapter's HTTP source.
type Option func(*httpSource)

// WithBaseURL points the adapter at a different endpoint.
func WithBaseURL(u string) Option {
	return func(s *httpSource) { s.baseURL = u }
}

// WithBackoff replaces the retry policy.
func WithBackoff(b BackoffConfig) Option {
	return func(s *httpSource) { s.httpCfg.Backoff = b }
}

// WithRateLimit paces requests to the provider.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *httpSource) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// httpSource is the HTTP plumbing shared by every adapter: one circuit breaker
// and one limiter per provider.
type httpSource struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newHTTPSource(name, baseURL string, client *http.Client, opts ...Option) *httpSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &httpSource{
		name:    name,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 10
			},
		}),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fetched is a fully read response.
type fetched struct {
	Status int
	Header http.Header
	Body   []byte
}

func (s *httpSource) do(ctx context.Context, buildRequest func() (*http.Request, error)) (fetched, error) {
	resp, err := doRequestWithResilience(ctx, s.httpCfg, s.circuit, s.limiter, buildRequest)
	if err != nil {
		return fetched{}, fmt.Errorf("%s: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetched{}, fmt.Errorf("%s: read body: %w", s.name, err)
	}
	return fetched{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (s *httpSource) get(ctx context.Context, url string, header http.Header) (fetched, error) {
	return s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	})
}

func (s *httpSource) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	f, err := s.get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(f.Body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", s.name, err)
	}
	return nil
}

func (s *httpSource) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f, err := s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(f.Body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", s.name, err)
	}
	return nil
}

// doRequestWithResilience executes the HTTP request with pacing, retries,
// exponential backoff, and a circuit breaker. Client errors other than 429 are
// returned immediately as *StatusError.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	limiter *rate.Limiter,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				resp.Body.Close()
				return nil, &StatusError{Code: resp.StatusCode}
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// isAuthFailure reports whether err is a 401 or 403 from the provider.
func isAuthFailure(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden
}
