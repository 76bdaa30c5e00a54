package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"callwatch/internal/observability"
)

// Default HTTP source configuration.
const (
	DefaultHTTPTimeout = 10 * time.Second

	// DexScreener allows roughly 300 requests per minute.
	DefaultRateLimit = rate.Limit(5)
	DefaultBurst     = 5

	maxResponseBytes = 4 << 20
)

// httpSource is the shared transport for JSON price APIs: rate limited and
// guarded by a circuit breaker.
type httpSource struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// Option configures an HTTP price source.
type Option func(*httpSource)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *httpSource) {
		s.client = client
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *httpSource) {
		s.client.Timeout = d
	}
}

// WithRateLimit sets the request rate and burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *httpSource) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithBreaker replaces the circuit breaker settings.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(s *httpSource) {
		if settings.Name == "" {
			settings.Name = s.name
		}
		if settings.IsSuccessful == nil {
			settings.IsSuccessful = breakerSuccess
		}
		s.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

func newHTTPSource(name, baseURL string, opts ...Option) *httpSource {
	s := &httpSource{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
		limiter: rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         name,
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			IsSuccessful: breakerSuccess,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// breakerSuccess keeps token misses from tripping the breaker.
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, ErrNotFound)
}

// getJSON issues GET baseURL+path and decodes a 200 response into out.
func (s *httpSource) getJSON(ctx context.Context, path string, out any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordOracleRequest(s.name, resultLabel(err), time.Since(start).Seconds())
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: wait for rate limiter: %w", s.name, ErrTimeout)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.do(ctx, path, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: circuit open: %w", s.name, ErrUnavailable)
	}
	return err
}

func (s *httpSource) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", s.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportError(s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return classifyStatus(s.name, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %v: %w", s.name, err, ErrUnavailable)
	}
	return nil
}

func classifyTransportError(source string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %v: %w", source, err, ErrTimeout)
	}
	return fmt.Errorf("%s: %v: %w", source, err, ErrUnavailable)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "unavailable"
	}
}
