// Package llm is the single chokepoint for model calls: JSON-mode chat
// completions, exponential backoff, rate pacing, and a daily request budget.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/LifeLens/internal/metrics"
)

// Message is one (role, content) pair in a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options control a single gateway call.
type Options struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Provider sends one chat-completion request and returns the first choice.
type Provider interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	IsConfigured() bool
}

// ErrDailyBudget is returned when the daily request ceiling is exhausted.
// The run aborts rather than blocking until the next day.
var ErrDailyBudget = errors.New("daily LLM request budget exhausted")

// APIError is a non-200 response from the provider.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports an HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == 429 }

// IsTransient reports a retryable server-side failure.
func (e *APIError) IsTransient() bool { return e.StatusCode >= 500 }

// IsPermanent reports a client error that retrying cannot fix.
func (e *APIError) IsPermanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

// The first two 429s of a call are retried without consuming the general
// retry budget; a provider-wide storm should not dead-letter jobs.
const freeRateLimitRetries = 2

// Gateway paces and retries calls against a Provider. One Gateway is shared
// by every worker in the process; its token bucket is the only process-wide
// contended resource.
type Gateway struct {
	provider   Provider
	limiter    *rate.Limiter
	maxRetries int
	dailyCap   int

	backoffBase time.Duration
	backoffCap  time.Duration

	mu   sync.Mutex
	day  string
	sent int
}

// NewGateway builds a gateway pacing requestsPerMinute with a daily ceiling
// of dailyCap requests and up to maxRetries transient retries per call.
func NewGateway(p Provider, requestsPerMinute, dailyCap, maxRetries int) *Gateway {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 50
	}
	return &Gateway{
		provider:    p,
		limiter:     rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		maxRetries:  maxRetries,
		dailyCap:    dailyCap,
		backoffBase: 2 * time.Second,
		backoffCap:  60 * time.Second,
	}
}

// SetBackoff overrides the retry backoff parameters. Tests use this to keep
// retry loops fast.
func (g *Gateway) SetBackoff(base, cap time.Duration) {
	g.backoffBase = base
	g.backoffCap = cap
}

// Call sends messages to the provider and returns the raw completion text.
// The caller parses and validates the body.
func (g *Gateway) Call(ctx context.Context, messages []Message, opts Options) (string, error) {
	attempt := 0
	rateLimited := 0

	for {
		if err := g.acquire(ctx); err != nil {
			return "", err
		}

		text, err := g.provider.Complete(ctx, messages, opts)
		if err == nil {
			metrics.LLMRequests.WithLabelValues("success").Inc()
			return text, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("llm call canceled: %w", ctx.Err())
		}

		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.IsRateLimited():
			metrics.LLMRequests.WithLabelValues("rate_limited").Inc()
			rateLimited++
			if rateLimited > freeRateLimitRetries {
				attempt++
			}
			if attempt > g.maxRetries {
				return "", fmt.Errorf("rate limited after %d attempts: %w", g.maxRetries, err)
			}
			wait := g.backoff(rateLimited - 1)
			if apiErr.RetryAfter > 0 && apiErr.RetryAfter < g.backoffCap {
				wait = apiErr.RetryAfter
			}
			log.Printf("llm: rate limited, waiting %s", wait)
			metrics.LLMRetries.Inc()
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}

		case errors.As(err, &apiErr) && apiErr.IsPermanent():
			metrics.LLMRequests.WithLabelValues("permanent").Inc()
			return "", err

		default:
			// 5xx, network error, or per-request timeout.
			metrics.LLMRequests.WithLabelValues("transient").Inc()
			attempt++
			if attempt > g.maxRetries {
				return "", fmt.Errorf("giving up after %d retries: %w", g.maxRetries, err)
			}
			wait := g.backoff(attempt - 1)
			log.Printf("llm: transient failure (%v), retrying in %s", err, wait)
			metrics.LLMRetries.Inc()
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
		}
	}
}

// acquire blocks on the token bucket and charges the daily budget.
func (g *Gateway) acquire(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate token: %w", err)
	}

	if g.dailyCap <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	if g.day != today {
		g.day = today
		g.sent = 0
	}
	if g.sent >= g.dailyCap {
		return ErrDailyBudget
	}
	g.sent++
	return nil
}

func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.backoffBase << attempt
	if d > g.backoffCap || d <= 0 {
		return g.backoffCap
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
