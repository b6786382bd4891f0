package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Observer receives the result of every guarded call.
type Observer interface {
	ObserveKnowledge(result string, elapsed time.Duration)
}

// Call results reported to the Observer.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultError     = "error"
	ResultRejected  = "rejected"
)

// GuardOptions configures Guarded.
type GuardOptions struct {
	RequestsPerSecond float64
	Burst             int
	MaxFailures       uint32
	Cooldown          time.Duration
	Observer          Observer
	Logger            *slog.Logger
}

// Guarded wraps a Service with a rate limiter and a circuit breaker.
type Guarded struct {
	next     Service
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	observer Observer
}

// NewGuarded returns next protected by a limiter and a breaker.
func NewGuarded(next Service, opts GuardOptions) *Guarded {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Guarded{
		next:     next,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		observer: opts.Observer,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "knowledge-service",
			Timeout: opts.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.MaxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())
			},
		}),
	}
}

// Analyze waits for the limiter, then calls the wrapped service through the
// breaker. An open breaker fails fast with ErrUnavailable.
func (g *Guarded) Analyze(ctx context.Context, req Request) (*domain.Hints, error) {
	start := time.Now()

	if err := g.limiter.Wait(ctx); err != nil {
		g.observe(ResultRejected, start)
		return nil, fmt.Errorf("%w: rate limited: %v", ErrUnavailable, err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Analyze(ctx, req)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.observe(ResultRejected, start)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, ErrMalformedResponse):
		g.observe(ResultMalformed, start)
		return nil, err
	case err != nil:
		g.observe(ResultError, start)
		return nil, err
	}

	g.observe(ResultOK, start)
	return result.(*domain.Hints), nil
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

func (g *Guarded) observe(result string, start time.Time) {
	if g.observer != nil {
		g.observer.ObserveKnowledge(result, time.Since(start))
	}
}
