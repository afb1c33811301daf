// Package router implements the Model Router: given a variant's ordered
// list of model bindings, it selects the first available, circuit-closed
// binding, issues the call, and falls through to the next binding on a
// retryable failure.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tensorzero/tensorzero-sub023/internal/circuitbreaker"
	"github.com/tensorzero/tensorzero-sub023/internal/logging"
	"github.com/tensorzero/tensorzero-sub023/internal/metrics"
	"github.com/tensorzero/tensorzero-sub023/providers"
)

// Binding names one model as reachable through one provider, with its own
// retry and circuit-breaker policy. A variant's "model" resolves to an
// ordered list of Bindings; the router falls through the list on failure.
type Binding struct {
	Name           string // binding identifier, e.g. "openai/gpt-4o"
	Provider       providers.Provider
	ModelName      string // the model name to send to Provider
	MaxRetries     int
	Timeout        time.Duration
	CircuitBreaker *circuitbreaker.CircuitBreaker // nil disables breaking for this binding
}

// ErrNoBindings is returned when a variant has no configured bindings.
var ErrNoBindings = errors.New("router: no bindings configured")

// ErrExhausted is returned when every binding failed.
type ErrExhausted struct {
	Attempts []AttemptError
}

// AttemptError records one failed binding attempt for error breadcrumbs.
type AttemptError struct {
	Binding string
	Err     error
}

// Attempt records one actual provider call Route made, successful or not,
// in the order the calls happened — a retry against the same binding and
// a fallback to the next binding both produce their own Attempt. This is
// the unit the caller persists one ModelInference row per.
type Attempt struct {
	Binding      string
	ModelName    string
	ProviderName string
	Request      providers.Request
	Response     *providers.Response // nil when Err is set
	Err          error
	StartedAt    time.Time
	Latency      time.Duration
}

func (e *ErrExhausted) Error() string {
	if len(e.Attempts) == 0 {
		return "router: all bindings exhausted"
	}
	return fmt.Sprintf("router: all bindings exhausted, last error on %s: %v",
		e.Attempts[len(e.Attempts)-1].Binding, e.Attempts[len(e.Attempts)-1].Err)
}

func (e *ErrExhausted) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// retryableStatus reports whether an HTTP status from a provider warrants
// falling through to the next binding (server errors and 429) versus
// surfacing immediately to the caller (other 4xx — a client error will
// not be fixed by trying a different model).
func retryableStatus(status int) bool {
	if status == 429 {
		return true
	}
	return status >= 500
}

// classifiable is implemented by provider errors that carry an HTTP status
// and an optional Retry-After duration. Providers that don't implement it
// are treated as always-retryable transport failures.
type classifiable interface {
	StatusCode() int
	RetryAfter() (time.Duration, bool)
}

// Route executes req against the first available binding, falling through
// on retryable errors, and returns the first success. The returned
// []Attempt records every actual provider call made along the way, in
// call order, whether it succeeded or failed — a retry against the same
// binding and a fallback to the next binding each produce their own
// Attempt. A binding skipped because its circuit breaker is open makes no
// provider call and is not recorded as an Attempt, only as an
// AttemptError breadcrumb on eventual exhaustion.
func Route(ctx context.Context, bindings []Binding, req providers.Request) (*providers.Response, []Attempt, error) {
	if len(bindings) == 0 {
		return nil, nil, ErrNoBindings
	}
	log := logging.FromContext(ctx)

	var errBreadcrumbs []AttemptError
	var attempts []Attempt
	for _, b := range bindings {
		if b.CircuitBreaker != nil && !b.CircuitBreaker.Allow() {
			metrics.CircuitBreakerState.WithLabelValues(b.Name).Set(1)
			errBreadcrumbs = append(errBreadcrumbs, AttemptError{Binding: b.Name, Err: circuitbreaker.ErrCircuitOpen})
			continue
		}

		maxRetries := b.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		var bindingErr error
		for attempt := 0; attempt < maxRetries; attempt++ {
			if attempt > 0 {
				if err := wait(ctx, backoff(attempt)); err != nil {
					return nil, attempts, err
				}
				log.Info("retrying binding", "binding", b.Name, "attempt", attempt+1)
			}

			callCtx := ctx
			var cancel context.CancelFunc
			if b.Timeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, b.Timeout)
			}
			attemptReq := withModel(req, b.ModelName)
			attemptStart := time.Now()
			resp, err := b.Provider.Complete(callCtx, attemptReq)
			if cancel != nil {
				cancel()
			}
			latency := time.Since(attemptStart)
			metrics.RequestDuration.WithLabelValues(b.Provider.Name(), b.ModelName).Observe(latency.Seconds())

			if err == nil {
				if b.CircuitBreaker != nil {
					b.CircuitBreaker.RecordSuccess()
					metrics.CircuitBreakerState.WithLabelValues(b.Name).Set(0)
				}
				resp.Provider = b.Provider.Name()
				metrics.RequestsTotal.WithLabelValues(b.Provider.Name(), b.ModelName, "success").Inc()
				metrics.TokensInput.WithLabelValues(b.Provider.Name(), b.ModelName).Add(float64(resp.Usage.PromptTokens))
				metrics.TokensOutput.WithLabelValues(b.Provider.Name(), b.ModelName).Add(float64(resp.Usage.CompletionTokens))
				attempts = append(attempts, Attempt{
					Binding: b.Name, ModelName: b.ModelName, ProviderName: b.Provider.Name(),
					Request: attemptReq, Response: resp, StartedAt: attemptStart, Latency: latency,
				})
				return resp, attempts, nil
			}

			metrics.RequestsTotal.WithLabelValues(b.Provider.Name(), b.ModelName, "error").Inc()
			attempts = append(attempts, Attempt{
				Binding: b.Name, ModelName: b.ModelName, ProviderName: b.Provider.Name(),
				Request: attemptReq, Err: err, StartedAt: attemptStart, Latency: latency,
			})
			bindingErr = err
			if rt, ok := err.(retryAfterWaiter); ok {
				if d, hasWait := rt.RetryAfter(); hasWait {
					if werr := wait(ctx, d); werr != nil {
						return nil, attempts, werr
					}
				}
			}
			if !isRetryable(err) {
				// A client error will not be fixed by another binding.
				return nil, attempts, err
			}
		}

		if b.CircuitBreaker != nil {
			b.CircuitBreaker.RecordFailure()
			metrics.CircuitBreakerState.WithLabelValues(b.Name).Set(float64(b.CircuitBreaker.State()))
		}
		metrics.ProviderErrors.WithLabelValues(b.Provider.Name(), "provider_error").Inc()
		errBreadcrumbs = append(errBreadcrumbs, AttemptError{Binding: b.Name, Err: bindingErr})
	}

	return nil, attempts, &ErrExhausted{Attempts: errBreadcrumbs}
}

type retryAfterWaiter interface {
	RetryAfter() (time.Duration, bool)
}

// isRetryable classifies an error as worth falling through to the next
// binding. Errors that carry a status code use retryableStatus; any other
// error (transport failure, timeout) is treated as retryable.
func isRetryable(err error) bool {
	var c classifiable
	if errors.As(err, &c) {
		return retryableStatus(c.StatusCode())
	}
	return true
}

func withModel(req providers.Request, model string) providers.Request {
	req.Model = model
	return req
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt-1))) * 100 * time.Millisecond
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
