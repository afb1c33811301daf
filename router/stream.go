package router

import (
	"context"
	"errors"

	"github.com/tensorzero/tensorzero-sub023/internal/circuitbreaker"
	"github.com/tensorzero/tensorzero-sub023/internal/logging"
	"github.com/tensorzero/tensorzero-sub023/internal/metrics"
	"github.com/tensorzero/tensorzero-sub023/providers"
)

// ErrStreamingUnsupported is returned when a binding's provider does not
// implement StreamProvider.
var ErrStreamingUnsupported = errors.New("router: provider does not support streaming")

// ErrEmptyStream is returned when a provider's stream channel closes
// before producing any chunk.
var ErrEmptyStream = errors.New("router: stream closed with no chunks")

// RouteStream executes a streaming request against bindings in order.
// A binding is only considered committed once its first chunk has been
// received without error. Each binding gets a single CompleteStream call,
// with no per-binding retries and no status classification: any failure
// before the first chunk (including an empty stream) falls through to the
// next binding, but a failure after the first chunk has already been
// forwarded to the caller is surfaced as a stream error rather than
// retried, since partial output may already be visible downstream.
func RouteStream(ctx context.Context, bindings []Binding, req providers.Request) (<-chan providers.StreamChunk, error) {
	if len(bindings) == 0 {
		return nil, ErrNoBindings
	}
	log := logging.FromContext(ctx)

	var attempts []AttemptError
	for _, b := range bindings {
		sp, ok := b.Provider.(providers.StreamProvider)
		if !ok {
			attempts = append(attempts, AttemptError{Binding: b.Name, Err: ErrStreamingUnsupported})
			continue
		}
		if b.CircuitBreaker != nil && !b.CircuitBreaker.Allow() {
			metrics.CircuitBreakerState.WithLabelValues(b.Name).Set(1)
			attempts = append(attempts, AttemptError{Binding: b.Name, Err: circuitbreaker.ErrCircuitOpen})
			continue
		}

		upstream, err := sp.CompleteStream(ctx, withModel(req, b.ModelName))
		if err != nil {
			if b.CircuitBreaker != nil {
				b.CircuitBreaker.RecordFailure()
			}
			attempts = append(attempts, AttemptError{Binding: b.Name, Err: err})
			continue
		}

		first, ok := <-upstream
		if !ok {
			attempts = append(attempts, AttemptError{Binding: b.Name, Err: ErrEmptyStream})
			continue
		}
		if first.Error != nil {
			if b.CircuitBreaker != nil {
				b.CircuitBreaker.RecordFailure()
			}
			attempts = append(attempts, AttemptError{Binding: b.Name, Err: first.Error})
			continue
		}

		// Committed: forward the first chunk and everything after it
		// without further fallback.
		if b.CircuitBreaker != nil {
			b.CircuitBreaker.RecordSuccess()
		}
		log.Info("stream committed", "binding", b.Name)
		out := make(chan providers.StreamChunk, 1)
		out <- first
		go func() {
			defer close(out)
			for chunk := range upstream {
				out <- chunk
			}
		}()
		return out, nil
	}

	return nil, &ErrExhausted{Attempts: attempts}
}
