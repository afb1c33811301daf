// Package persist implements the Persistence Writer: a bounded channel
// plus background flush goroutines that drain inference and
// model-inference rows to the External Store Facade, dropping and
// counting writes when the channel is full rather than blocking the
// request path. Each row is written to the facade as it is received;
// rows are not batched.
package persist

import (
	"context"
	"sync"
	"time"

	"github.com/tensorzero/tensorzero-sub023/internal/logging"
	"github.com/tensorzero/tensorzero-sub023/internal/metrics"
	"github.com/tensorzero/tensorzero-sub023/store"
)

// Writer owns the bounded channel and flush loop. Construct with New and
// call Run in a background goroutine; Enqueue* from request-handling
// goroutines never blocks.
type Writer struct {
	facade      *store.Facade
	inferences  chan store.InferenceRow
	modelInfers chan store.ModelInferenceRow
	flushWindow time.Duration
	wg          sync.WaitGroup
}

// Config controls the writer's channel sizing. FlushWindow is stored on
// the Writer but does not affect when rows are written: the drain loops
// write one row at a time as it arrives, with no batching or timed flush.
type Config struct {
	ChannelSize int
	FlushWindow time.Duration
}

// New constructs a Writer. Zero-value Config fields take sensible defaults
// (channel 4096, flush window 1s; the flush window is recorded only).
func New(facade *store.Facade, cfg Config) *Writer {
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 4096
	}
	if cfg.FlushWindow <= 0 {
		cfg.FlushWindow = time.Second
	}
	return &Writer{
		facade:      facade,
		inferences:  make(chan store.InferenceRow, cfg.ChannelSize),
		modelInfers: make(chan store.ModelInferenceRow, cfg.ChannelSize),
		flushWindow: cfg.FlushWindow,
	}
}

// EnqueueInference attempts a non-blocking send. If the channel is full
// the row is dropped and gateway_persist_dropped_rows_total is incremented.
func (w *Writer) EnqueueInference(row store.InferenceRow) {
	select {
	case w.inferences <- row:
	default:
		metrics.PersistDropped.WithLabelValues("inference").Inc()
	}
}

// EnqueueModelInference is the model_inference counterpart of EnqueueInference.
func (w *Writer) EnqueueModelInference(row store.ModelInferenceRow) {
	select {
	case w.modelInfers <- row:
	default:
		metrics.PersistDropped.WithLabelValues("model_inference").Inc()
	}
}

// Run drains both channels, flushing each row to the store facade as it
// arrives, and stops when ctx is cancelled after draining whatever is
// already buffered.
func (w *Writer) Run(ctx context.Context) {
	w.wg.Add(2)
	go w.drainInferences(ctx)
	go w.drainModelInferences(ctx)
	w.wg.Wait()
}

func (w *Writer) drainInferences(ctx context.Context) {
	defer w.wg.Done()
	log := logging.Logger
	for {
		select {
		case <-ctx.Done():
			w.flushRemainingInferences(log)
			return
		case row := <-w.inferences:
			if err := w.facade.WriteInference(ctx, row); err != nil {
				log.Error("persist: inference write failed", "error", err.Error())
			}
		}
	}
}

func (w *Writer) flushRemainingInferences(log interface {
	Error(string, ...any)
}) {
	for {
		select {
		case row := <-w.inferences:
			if err := w.facade.WriteInference(context.Background(), row); err != nil {
				log.Error("persist: inference drain write failed", "error", err.Error())
			}
		default:
			return
		}
	}
}

func (w *Writer) drainModelInferences(ctx context.Context) {
	defer w.wg.Done()
	log := logging.Logger
	for {
		select {
		case <-ctx.Done():
			w.flushRemainingModelInferences(log)
			return
		case row := <-w.modelInfers:
			if err := w.facade.WriteModelInference(ctx, row); err != nil {
				log.Error("persist: model_inference write failed", "error", err.Error())
			}
		}
	}
}

func (w *Writer) flushRemainingModelInferences(log interface {
	Error(string, ...any)
}) {
	for {
		select {
		case row := <-w.modelInfers:
			if err := w.facade.WriteModelInference(context.Background(), row); err != nil {
				log.Error("persist: model_inference drain write failed", "error", err.Error())
			}
		default:
			return
		}
	}
}
