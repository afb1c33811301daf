package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
	"github.com/tensorzero/tensorzero-sub023/store"
)

type fakeBackend struct {
	mu              sync.Mutex
	inferences      []store.InferenceRow
	modelInferences []store.ModelInferenceRow
}

func (f *fakeBackend) WriteInference(ctx context.Context, row store.InferenceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inferences = append(f.inferences, row)
	return nil
}

func (f *fakeBackend) WriteModelInference(ctx context.Context, row store.ModelInferenceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelInferences = append(f.modelInferences, row)
	return nil
}

func (f *fakeBackend) Migrations(ctx context.Context) (map[string]bool, error) { return nil, nil }
func (f *fakeBackend) Close() error                                           { return nil }

func (f *fakeBackend) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inferences), len(f.modelInferences)
}

func TestWriter_EnqueueAndRun_FlushesToFacade(t *testing.T) {
	backend := &fakeBackend{}
	facade := store.NewFacade(backend, nil)
	w := New(facade, Config{ChannelSize: 8, FlushWindow: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.EnqueueInference(store.InferenceRow{ID: idutil.New(), FunctionName: "summarize"})
	w.EnqueueModelInference(store.ModelInferenceRow{ID: idutil.New(), ModelName: "gpt-4o"})

	deadline := time.After(time.Second)
	for {
		inf, mod := backend.counts()
		if inf == 1 && mod == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for flush: inferences=%d modelInferences=%d", inf, mod)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Run to stop after cancel")
	}
}

func TestWriter_Run_DrainsBufferedRowsOnCancel(t *testing.T) {
	backend := &fakeBackend{}
	facade := store.NewFacade(backend, nil)
	w := New(facade, Config{ChannelSize: 8, FlushWindow: time.Hour})

	for i := 0; i < 3; i++ {
		w.EnqueueInference(store.InferenceRow{ID: idutil.New()})
		w.EnqueueModelInference(store.ModelInferenceRow{ID: idutil.New()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Run to drain and stop")
	}

	inf, mod := backend.counts()
	if inf != 3 || mod != 3 {
		t.Fatalf("expected all 3 buffered rows of each kind to be drained, got inferences=%d modelInferences=%d", inf, mod)
	}
}

// TestWriter_EnqueueInference_DropsWhenChannelFull covers the bounded-channel
// non-blocking guarantee: a full channel drops rather than blocking the
// caller, and the drop is observable by the caller never deadlocking.
func TestWriter_EnqueueInference_DropsWhenChannelFull(t *testing.T) {
	backend := &fakeBackend{}
	facade := store.NewFacade(backend, nil)
	w := New(facade, Config{ChannelSize: 1, FlushWindow: time.Hour})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			w.EnqueueInference(store.InferenceRow{ID: idutil.New()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueueInference blocked instead of dropping on a full channel")
	}
}

func TestNew_DefaultsChannelSizeAndFlushWindow(t *testing.T) {
	backend := &fakeBackend{}
	facade := store.NewFacade(backend, nil)
	w := New(facade, Config{})
	if cap(w.inferences) != 4096 {
		t.Fatalf("expected default channel size 4096, got %d", cap(w.inferences))
	}
	if w.flushWindow != time.Second {
		t.Fatalf("expected default flush window 1s, got %v", w.flushWindow)
	}
}
