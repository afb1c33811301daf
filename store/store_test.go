package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
)

type fakeBackend struct {
	mu                sync.Mutex
	inferences        []InferenceRow
	modelInferences   []ModelInferenceRow
	writeInferenceErr error
	writeModelErr     error
	applied           map[string]bool
}

func (f *fakeBackend) WriteInference(ctx context.Context, row InferenceRow) error {
	if f.writeInferenceErr != nil {
		return f.writeInferenceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inferences = append(f.inferences, row)
	return nil
}

func (f *fakeBackend) WriteModelInference(ctx context.Context, row ModelInferenceRow) error {
	if f.writeModelErr != nil {
		return f.writeModelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelInferences = append(f.modelInferences, row)
	return nil
}

func (f *fakeBackend) Migrations(ctx context.Context) (map[string]bool, error) {
	return f.applied, nil
}

func (f *fakeBackend) Close() error { return nil }

func TestFacade_WriteInference_NoSecondary(t *testing.T) {
	primary := &fakeBackend{}
	f := NewFacade(primary, nil)
	row := InferenceRow{ID: idutil.New(), FunctionName: "summarize"}
	if err := f.WriteInference(context.Background(), row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.inferences) != 1 {
		t.Fatalf("expected 1 row written to primary, got %d", len(primary.inferences))
	}
}

func TestFacade_WriteInference_PrimaryFailureIsFatal(t *testing.T) {
	primary := &fakeBackend{writeInferenceErr: errors.New("boom")}
	f := NewFacade(primary, nil)
	if err := f.WriteInference(context.Background(), InferenceRow{}); err == nil {
		t.Fatal("expected a primary write failure to surface")
	}
}

func TestFacade_WriteModelInference_ShadowWriteFailureIsNonFatal(t *testing.T) {
	primary := &fakeBackend{}
	secondary := &fakeBackend{writeModelErr: errors.New("shadow down")}
	f := NewFacade(primary, secondary)

	err := f.WriteModelInference(context.Background(), ModelInferenceRow{ID: idutil.New()})
	if err == nil {
		t.Fatal("expected a ShadowWriteError to be returned")
	}
	var swErr *ShadowWriteError
	if !errors.As(err, &swErr) {
		t.Fatalf("expected a *ShadowWriteError, got %T: %v", err, err)
	}
	if len(primary.modelInferences) != 1 {
		t.Fatalf("expected the primary write to still succeed, got %d rows", len(primary.modelInferences))
	}
}

func TestFacade_WriteModelInference_SecondaryMirrorsPrimary(t *testing.T) {
	primary := &fakeBackend{}
	secondary := &fakeBackend{}
	f := NewFacade(primary, secondary)
	row := ModelInferenceRow{ID: idutil.New(), ModelName: "gpt-4o"}
	if err := f.WriteModelInference(context.Background(), row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secondary.modelInferences) != 1 {
		t.Fatalf("expected the secondary to receive the shadow write, got %d rows", len(secondary.modelInferences))
	}
}

func TestFacade_CheckMigrations_ReportsFirstGap(t *testing.T) {
	primary := &fakeBackend{applied: map[string]bool{"0001_init": true}}
	f := NewFacade(primary, nil)
	if err := f.CheckMigrations(context.Background(), []string{"0001_init"}); err != nil {
		t.Fatalf("unexpected error for a fully-applied set: %v", err)
	}
	if err := f.CheckMigrations(context.Background(), []string{"0001_init", "0002_add_cache"}); err == nil {
		t.Fatal("expected an error naming the missing migration")
	}
}

func TestFacade_Close_ClosesBothBackends(t *testing.T) {
	primary := &fakeBackend{}
	secondary := &fakeBackend{}
	f := NewFacade(primary, secondary)
	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBindPostgres_RewritesPlaceholdersInOrder(t *testing.T) {
	got := BindPostgres("INSERT INTO t (a, b, c) VALUES (?, ?, ?)")
	want := "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBindPostgres_NoPlaceholders(t *testing.T) {
	got := BindPostgres("SELECT 1")
	if got != "SELECT 1" {
		t.Fatalf("expected an unchanged query, got %q", got)
	}
}
