package feedback

import (
	"context"
	"testing"

	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.db.Close() })
	return s
}

func TestRecord_AssignsIDAndTimestampWhenUnset(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Record(context.Background(), Feedback{
		MetricName: "thumbs_up",
		Type:       MetricBoolean,
		Level:      LevelInference,
		TargetID:   idutil.New(),
		BoolValue:  true,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id.IsZero() {
		t.Fatal("expected a fresh id to be assigned")
	}
}

func TestRecord_PreservesCallerSuppliedID(t *testing.T) {
	s := newTestStore(t)
	want := idutil.New()
	got, err := s.Record(context.Background(), Feedback{
		ID:         want,
		MetricName: "latency_ok",
		Type:       MetricBoolean,
		Level:      LevelEpisode,
		TargetID:   idutil.New(),
		BoolValue:  false,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got != want {
		t.Fatalf("expected the caller-supplied id to be preserved, got %v want %v", got, want)
	}
}

func TestRecord_FloatMetricRoutesToFloatTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Record(context.Background(), Feedback{
		MetricName: "helpfulness",
		Type:       MetricFloat,
		Level:      LevelInference,
		TargetID:   idutil.New(),
		FloatValue: 0.87,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM float_metric_feedback WHERE metric_name = 'helpfulness'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row in float_metric_feedback, got %d", count)
	}
}

func TestRebind_NoOpUnderSQLite(t *testing.T) {
	s := &Store{dialect: dialectSQLite}
	q := "SELECT * FROM t WHERE id = ?"
	if got := s.rebind(q); got != q {
		t.Fatalf("expected sqlite rebind to be a no-op, got %q", got)
	}
}

func TestRebind_RewritesPlaceholdersUnderPostgres(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	got := s.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
