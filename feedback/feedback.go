// Package feedback implements the interface-level Feedback surface: a
// metric observation attached to either an inference or an episode,
// recorded append-only against the external store. Structured the way the
// gateway's admin API records config-history entries — never overwritten,
// always appended with a fresh id.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

// MetricType distinguishes the two supported metric shapes.
type MetricType string

const (
	MetricBoolean MetricType = "boolean"
	MetricFloat   MetricType = "float"
)

// Level identifies whether a metric targets a single inference or an
// entire episode (a sequence of related inferences).
type Level string

const (
	LevelInference Level = "inference"
	LevelEpisode   Level = "episode"
)

// Feedback is one metric observation.
type Feedback struct {
	ID         idutil.ID
	MetricName string
	Type       MetricType
	Level      Level
	TargetID   idutil.ID // inference id or episode id, per Level
	BoolValue  bool
	FloatValue float64
	CreatedAt  time.Time
}

// Store persists Feedback. One sub-table per metric type mirrors the
// gateway admin store's per-entity-kind table split.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLiteStore opens (or creates) a SQLite-backed feedback store, the
// same local metadata store the gateway's own admin config history uses.
func NewSQLiteStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "feedback.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("feedback: opening sqlite store: %w", err)
	}
	return newStore(db, dialectSQLite)
}

// NewPostgresStore opens a Postgres-backed feedback store.
func NewPostgresStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("feedback: opening postgres store: %w", err)
	}
	return newStore(db, dialectPostgres)
}

func newStore(db *sql.DB, d dialect) (*Store, error) {
	s := &Store{db: db, dialect: d}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	ddls := []string{
		`CREATE TABLE IF NOT EXISTS boolean_metric_feedback (
			id TEXT PRIMARY KEY, metric_name TEXT NOT NULL, level TEXT NOT NULL,
			target_id TEXT NOT NULL, value BOOLEAN NOT NULL, created_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS float_metric_feedback (
			id TEXT PRIMARY KEY, metric_name TEXT NOT NULL, level TEXT NOT NULL,
			target_id TEXT NOT NULL, value DOUBLE PRECISION NOT NULL, created_at TIMESTAMP NOT NULL)`,
	}
	for _, ddl := range ddls {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("feedback: init schema: %w", err)
		}
	}
	return nil
}

// Record inserts one feedback row, assigning it a fresh time-ordered id if
// one was not already set.
func (s *Store) Record(ctx context.Context, fb Feedback) (idutil.ID, error) {
	if fb.ID.IsZero() {
		fb.ID = idutil.New()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	table := "float_metric_feedback"
	if fb.Type == MetricBoolean {
		table = "boolean_metric_feedback"
	}
	value := interface{}(fb.FloatValue)
	if fb.Type == MetricBoolean {
		value = fb.BoolValue
	}

	q := fmt.Sprintf(`INSERT INTO %s (id, metric_name, level, target_id, value, created_at) VALUES (?, ?, ?, ?, ?, ?)`, table)
	if _, err := s.db.ExecContext(ctx, s.rebind(q),
		fb.ID.String(), fb.MetricName, string(fb.Level), fb.TargetID.String(), value, fb.CreatedAt,
	); err != nil {
		return idutil.ID{}, fmt.Errorf("feedback: recording %s: %w", fb.MetricName, err)
	}
	return fb.ID, nil
}

// rebind rewrites `?` placeholders to Postgres's `$N` style; SQLite accepts
// `?` directly so this is a no-op under dialectSQLite.
func (s *Store) rebind(q string) string {
	if s.dialect != dialectPostgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	idx := 1
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			fmt.Fprintf(&b, "$%d", idx)
			idx++
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
