// Package store implements the External Store Facade: a dialect-switching
// SQL backend (ClickHouse primary, Postgres optional secondary) behind a
// single Backend interface, generalizing the gateway's sqlite/Postgres
// request-log writer to the two inference record kinds and a migration
// gate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
)

// InferenceRow is one row of the inference table: the function-level
// record of a single request/response pair.
type InferenceRow struct {
	ID           idutil.ID
	FunctionName string
	VariantName  string
	EpisodeID    idutil.ID
	Input        []byte // canonical JSON of values.Input
	Output       []byte // canonical JSON of values.Output
	CreatedAt    time.Time
}

// ModelInferenceRow is one row of the model_inference table: the
// provider-level record of a single binding attempt. Attempt is the
// 0-based, strictly increasing index of this attempt within its parent
// Inference (§3); at most one row per Inference has Cached true, and
// when present it is attempt 0.
type ModelInferenceRow struct {
	ID               idutil.ID
	InferenceID      idutil.ID
	Attempt          int
	ModelName        string
	ProviderName     string
	System           []byte // canonical JSON of the rendered system content, if any
	InputMessages    []byte // canonical JSON of the rendered message list sent to the provider
	RawRequest       []byte
	RawResponse      []byte
	Output           []byte // canonical JSON of the parsed/raw output extracted from the response
	FinishReason     string
	Cached           bool
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	ResponseTimeMS   int64 // wall-clock time from send to full response
	TTFTMS           int64 // time to first token/chunk; 0 for non-streamed calls
	Error            string // non-empty for a failed attempt; RawResponse/Output are empty in that case
	CreatedAt        time.Time
}

// Backend is the minimal persistence surface the facade needs from a
// concrete SQL driver.
type Backend interface {
	WriteInference(ctx context.Context, row InferenceRow) error
	WriteModelInference(ctx context.Context, row ModelInferenceRow) error
	Migrations(ctx context.Context) (applied map[string]bool, err error)
	Close() error
}

// Facade wraps a primary Backend and an optional secondary Backend that
// receives the same writes (a "shadow write"), used when migrating from
// one store to another without a cutover window.
type Facade struct {
	primary   Backend
	secondary Backend
}

// NewFacade builds a Facade. secondary may be nil.
func NewFacade(primary, secondary Backend) *Facade {
	return &Facade{primary: primary, secondary: secondary}
}

// WriteInference writes to the primary backend, then best-effort to the
// secondary: a secondary failure is logged by the caller via the returned
// error's Unwrap chain but never blocks or fails the primary write.
func (f *Facade) WriteInference(ctx context.Context, row InferenceRow) error {
	if err := f.primary.WriteInference(ctx, row); err != nil {
		return fmt.Errorf("store: primary write failed: %w", err)
	}
	if f.secondary != nil {
		if err := f.secondary.WriteInference(ctx, row); err != nil {
			return &ShadowWriteError{Err: err}
		}
	}
	return nil
}

// WriteModelInference mirrors WriteInference for the model_inference table.
func (f *Facade) WriteModelInference(ctx context.Context, row ModelInferenceRow) error {
	if err := f.primary.WriteModelInference(ctx, row); err != nil {
		return fmt.Errorf("store: primary write failed: %w", err)
	}
	if f.secondary != nil {
		if err := f.secondary.WriteModelInference(ctx, row); err != nil {
			return &ShadowWriteError{Err: err}
		}
	}
	return nil
}

// ShadowWriteError signals that the primary write succeeded but the
// secondary shadow write failed; callers should log it without treating
// the overall write as failed.
type ShadowWriteError struct{ Err error }

func (e *ShadowWriteError) Error() string { return fmt.Sprintf("store: shadow write failed: %v", e.Err) }
func (e *ShadowWriteError) Unwrap() error { return e.Err }

// CheckMigrations verifies that every id in expected has been applied to
// the primary backend, returning an error naming the first gap found.
func (f *Facade) CheckMigrations(ctx context.Context, expected []string) error {
	applied, err := f.primary.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("store: checking migrations: %w", err)
	}
	for _, id := range expected {
		if !applied[id] {
			return fmt.Errorf("store: migration %q not applied", id)
		}
	}
	return nil
}

// Close closes both backends, returning the first error encountered.
func (f *Facade) Close() error {
	err := f.primary.Close()
	if f.secondary != nil {
		if serr := f.secondary.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// --- shared SQL helpers, grounded on the gateway's bindPostgres pattern ---

// BindPostgres rewrites `?` placeholders to Postgres's `$N` style. Shared
// by the facade's own helpers and by concrete Backend implementations that
// issue the same `?`-style SQL against a Postgres connection.
func BindPostgres(query string) string {
	var b strings.Builder
	idx := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", idx)
			idx++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// MigrationsTableDDL returns the schema_migrations DDL for dialect
// ("postgres" or any other value, which falls back to the portable form
// SQLite and ClickHouse both accept).
func MigrationsTableDDL(dialect string) string {
	if dialect == "postgres" {
		return `CREATE TABLE IF NOT EXISTS schema_migrations (id TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`
	}
	return `CREATE TABLE IF NOT EXISTS schema_migrations (id TEXT PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`
}

// RecordMigration marks migration id as applied, tolerating re-application.
func RecordMigration(ctx context.Context, db *sql.DB, dialect, id string) error {
	query := `INSERT INTO schema_migrations(id, applied_at) VALUES(?, ?)`
	if dialect == "postgres" {
		query = BindPostgres(query)
	}
	_, err := db.ExecContext(ctx, query, id, time.Now().UTC())
	// Re-running a migration id is a no-op, not an error.
	if err != nil && strings.Contains(err.Error(), "unique") {
		return nil
	}
	return err
}

// LoadMigrations returns the set of applied migration ids.
func LoadMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, rows.Err()
}
