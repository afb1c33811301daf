// Package postgres implements store.Backend against Postgres via
// github.com/lib/pq, the gateway's own dependency, reused here as the
// facade's optional secondary store rather than dropped.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/tensorzero/tensorzero-sub023/store"
)

// Backend is a Postgres-backed store.Backend.
type Backend struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and ensures the inference tables exist.
func Open(dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: open: %w", err)
	}
	b := &Backend{db: db}
	if err := b.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store/postgres: ping: %w", err)
	}
	ddls := []string{
		`CREATE TABLE IF NOT EXISTS inference (
			id TEXT PRIMARY KEY,
			function_name TEXT NOT NULL,
			variant_name TEXT NOT NULL,
			episode_id TEXT NOT NULL,
			input JSONB NOT NULL,
			output JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS model_inference (
			id TEXT PRIMARY KEY,
			inference_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			model_name TEXT NOT NULL,
			provider_name TEXT NOT NULL,
			system JSONB,
			input_messages JSONB,
			raw_request JSONB NOT NULL,
			raw_response JSONB,
			output JSONB,
			finish_reason TEXT,
			cached BOOLEAN NOT NULL DEFAULT FALSE,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			latency_ms BIGINT NOT NULL,
			response_time_ms BIGINT NOT NULL DEFAULT 0,
			ttft_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		store.MigrationsTableDDL("postgres"),
	}
	for _, ddl := range ddls {
		if _, err := b.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("store/postgres: init schema: %w", err)
		}
	}
	return store.RecordMigration(ctx, b.db, "postgres", "0001_init")
}

func (b *Backend) WriteInference(ctx context.Context, row store.InferenceRow) error {
	q := store.BindPostgres(`INSERT INTO inference (id, function_name, variant_name, episode_id, input, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`)
	_, err := b.db.ExecContext(ctx, q,
		row.ID.String(), row.FunctionName, row.VariantName, row.EpisodeID.String(),
		row.Input, row.Output, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("store/postgres: write inference: %w", err)
	}
	return nil
}

func (b *Backend) WriteModelInference(ctx context.Context, row store.ModelInferenceRow) error {
	q := store.BindPostgres(`INSERT INTO model_inference (
			id, inference_id, attempt, model_name, provider_name, system, input_messages,
			raw_request, raw_response, output, finish_reason, cached,
			prompt_tokens, completion_tokens, latency_ms, response_time_ms, ttft_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`)
	_, err := b.db.ExecContext(ctx, q,
		row.ID.String(), row.InferenceID.String(), row.Attempt, row.ModelName, row.ProviderName,
		row.System, row.InputMessages, row.RawRequest, row.RawResponse, row.Output,
		row.FinishReason, row.Cached, row.PromptTokens, row.CompletionTokens, row.LatencyMS,
		row.ResponseTimeMS, row.TTFTMS, row.Error, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("store/postgres: write model_inference: %w", err)
	}
	return nil
}

func (b *Backend) Migrations(ctx context.Context) (map[string]bool, error) {
	applied, err := store.LoadMigrations(ctx, b.db)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: migrations: %w", err)
	}
	return applied, nil
}

func (b *Backend) Close() error { return b.db.Close() }
