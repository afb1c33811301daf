// Package clickhouse implements store.Backend against ClickHouse, the
// primary OLAP store for inference and model_inference rows. Driver
// registration follows the gateway's own open("driver-name", dsn)
// pattern, generalized from sqlite/postgres to the clickhouse-go driver.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/tensorzero/tensorzero-sub023/store"
)

// Backend is a ClickHouse-backed store.Backend.
type Backend struct {
	db *sql.DB
}

// Open connects to ClickHouse at dsn and ensures the inference tables
// exist.
func Open(dsn string) (*Backend, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("store/clickhouse: open: %w", err)
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
		return fmt.Errorf("store/clickhouse: ping: %w", err)
	}
	ddls := []string{
		`CREATE TABLE IF NOT EXISTS inference (
			id String,
			function_name String,
			variant_name String,
			episode_id String,
			input String,
			output String,
			created_at DateTime64(3)
		) ENGINE = MergeTree ORDER BY (function_name, created_at)`,
		`CREATE TABLE IF NOT EXISTS model_inference (
			id String,
			inference_id String,
			attempt UInt32,
			model_name String,
			provider_name String,
			system String,
			input_messages String,
			raw_request String,
			raw_response String,
			output String,
			finish_reason String,
			cached UInt8,
			prompt_tokens UInt32,
			completion_tokens UInt32,
			latency_ms Int64,
			response_time_ms Int64,
			ttft_ms Int64,
			error String,
			created_at DateTime64(3)
		) ENGINE = MergeTree ORDER BY (inference_id, attempt, created_at)`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			id String,
			applied_at DateTime64(3)
		) ENGINE = MergeTree ORDER BY id`,
	}
	for _, ddl := range ddls {
		if _, err := b.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("store/clickhouse: init schema: %w", err)
		}
	}
	return store.RecordMigration(ctx, b.db, "clickhouse", "0001_init")
}

func (b *Backend) WriteInference(ctx context.Context, row store.InferenceRow) error {
	const q = `INSERT INTO inference (id, function_name, variant_name, episode_id, input, output, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := b.db.ExecContext(ctx, q,
		row.ID.String(), row.FunctionName, row.VariantName, row.EpisodeID.String(),
		string(row.Input), string(row.Output), row.CreatedAt)
	if err != nil {
		return fmt.Errorf("store/clickhouse: write inference: %w", err)
	}
	return nil
}

func (b *Backend) WriteModelInference(ctx context.Context, row store.ModelInferenceRow) error {
	const q = `INSERT INTO model_inference (
		id, inference_id, attempt, model_name, provider_name, system, input_messages,
		raw_request, raw_response, output, finish_reason, cached,
		prompt_tokens, completion_tokens, latency_ms, response_time_ms, ttft_ms, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	cached := uint8(0)
	if row.Cached {
		cached = 1
	}
	_, err := b.db.ExecContext(ctx, q,
		row.ID.String(), row.InferenceID.String(), row.Attempt, row.ModelName, row.ProviderName,
		string(row.System), string(row.InputMessages), string(row.RawRequest), string(row.RawResponse),
		string(row.Output), row.FinishReason, cached,
		row.PromptTokens, row.CompletionTokens, row.LatencyMS, row.ResponseTimeMS, row.TTFTMS,
		row.Error, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("store/clickhouse: write model_inference: %w", err)
	}
	return nil
}

func (b *Backend) Migrations(ctx context.Context) (map[string]bool, error) {
	applied, err := store.LoadMigrations(ctx, b.db)
	if err != nil {
		return nil, fmt.Errorf("store/clickhouse: migrations: %w", err)
	}
	return applied, nil
}

func (b *Backend) Close() error { return b.db.Close() }
