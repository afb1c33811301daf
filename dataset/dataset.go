// Package dataset implements the interface-level Datasets surface:
// curated collections of input/output pairs (datapoints) used for
// evaluation and optimization, stored append-only with a staling
// watermark rather than physical deletes — the same versioning discipline
// the gateway's admin config history uses for configuration snapshots.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
)

// Datapoint is one labeled example within a dataset.
type Datapoint struct {
	ID           idutil.ID
	DatasetName  string
	FunctionName string
	Input        []byte // canonical JSON of values.Input
	Output       []byte // canonical JSON of values.Output, nil if unlabeled
	CreatedAt    time.Time
	StaledAt     *time.Time
}

// Store persists datapoints.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open *sql.DB and ensures the dataset tables exist.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	const ddl = `CREATE TABLE IF NOT EXISTS datapoints (
		id TEXT PRIMARY KEY,
		dataset_name TEXT NOT NULL,
		function_name TEXT NOT NULL,
		input BLOB NOT NULL,
		output BLOB,
		created_at TIMESTAMP NOT NULL,
		staled_at TIMESTAMP
	)`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("dataset: init schema: %w", err)
	}
	return nil
}

// CreateDatapoints inserts a batch of datapoints, assigning fresh ids to
// any that don't already have one.
func (s *Store) CreateDatapoints(ctx context.Context, points []Datapoint) error {
	for i := range points {
		if points[i].ID.IsZero() {
			points[i].ID = idutil.New()
		}
		if points[i].CreatedAt.IsZero() {
			points[i].CreatedAt = time.Now().UTC()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO datapoints (id, dataset_name, function_name, input, output, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			points[i].ID.String(), points[i].DatasetName, points[i].FunctionName,
			points[i].Input, points[i].Output, points[i].CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("dataset: inserting datapoint: %w", err)
		}
	}
	return nil
}

// DeleteDatapoints marks the given datapoint ids as staled as of now; rows
// are never physically removed so historical evaluation runs that
// referenced them remain reproducible.
func (s *Store) DeleteDatapoints(ctx context.Context, ids []idutil.ID) error {
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE datapoints SET staled_at = ? WHERE id = ? AND staled_at IS NULL`, now, id.String(),
		); err != nil {
			return fmt.Errorf("dataset: staling datapoint %s: %w", id, err)
		}
	}
	return nil
}

// DeleteDataset stales every datapoint belonging to name.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE datapoints SET staled_at = ? WHERE dataset_name = ? AND staled_at IS NULL`, now, name,
	); err != nil {
		return fmt.Errorf("dataset: staling dataset %s: %w", name, err)
	}
	return nil
}

// List returns every non-staled datapoint in name.
func (s *Store) List(ctx context.Context, name string) ([]Datapoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_name, function_name, input, output, created_at FROM datapoints WHERE dataset_name = ? AND staled_at IS NULL`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("dataset: listing %s: %w", name, err)
	}
	defer rows.Close()

	var out []Datapoint
	for rows.Next() {
		var d Datapoint
		var idStr string
		if err := rows.Scan(&idStr, &d.DatasetName, &d.FunctionName, &d.Input, &d.Output, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("dataset: scanning row: %w", err)
		}
		parsed, err := idutil.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("dataset: parsing id: %w", err)
		}
		d.ID = parsed
		out = append(out, d)
	}
	return out, rows.Err()
}
