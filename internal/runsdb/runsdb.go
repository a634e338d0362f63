// Package runsdb keeps a queryable catalog of generated runs in SQLite.
// The per-stage index.json files remain the source of truth the jobscripts
// read; the catalog mirrors them so a whole multi-stage tree can be searched
// with one query, and records which Slurm array job each stage was handed to.
package runsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

const schema = `
CREATE TABLE IF NOT EXISTS stages (
	name       TEXT PRIMARY KEY,
	run_prefix TEXT NOT NULL,
	keys_json  TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	stage       TEXT NOT NULL REFERENCES stages(name),
	run         INTEGER NOT NULL,
	values_json TEXT NOT NULL,
	PRIMARY KEY (stage, run)
);

CREATE TABLE IF NOT EXISTS submissions (
	stage        TEXT NOT NULL REFERENCES stages(name),
	job_id       TEXT NOT NULL,
	submitted_at TEXT NOT NULL
);
`

// Catalog is a SQLite-backed record of stages, their runs, and their
// submitted array jobs. Safe for concurrent use.
type Catalog struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening run catalog: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing run catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordStage mirrors a stage's run index into the catalog, replacing any
// earlier record of the same stage.
func (c *Catalog) RecordStage(ctx context.Context, stage string, idx *space.Index) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := json.Marshal(idx.Keys)
	if err != nil {
		return fmt.Errorf("encoding stage keys: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording stage %s: %w", stage, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE stage = ?`, stage); err != nil {
		return fmt.Errorf("clearing stage %s runs: %w", stage, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stages (name, run_prefix, keys_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			run_prefix = excluded.run_prefix,
			keys_json  = excluded.keys_json`,
		stage, idx.Prefix, string(keys), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording stage %s: %w", stage, err)
	}

	for _, run := range idx.RunNumbers() {
		values, err := json.Marshal(idx.Runs[run])
		if err != nil {
			return fmt.Errorf("encoding run %d values: %w", run, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (stage, run, values_json) VALUES (?, ?, ?)`,
			stage, run, string(values),
		); err != nil {
			return fmt.Errorf("recording run %d of stage %s: %w", run, stage, err)
		}
	}

	return tx.Commit()
}

// RecordSubmission appends a submission record for a stage. A stage may be
// submitted more than once; the latest record wins on lookup.
func (c *Catalog) RecordSubmission(ctx context.Context, stage, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO submissions (stage, job_id, submitted_at) VALUES (?, ?, ?)`,
		stage, jobID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording submission of %s: %w", stage, err)
	}
	return nil
}

// LastSubmission returns the most recent array job id recorded for a stage,
// or sql.ErrNoRows if the stage was never submitted.
func (c *Catalog) LastSubmission(ctx context.Context, stage string) (string, error) {
	var jobID string
	err := c.db.QueryRowContext(ctx, `
		SELECT job_id FROM submissions
		WHERE stage = ?
		ORDER BY submitted_at DESC, rowid DESC
		LIMIT 1`, stage,
	).Scan(&jobID)
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// Stages returns the names of recorded stages in lexicographic order.
func (c *Catalog) Stages(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM stages ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing stages: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StageIndex rebuilds a stage's run index from the catalog.
func (c *Catalog) StageIndex(ctx context.Context, stage string) (*space.Index, error) {
	var prefix, keysJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT run_prefix, keys_json FROM stages WHERE name = ?`, stage,
	).Scan(&prefix, &keysJSON)
	if err != nil {
		return nil, fmt.Errorf("reading stage %s: %w", stage, err)
	}

	var keys []string
	if err := json.Unmarshal([]byte(keysJSON), &keys); err != nil {
		return nil, fmt.Errorf("decoding stage %s keys: %w", stage, err)
	}

	idx := space.NewIndex(prefix, keys, nil)

	rows, err := c.db.QueryContext(ctx,
		`SELECT run, values_json FROM runs WHERE stage = ? ORDER BY run`, stage)
	if err != nil {
		return nil, fmt.Errorf("reading stage %s runs: %w", stage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var run int
		var valuesJSON string
		if err := rows.Scan(&run, &valuesJSON); err != nil {
			return nil, fmt.Errorf("reading stage %s runs: %w", stage, err)
		}
		var values []any
		if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
			return nil, fmt.Errorf("decoding run %d values: %w", run, err)
		}
		idx.Runs[run] = values
	}
	return idx, rows.Err()
}
