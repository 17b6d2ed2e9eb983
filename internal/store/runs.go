package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

const runTables = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	sink TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	finished_at DATETIME,
	lower_bound REAL,
	upper_bound REAL,
	statistical INTEGER,
	sample_size INTEGER,
	processed INTEGER NOT NULL DEFAULT 0,
	accepted INTEGER NOT NULL DEFAULT 0,
	written INTEGER NOT NULL DEFAULT 0,
	batches INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	report TEXT
);
CREATE TABLE IF NOT EXISTS run_rejections (
	run_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (run_id, reason)
);`

// RunStore is the sqlite run ledger: one row per run plus per-reason rejection counts.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens the ledger at path, creating its tables.
func NewRunStore(ctx context.Context, path string) (*RunStore, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, runTables); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating run tables")
	}
	return &RunStore{db: db}, nil
}

// StartRun inserts the run row.
func (s *RunStore) StartRun(ctx context.Context, run model.RunReport) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, sink, status, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.Sink, string(run.Status), run.StartedAt.UTC(), now)
	return errors.Wrapf(err, "saving run %s", run.RunID)
}

// UpdateRunStatus moves a run to status.
func (s *RunStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, runID)
	return errors.Wrapf(err, "updating run %s", runID)
}

// FinishRun stores the terminal state of a run and its rejection counts.
func (s *RunStore) FinishRun(ctx context.Context, run model.RunReport) error {
	report, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "encoding run report")
	}
	var processed, accepted int
	if run.Report != nil {
		processed, accepted = run.Report.Processed, run.Report.Accepted
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, updated_at = ?, finished_at = ?,
			lower_bound = ?, upper_bound = ?, statistical = ?, sample_size = ?,
			processed = ?, accepted = ?, written = ?, batches = ?, error = ?, report = ?
		WHERE id = ?`,
		string(run.Status), now, run.FinishedAt.UTC(),
		run.Bounds.Lower, run.Bounds.Upper, run.Bounds.Statistical, run.Bounds.SampleSize,
		processed, accepted, run.Written, run.Batches, nullString(run.Error), string(report),
		run.RunID)
	if err != nil {
		return errors.Wrapf(err, "finishing run %s", run.RunID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_rejections WHERE run_id = ?`, run.RunID); err != nil {
		return errors.Wrap(err, "clearing rejections")
	}
	if run.Report != nil {
		for _, rc := range run.Report.Summary() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_rejections (run_id, reason, count) VALUES (?, ?, ?)`,
				run.RunID, string(rc.Reason), rc.Count); err != nil {
				return errors.Wrapf(err, "saving rejections for %s", rc.Reason)
			}
		}
	}
	return errors.Wrap(tx.Commit(), "committing run")
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID         string
	Status     model.RunStatus
	Source     string
	StartedAt  time.Time
	UpdatedAt  time.Time
	Processed  int
	Accepted   int
	Written    int
	Rejections map[model.Reason]int
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, source, started_at, updated_at, processed, accepted, written
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var status string
		if err := rows.Scan(&r.ID, &status, &r.Source, &r.StartedAt, &r.UpdatedAt, &r.Processed, &r.Accepted, &r.Written); err != nil {
			return nil, errors.Wrap(err, "scanning run")
		}
		r.Status = model.RunStatus(status)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	for i := range runs {
		if runs[i].Rejections, err = s.rejections(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *RunStore) rejections(ctx context.Context, runID string) (map[model.Reason]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reason, count FROM run_rejections WHERE run_id = ?`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading rejections for %s", runID)
	}
	defer rows.Close()
	out := make(map[model.Reason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, errors.Wrap(err, "scanning rejection")
		}
		out[model.Reason(reason)] = n
	}
	return out, errors.Wrap(rows.Err(), "loading rejections")
}

// GetRun returns the stored report of a finished run, or the status row of one still going.
func (s *RunStore) GetRun(ctx context.Context, runID string) (model.RunReport, error) {
	var run model.RunReport
	var status string
	var report sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT status, source, sink, started_at, report FROM runs WHERE id = ?`, runID).
		Scan(&status, &run.Source, &run.Sink, &run.StartedAt, &report)
	if err == sql.ErrNoRows {
		return run, errors.Wrap(ErrRunNotFound, runID)
	}
	if err != nil {
		return run, errors.Wrapf(err, "loading run %s", runID)
	}
	if report.Valid && report.String != "" {
		if err := json.Unmarshal([]byte(report.String), &run); err != nil {
			return run, errors.Wrapf(err, "decoding run %s", runID)
		}
		return run, nil
	}
	run.RunID = runID
	run.Status = model.RunStatus(status)
	return run, nil
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
