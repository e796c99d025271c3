package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository defines the persistence operations for acquisition runs.
type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, outcome Outcome) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter ListFilter) ([]Run, error)
	AppendEvent(ctx context.Context, ev *RunEvent) error
	ListEvents(ctx context.Context, runID string) ([]RunEvent, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed run repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, experiment_id, started_at, finished_at, success,
	aborted, error, frames_saved, params`

// CreateRun inserts a new run in its in-progress form.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	const query = `INSERT INTO acquisition_runs (id, experiment_id, started_at, params)
		VALUES (?, ?, ?, ?)`
	params := run.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.ExperimentID,
		run.StartedAt.UTC().Format(time.RFC3339), string(params))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun closes a run with its outcome.
func (r *SQLiteRepository) FinishRun(ctx context.Context, id string, outcome Outcome) error {
	const query = `UPDATE acquisition_runs SET finished_at = ?, success = ?,
		aborted = ?, error = ?, frames_saved = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		outcome.FinishedAt.UTC().Format(time.RFC3339),
		outcome.Success, outcome.Aborted, outcome.Error, outcome.FramesSaved, id)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns a single run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM acquisition_runs WHERE id = ?`
	return scanRun(r.db.QueryRowContext(ctx, query, id))
}

// ListRuns returns runs newest first, optionally narrowed to one
// experiment and paged through Limit and Offset.
func (r *SQLiteRepository) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM acquisition_runs`
	var args []any
	if filter.ExperimentID != "" {
		query += ` WHERE experiment_id = ?`
		args = append(args, filter.ExperimentID)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}

// AppendEvent stores one timeline entry and fills in its assigned ID.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, ev *RunEvent) error {
	const query = `INSERT INTO run_events (run_id, at, kind, detail) VALUES (?, ?, ?, ?)`
	detail := ev.Detail
	if len(detail) == 0 {
		detail = json.RawMessage("{}")
	}
	result, err := r.db.ExecContext(ctx, query,
		ev.RunID, ev.At.UTC().Format(time.RFC3339), ev.Kind, string(detail))
	if err != nil {
		return fmt.Errorf("inserting run event for %s: %w", ev.RunID, err)
	}
	ev.ID, _ = result.LastInsertId() //nolint:errcheck // SQLite always supports LastInsertId
	return nil
}

// ListEvents returns a run's timeline in insertion order.
func (r *SQLiteRepository) ListEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	const query = `SELECT id, run_id, at, kind, detail FROM run_events
		WHERE run_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var ev RunEvent
		var at, detail string
		if err := rows.Scan(&ev.ID, &ev.RunID, &at, &ev.Kind, &detail); err != nil {
			return nil, fmt.Errorf("scanning run event row: %w", err)
		}
		ev.At = parseTime(at)
		ev.Detail = json.RawMessage(detail)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run event rows: %w", err)
	}
	return events, nil
}

// scanRun scans a single row into a Run (for QueryRow).
func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var startedAt, params string
	var finishedAt sql.NullString

	err := row.Scan(&run.ID, &run.ExperimentID, &startedAt, &finishedAt,
		&run.Success, &run.Aborted, &run.Error, &run.FramesSaved, &params)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	fillRunTimes(&run, startedAt, finishedAt)
	run.Params = json.RawMessage(params)
	return &run, nil
}

// scanRunRow scans a run from a Rows cursor.
func scanRunRow(rows *sql.Rows) (*Run, error) {
	var run Run
	var startedAt, params string
	var finishedAt sql.NullString

	err := rows.Scan(&run.ID, &run.ExperimentID, &startedAt, &finishedAt,
		&run.Success, &run.Aborted, &run.Error, &run.FramesSaved, &params)
	if err != nil {
		return nil, fmt.Errorf("scanning run row: %w", err)
	}
	fillRunTimes(&run, startedAt, finishedAt)
	run.Params = json.RawMessage(params)
	return &run, nil
}

func fillRunTimes(run *Run, startedAt string, finishedAt sql.NullString) {
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
