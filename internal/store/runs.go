package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fuelhq/fuel/internal/ids"
)

// CreateRun inserts a new run row for a task. RunID is assigned as one
// past the task's highest existing run number.
func (s *Store) CreateRun(taskID, agent string, pid int) (*Run, error) {
	if _, err := s.GetTask(taskID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var maxRun sql.NullInt64
	if err := tx.QueryRow(
		`SELECT MAX(run_id) FROM runs WHERE task_short_id = ?`, taskID,
	).Scan(&maxRun); err != nil {
		return nil, fmt.Errorf("max run id: %w", err)
	}

	r := &Run{
		ShortID:     ids.New(ids.KindReview), // run short ids share the r- namespace
		TaskShortID: taskID,
		RunID:       int(maxRun.Int64) + 1,
		Agent:       agent,
		PID:         pid,
		StartedAt:   time.Now().UTC(),
	}

	if _, err := tx.Exec(
		`INSERT INTO runs (short_id, task_short_id, run_id, agent, pid, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ShortID, r.TaskShortID, r.RunID, r.Agent, r.PID, r.StartedAt,
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r, nil
}

// RunPatch carries optional run field updates.
type RunPatch struct {
	PID        *int
	Model      *string
	EndedAt    *time.Time
	ExitCode   *int
	CostUSD    *float64
	SessionID  *string
	Output     *string
	CommitHash *string
	Reason     *string
}

// UpdateLatestRun patches the task's latest run, identified by max
// started_at (run_id breaks ties).
func (s *Store) UpdateLatestRun(taskID string, patch RunPatch) (*Run, error) {
	r, err := s.LatestRun(taskID)
	if err != nil {
		return nil, err
	}
	return s.updateRun(r, patch)
}

// UpdateRun patches a run by its short id.
func (s *Store) UpdateRun(runShortID string, patch RunPatch) (*Run, error) {
	r, err := s.GetRun(runShortID)
	if err != nil {
		return nil, err
	}
	return s.updateRun(r, patch)
}

func (s *Store) updateRun(r *Run, patch RunPatch) (*Run, error) {
	if patch.PID != nil {
		r.PID = *patch.PID
	}
	if patch.Model != nil {
		r.Model = *patch.Model
	}
	if patch.EndedAt != nil {
		r.EndedAt = patch.EndedAt
	}
	if patch.ExitCode != nil {
		r.ExitCode = patch.ExitCode
	}
	if patch.CostUSD != nil {
		r.CostUSD = patch.CostUSD
	}
	if patch.SessionID != nil {
		r.SessionID = *patch.SessionID
	}
	if patch.Output != nil {
		r.Output = *patch.Output
	}
	if patch.CommitHash != nil {
		r.CommitHash = *patch.CommitHash
	}
	if patch.Reason != nil {
		r.Reason = *patch.Reason
	}

	var endedAt, exitCode, costUSD any
	if r.EndedAt != nil {
		endedAt = *r.EndedAt
	}
	if r.ExitCode != nil {
		exitCode = *r.ExitCode
	}
	if r.CostUSD != nil {
		costUSD = *r.CostUSD
	}

	_, err := s.db.Exec(
		`UPDATE runs SET pid = ?, model = ?, ended_at = ?, exit_code = ?, cost_usd = ?,
		 session_id = ?, output = ?, commit_hash = ?, reason = ?
		 WHERE short_id = ?`,
		r.PID, r.Model, endedAt, exitCode, costUSD, r.SessionID, r.Output,
		r.CommitHash, r.Reason, r.ShortID,
	)
	if err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	return r, nil
}

const runColumns = `short_id, task_short_id, run_id, agent, model, pid, started_at,
	ended_at, exit_code, cost_usd, session_id, output, commit_hash, reason`

// GetRun returns a run by its short id.
func (s *Store) GetRun(shortID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE short_id = ?`, shortID)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", shortID, ErrNotFound)
	}
	return r, err
}

// LatestRun returns the task's most recent run.
func (s *Store) LatestRun(taskID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE task_short_id = ?
		 ORDER BY started_at DESC, run_id DESC LIMIT 1`, taskID,
	)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no runs for task %s: %w", taskID, ErrNotFound)
	}
	return r, err
}

// ListRuns returns runs, newest first. taskID filters to one task when
// non-empty; limit caps the result when positive.
func (s *Store) ListRuns(taskID string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if taskID != "" {
		query += ` WHERE task_short_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY started_at DESC, run_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RecentRuns returns the last limit runs across all tasks, oldest
// first, for rebuilding health state at startup.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	runs, err := s.ListRuns("", limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

// OpenRuns returns runs with no ended_at, oldest first. The recovery
// sweep uses this to find children orphaned by a daemon crash.
func (s *Store) OpenRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT ` + runColumns + ` FROM runs WHERE ended_at IS NULL ORDER BY started_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query open runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(scan func(...any) error) (*Run, error) {
	var r Run
	var endedAt sql.NullTime
	var exitCode sql.NullInt64
	var costUSD sql.NullFloat64
	err := scan(
		&r.ShortID, &r.TaskShortID, &r.RunID, &r.Agent, &r.Model, &r.PID,
		&r.StartedAt, &endedAt, &exitCode, &costUSD, &r.SessionID, &r.Output,
		&r.CommitHash, &r.Reason,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		r.ExitCode = &c
	}
	if costUSD.Valid {
		c := costUSD.Float64
		r.CostUSD = &c
	}
	return &r, nil
}
