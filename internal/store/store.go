// Package store persists tasks, epics, runs, reviews, and backlog items
// in a project-local SQLite database (.fuel/agent.db). Every mutation runs
// in a single transaction so a concurrent crash never leaves torn writes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fuelhq/fuel/internal/ids"
)

// DBFileName is the database file name inside the .fuel directory.
const DBFileName = "agent.db"

// Store provides access to the fuel database.
type Store struct {
	db *sql.DB
}

// DBPath returns the database path for a project directory.
func DBPath(projectDir string) string {
	return filepath.Join(projectDir, ".fuel", DBFileName)
}

// Open opens (or creates) the SQLite database at the given path,
// creating the enclosing .fuel directory if needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers (CLI verbs) from blocking the daemon's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		short_id             TEXT PRIMARY KEY,
		title                TEXT NOT NULL,
		description          TEXT DEFAULT '',
		type                 TEXT NOT NULL DEFAULT 'task',
		priority             INTEGER NOT NULL DEFAULT 2,
		size                 TEXT NOT NULL DEFAULT 'm',
		complexity           TEXT NOT NULL DEFAULT 'moderate',
		labels               TEXT NOT NULL DEFAULT '[]',
		epic_id              TEXT DEFAULT '',
		agent                TEXT DEFAULT '',
		status               TEXT NOT NULL DEFAULT 'open',
		reason               TEXT DEFAULT '',
		commit_hash          TEXT DEFAULT '',
		selfguided_iteration INTEGER NOT NULL DEFAULT 0,
		created_at           DATETIME NOT NULL,
		updated_at           DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_deps (
		task_id    TEXT NOT NULL REFERENCES tasks(short_id),
		blocked_by TEXT NOT NULL,
		PRIMARY KEY (task_id, blocked_by)
	);

	CREATE TABLE IF NOT EXISTS epics (
		short_id      TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		description   TEXT DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'planning',
		self_guided   INTEGER NOT NULL DEFAULT 0,
		plan_filename TEXT DEFAULT '',
		approved_by   TEXT DEFAULT '',
		approved_at   DATETIME,
		mirror_status TEXT NOT NULL DEFAULT 'none',
		mirror_path   TEXT DEFAULT '',
		mirror_branch TEXT DEFAULT '',
		base_commit   TEXT DEFAULT '',
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		short_id      TEXT PRIMARY KEY,
		task_short_id TEXT NOT NULL REFERENCES tasks(short_id),
		run_id        INTEGER NOT NULL,
		agent         TEXT NOT NULL,
		model         TEXT DEFAULT '',
		pid           INTEGER NOT NULL DEFAULT 0,
		started_at    DATETIME NOT NULL,
		ended_at      DATETIME,
		exit_code     INTEGER,
		cost_usd      REAL,
		session_id    TEXT DEFAULT '',
		output        TEXT DEFAULT '',
		commit_hash   TEXT DEFAULT '',
		reason        TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_short_id, started_at);

	CREATE TABLE IF NOT EXISTS reviews (
		short_id      TEXT PRIMARY KEY,
		task_short_id TEXT NOT NULL REFERENCES tasks(short_id),
		agent         TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		issues        TEXT NOT NULL DEFAULT '[]',
		started_at    DATETIME NOT NULL,
		completed_at  DATETIME
	);

	CREATE TABLE IF NOT EXISTS backlog (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		description TEXT DEFAULT '',
		created_at  DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// TaskFields carries the caller-settable fields for task creation.
type TaskFields struct {
	Title       string
	Description string
	Type        TaskType
	Priority    *int
	Size        TaskSize
	Complexity  TaskComplexity
	Labels      []string
	BlockedBy   []string
	EpicID      string
	Agent       string
}

// CreateTask validates the fields, assigns a fresh short id, and inserts
// the task with status open.
func (s *Store) CreateTask(f TaskFields) (*Task, error) {
	if strings.TrimSpace(f.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if f.Type == "" {
		f.Type = TypeTask
	}
	if !validTaskType(f.Type) {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", f.Type)}
	}
	priority := 2
	if f.Priority != nil {
		priority = *f.Priority
	}
	if priority < 0 || priority > 4 {
		return nil, &ValidationError{Field: "priority", Message: fmt.Sprintf("must be 0..4, got %d", priority)}
	}
	if f.Size == "" {
		f.Size = SizeM
	}
	if !validTaskSize(f.Size) {
		return nil, &ValidationError{Field: "size", Message: fmt.Sprintf("unknown size %q", f.Size)}
	}
	if f.Complexity == "" {
		f.Complexity = ComplexityModerate
	}
	if !validComplexity(f.Complexity) {
		return nil, &ValidationError{Field: "complexity", Message: fmt.Sprintf("unknown complexity %q", f.Complexity)}
	}
	if f.EpicID != "" {
		if _, err := s.GetEpic(f.EpicID); err != nil {
			return nil, &ValidationError{Field: "epic_id", Message: fmt.Sprintf("epic %s does not exist", f.EpicID)}
		}
	}

	now := time.Now().UTC()
	t := &Task{
		ShortID:     ids.New(ids.KindTask),
		Title:       f.Title,
		Description: f.Description,
		Type:        f.Type,
		Priority:    priority,
		Size:        f.Size,
		Complexity:  f.Complexity,
		Labels:      f.Labels,
		BlockedBy:   f.BlockedBy,
		EpicID:      f.EpicID,
		Agent:       f.Agent,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Blockers must exist before the edge is written, and the new edges
	// must not close a cycle through existing deps.
	for _, dep := range f.BlockedBy {
		if !taskExistsTx(tx, dep) {
			return nil, &ValidationError{Field: "blocked_by", Message: fmt.Sprintf("task %s does not exist", dep)}
		}
	}
	if err := checkNoCycleTx(tx, t.ShortID, f.BlockedBy); err != nil {
		return nil, err
	}

	labels, _ := json.Marshal(t.Labels)
	_, err = tx.Exec(
		`INSERT INTO tasks (short_id, title, description, type, priority, size, complexity,
		                    labels, epic_id, agent, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ShortID, t.Title, t.Description, string(t.Type), t.Priority, string(t.Size),
		string(t.Complexity), string(labels), t.EpicID, t.Agent, string(t.Status),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	for _, dep := range f.BlockedBy {
		if _, err := tx.Exec(`INSERT INTO task_deps (task_id, blocked_by) VALUES (?, ?)`, t.ShortID, dep); err != nil {
			return nil, fmt.Errorf("insert dep: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

const taskColumns = `short_id, title, description, type, priority, size, complexity,
	labels, epic_id, agent, status, reason, commit_hash, selfguided_iteration,
	created_at, updated_at`

// GetTask returns a single task by full short id.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE short_id = ?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.BlockedBy, err = s.taskDeps(id)
	return t, err
}

// ListTasks returns all tasks, optionally filtered by status.
func (s *Store) ListTasks(status TaskStatus) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, short_id`
	return s.queryTasks(query, args...)
}

// ListTasksByEpic returns all tasks belonging to an epic.
func (s *Store) ListTasksByEpic(epicID string) ([]Task, error) {
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE epic_id = ? ORDER BY created_at, short_id`, epicID)
}

func (s *Store) queryTasks(query string, args ...any) ([]Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.attachDeps(tasks)
}

// attachDeps bulk-loads blocked_by edges for a task list.
func (s *Store) attachDeps(tasks []Task) ([]Task, error) {
	if len(tasks) == 0 {
		return tasks, nil
	}
	rows, err := s.db.Query(`SELECT task_id, blocked_by FROM task_deps`)
	if err != nil {
		return nil, fmt.Errorf("query deps: %w", err)
	}
	defer rows.Close()

	deps := make(map[string][]string)
	for rows.Next() {
		var taskID, blockedBy string
		if err := rows.Scan(&taskID, &blockedBy); err != nil {
			return nil, fmt.Errorf("scan dep: %w", err)
		}
		deps[taskID] = append(deps[taskID], blockedBy)
	}
	for i := range tasks {
		tasks[i].BlockedBy = deps[tasks[i].ShortID]
	}
	return tasks, rows.Err()
}

func (s *Store) taskDeps(id string) ([]string, error) {
	rows, err := s.db.Query(`SELECT blocked_by FROM task_deps WHERE task_id = ? ORDER BY blocked_by`, id)
	if err != nil {
		return nil, fmt.Errorf("query deps: %w", err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("scan dep: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// TaskPatch carries optional field updates. Nil pointers leave the field
// unchanged.
type TaskPatch struct {
	Title               *string
	Description         *string
	Type                *TaskType
	Priority            *int
	Size                *TaskSize
	Complexity          *TaskComplexity
	Labels              *[]string
	Agent               *string
	Status              *TaskStatus
	Reason              *string
	CommitHash          *string
	SelfguidedIteration *int
	EpicID              *string
}

// UpdateTask applies a patch atomically. Status changes outside the task
// state machine are rejected with ErrInvalidTransition.
func (s *Store) UpdateTask(id string, patch TaskPatch) (*Task, error) {
	t, err := s.GetTask(id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, &ValidationError{Field: "title", Message: "must not be empty"}
		}
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Type != nil {
		if !validTaskType(*patch.Type) {
			return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", *patch.Type)}
		}
		t.Type = *patch.Type
	}
	if patch.Priority != nil {
		if *patch.Priority < 0 || *patch.Priority > 4 {
			return nil, &ValidationError{Field: "priority", Message: fmt.Sprintf("must be 0..4, got %d", *patch.Priority)}
		}
		t.Priority = *patch.Priority
	}
	if patch.Size != nil {
		if !validTaskSize(*patch.Size) {
			return nil, &ValidationError{Field: "size", Message: fmt.Sprintf("unknown size %q", *patch.Size)}
		}
		t.Size = *patch.Size
	}
	if patch.Complexity != nil {
		if !validComplexity(*patch.Complexity) {
			return nil, &ValidationError{Field: "complexity", Message: fmt.Sprintf("unknown complexity %q", *patch.Complexity)}
		}
		t.Complexity = *patch.Complexity
	}
	if patch.Labels != nil {
		t.Labels = *patch.Labels
	}
	if patch.Agent != nil {
		t.Agent = *patch.Agent
	}
	if patch.Status != nil {
		if !validTaskStatus(*patch.Status) {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *patch.Status)}
		}
		// The transition table has no self-edges, so a same-status patch
		// (done on done included) fails here.
		if !CanTransition(t.Status, *patch.Status) {
			return nil, fmt.Errorf("%s → %s: %w", t.Status, *patch.Status, ErrInvalidTransition)
		}
		t.Status = *patch.Status
	}
	if patch.Reason != nil {
		t.Reason = *patch.Reason
	}
	if patch.CommitHash != nil {
		t.CommitHash = *patch.CommitHash
	}
	if patch.SelfguidedIteration != nil {
		t.SelfguidedIteration = *patch.SelfguidedIteration
	}
	if patch.EpicID != nil {
		if *patch.EpicID != "" {
			if _, err := s.GetEpic(*patch.EpicID); err != nil {
				return nil, &ValidationError{Field: "epic_id", Message: fmt.Sprintf("epic %s does not exist", *patch.EpicID)}
			}
		}
		t.EpicID = *patch.EpicID
	}

	t.UpdatedAt = time.Now().UTC()

	labels, _ := json.Marshal(t.Labels)
	_, err = s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, type = ?, priority = ?, size = ?,
		 complexity = ?, labels = ?, epic_id = ?, agent = ?, status = ?, reason = ?,
		 commit_hash = ?, selfguided_iteration = ?, updated_at = ?
		 WHERE short_id = ?`,
		t.Title, t.Description, string(t.Type), t.Priority, string(t.Size),
		string(t.Complexity), string(labels), t.EpicID, t.Agent, string(t.Status),
		t.Reason, t.CommitHash, t.SelfguidedIteration, t.UpdatedAt, t.ShortID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

// Done transitions a task to done. Not idempotent: a second Done on the
// same task fails with ErrInvalidTransition.
func (s *Store) Done(id, reason, commit string) (*Task, error) {
	status := StatusDone
	patch := TaskPatch{Status: &status}
	if reason != "" {
		patch.Reason = &reason
	}
	if commit != "" {
		patch.CommitHash = &commit
	}
	return s.UpdateTask(id, patch)
}

// AddDep records that task is blocked by blocker, rejecting missing ids,
// self-edges, and transitive cycles. The store stays unchanged on failure.
func (s *Store) AddDep(taskID, blockerID string) error {
	if taskID == blockerID {
		return fmt.Errorf("task %s cannot block itself: %w", taskID, ErrCycle)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if !taskExistsTx(tx, taskID) {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if !taskExistsTx(tx, blockerID) {
		return fmt.Errorf("task %s: %w", blockerID, ErrNotFound)
	}
	if err := checkNoCycleTx(tx, taskID, []string{blockerID}); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO task_deps (task_id, blocked_by) VALUES (?, ?)`,
		taskID, blockerID,
	); err != nil {
		return fmt.Errorf("insert dep: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE tasks SET updated_at = ? WHERE short_id = ?`,
		time.Now().UTC(), taskID,
	); err != nil {
		return fmt.Errorf("touch task: %w", err)
	}
	return tx.Commit()
}

// RemoveDep deletes a dependency edge.
func (s *Store) RemoveDep(taskID, blockerID string) error {
	res, err := s.db.Exec(`DELETE FROM task_deps WHERE task_id = ? AND blocked_by = ?`, taskID, blockerID)
	if err != nil {
		return fmt.Errorf("delete dep: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dependency %s → %s: %w", taskID, blockerID, ErrNotFound)
	}
	return nil
}

func taskExistsTx(tx *sql.Tx, id string) bool {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM tasks WHERE short_id = ?`, id).Scan(&one)
	return err == nil
}

// checkNoCycleTx walks the existing blocked-by graph from each new blocker
// and fails if it can reach taskID.
func checkNoCycleTx(tx *sql.Tx, taskID string, newBlockers []string) error {
	visited := make(map[string]bool)
	stack := append([]string(nil), newBlockers...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == taskID {
			return fmt.Errorf("adding dependency on %s would create a cycle through %s: %w", taskID, cur, ErrCycle)
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		rows, err := tx.Query(`SELECT blocked_by FROM task_deps WHERE task_id = ?`, cur)
		if err != nil {
			return fmt.Errorf("walk deps: %w", err)
		}
		for rows.Next() {
			var next string
			if err := rows.Scan(&next); err != nil {
				rows.Close()
				return fmt.Errorf("scan dep: %w", err)
			}
			stack = append(stack, next)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// scanTask scans the task columns from a Row or Rows scan function.
func scanTask(scan func(...any) error) (*Task, error) {
	var t Task
	var labels string
	err := scan(
		&t.ShortID, &t.Title, &t.Description, (*string)(&t.Type), &t.Priority,
		(*string)(&t.Size), (*string)(&t.Complexity), &labels, &t.EpicID, &t.Agent,
		(*string)(&t.Status), &t.Reason, &t.CommitHash, &t.SelfguidedIteration,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
			return nil, fmt.Errorf("task %s: corrupt labels: %w", t.ShortID, err)
		}
	}
	return &t, nil
}
