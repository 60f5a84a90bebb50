package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fuelhq/fuel/internal/ids"
)

// EpicFields carries the caller-settable fields for epic creation.
type EpicFields struct {
	Title        string
	Description  string
	SelfGuided   bool
	PlanFilename string
}

// CreateEpic inserts a new epic with status planning.
func (s *Store) CreateEpic(f EpicFields) (*Epic, error) {
	if strings.TrimSpace(f.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}

	now := time.Now().UTC()
	e := &Epic{
		ShortID:      ids.New(ids.KindEpic),
		Title:        f.Title,
		Description:  f.Description,
		Status:       EpicPlanning,
		SelfGuided:   f.SelfGuided,
		PlanFilename: f.PlanFilename,
		MirrorStatus: MirrorNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.Exec(
		`INSERT INTO epics (short_id, title, description, status, self_guided, plan_filename,
		                    mirror_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ShortID, e.Title, e.Description, string(e.Status), boolToInt(e.SelfGuided),
		e.PlanFilename, string(e.MirrorStatus), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert epic: %w", err)
	}
	return e, nil
}

const epicColumns = `short_id, title, description, status, self_guided, plan_filename,
	approved_by, approved_at, mirror_status, mirror_path, mirror_branch, base_commit,
	created_at, updated_at`

// GetEpic returns a single epic by full short id.
func (s *Store) GetEpic(id string) (*Epic, error) {
	row := s.db.QueryRow(`SELECT `+epicColumns+` FROM epics WHERE short_id = ?`, id)
	e, err := scanEpic(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("epic %s: %w", id, ErrNotFound)
	}
	return e, err
}

// ListEpics returns all epics, optionally filtered by status.
func (s *Store) ListEpics(status EpicStatus) ([]Epic, error) {
	query := `SELECT ` + epicColumns + ` FROM epics`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, short_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query epics: %w", err)
	}
	defer rows.Close()

	var epics []Epic
	for rows.Next() {
		e, err := scanEpic(rows.Scan)
		if err != nil {
			return nil, err
		}
		epics = append(epics, *e)
	}
	return epics, rows.Err()
}

// EpicPatch carries optional epic field updates.
type EpicPatch struct {
	Title        *string
	Description  *string
	Status       *EpicStatus
	ApprovedBy   *string
	ApprovedAt   *time.Time
	PlanFilename *string
	MirrorStatus *MirrorStatus
	MirrorPath   *string
	MirrorBranch *string
	BaseCommit   *string
}

// UpdateEpic applies a patch atomically.
func (s *Store) UpdateEpic(id string, patch EpicPatch) (*Epic, error) {
	e, err := s.GetEpic(id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Status != nil {
		if !validEpicStatus(*patch.Status) {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown epic status %q", *patch.Status)}
		}
		e.Status = *patch.Status
	}
	if patch.ApprovedBy != nil {
		e.ApprovedBy = *patch.ApprovedBy
	}
	if patch.ApprovedAt != nil {
		e.ApprovedAt = patch.ApprovedAt
	}
	if patch.PlanFilename != nil {
		e.PlanFilename = *patch.PlanFilename
	}
	if patch.MirrorStatus != nil {
		e.MirrorStatus = *patch.MirrorStatus
	}
	if patch.MirrorPath != nil {
		e.MirrorPath = *patch.MirrorPath
	}
	if patch.MirrorBranch != nil {
		e.MirrorBranch = *patch.MirrorBranch
	}
	if patch.BaseCommit != nil {
		e.BaseCommit = *patch.BaseCommit
	}
	e.UpdatedAt = time.Now().UTC()

	var approvedAt any
	if e.ApprovedAt != nil {
		approvedAt = *e.ApprovedAt
	}
	_, err = s.db.Exec(
		`UPDATE epics SET title = ?, description = ?, status = ?, approved_by = ?,
		 approved_at = ?, plan_filename = ?, mirror_status = ?, mirror_path = ?,
		 mirror_branch = ?, base_commit = ?, updated_at = ?
		 WHERE short_id = ?`,
		e.Title, e.Description, string(e.Status), e.ApprovedBy, approvedAt,
		e.PlanFilename, string(e.MirrorStatus), e.MirrorPath, e.MirrorBranch,
		e.BaseCommit, e.UpdatedAt, e.ShortID,
	)
	if err != nil {
		return nil, fmt.Errorf("update epic: %w", err)
	}
	return e, nil
}

// RejectEpic sets the epic rejected and reopens every done task under it
// for follow-up work, in one transaction.
func (s *Store) RejectEpic(id string) (*Epic, error) {
	e, err := s.GetEpic(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE epics SET status = ?, updated_at = ? WHERE short_id = ?`,
		string(EpicRejected), now, id,
	); err != nil {
		return nil, fmt.Errorf("reject epic: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE tasks SET status = ?, updated_at = ? WHERE epic_id = ? AND status != ?`,
		string(StatusOpen), now, id, string(StatusOpen),
	); err != nil {
		return nil, fmt.Errorf("reopen epic tasks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	e.Status = EpicRejected
	e.UpdatedAt = now
	return e, nil
}

func scanEpic(scan func(...any) error) (*Epic, error) {
	var e Epic
	var selfGuided int
	var approvedAt sql.NullTime
	err := scan(
		&e.ShortID, &e.Title, &e.Description, (*string)(&e.Status), &selfGuided,
		&e.PlanFilename, &e.ApprovedBy, &approvedAt, (*string)(&e.MirrorStatus),
		&e.MirrorPath, &e.MirrorBranch, &e.BaseCommit, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.SelfGuided = selfGuided != 0
	if approvedAt.Valid {
		t := approvedAt.Time
		e.ApprovedAt = &t
	}
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
