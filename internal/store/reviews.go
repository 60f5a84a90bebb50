package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fuelhq/fuel/internal/ids"
)

// CreateReview inserts a pending review row for a task.
func (s *Store) CreateReview(taskID, agent string) (*Review, error) {
	if _, err := s.GetTask(taskID); err != nil {
		return nil, err
	}

	r := &Review{
		ShortID:     ids.New(ids.KindReview),
		TaskShortID: taskID,
		Agent:       agent,
		Status:      ReviewPending,
		StartedAt:   time.Now().UTC(),
	}
	if _, err := s.db.Exec(
		`INSERT INTO reviews (short_id, task_short_id, agent, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ShortID, r.TaskShortID, r.Agent, string(r.Status), r.StartedAt,
	); err != nil {
		return nil, fmt.Errorf("insert review: %w", err)
	}
	return r, nil
}

// CompleteReview records the verdict and issue list for a pending review.
func (s *Store) CompleteReview(shortID string, status ReviewStatus, issues []string) (*Review, error) {
	r, err := s.GetReview(shortID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r.Status = status
	r.Issues = issues
	r.CompletedAt = &now

	raw, _ := json.Marshal(issues)
	if _, err := s.db.Exec(
		`UPDATE reviews SET status = ?, issues = ?, completed_at = ? WHERE short_id = ?`,
		string(status), string(raw), now, shortID,
	); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	return r, nil
}

const reviewColumns = `short_id, task_short_id, agent, status, issues, started_at, completed_at`

// GetReview returns a review by short id.
func (s *Store) GetReview(shortID string) (*Review, error) {
	row := s.db.QueryRow(`SELECT `+reviewColumns+` FROM reviews WHERE short_id = ?`, shortID)
	r, err := scanReview(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review %s: %w", shortID, ErrNotFound)
	}
	return r, err
}

// ListReviews returns reviews, newest first, optionally for one task.
func (s *Store) ListReviews(taskID string) ([]Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews`
	var args []any
	if taskID != "" {
		query += ` WHERE task_short_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows.Scan)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

func scanReview(scan func(...any) error) (*Review, error) {
	var r Review
	var issues string
	var completedAt sql.NullTime
	err := scan(
		&r.ShortID, &r.TaskShortID, &r.Agent, (*string)(&r.Status),
		&issues, &r.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if issues != "" {
		if err := json.Unmarshal([]byte(issues), &r.Issues); err != nil {
			return nil, fmt.Errorf("review %s: corrupt issues: %w", r.ShortID, err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// AddBacklogItem parks an idea outside the execution pipeline.
func (s *Store) AddBacklogItem(title, description string) (*BacklogItem, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO backlog (title, description, created_at) VALUES (?, ?, ?)`,
		title, description, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert backlog item: %w", err)
	}
	id, _ := res.LastInsertId()
	return &BacklogItem{ID: id, Title: title, Description: description, CreatedAt: now}, nil
}

// ListBacklog returns backlog items, oldest first.
func (s *Store) ListBacklog() ([]BacklogItem, error) {
	rows, err := s.db.Query(`SELECT id, title, description, created_at FROM backlog ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query backlog: %w", err)
	}
	defer rows.Close()

	var items []BacklogItem
	for rows.Next() {
		var b BacklogItem
		if err := rows.Scan(&b.ID, &b.Title, &b.Description, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backlog item: %w", err)
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
