package store

import (
	"errors"
	"testing"
)

func TestResolveFullID(t *testing.T) {
	s := testStore(t)
	task := mustCreateTask(t, s, TaskFields{Title: "t"})

	got, err := s.Resolve(task.ShortID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != task.ShortID {
		t.Errorf("Resolve = %q, want %q", got, task.ShortID)
	}
}

func TestResolvePrefix(t *testing.T) {
	s := testStore(t)
	task := mustCreateTask(t, s, TaskFields{Title: "t"})

	// Prefix without the kind marker resolves against the suffix.
	got, err := s.Resolve(task.ShortID[2:5])
	if err != nil {
		t.Fatalf("Resolve(%q): %v", task.ShortID[2:5], err)
	}
	if got != task.ShortID {
		t.Errorf("Resolve = %q, want %q", got, task.ShortID)
	}

	// Prefix with the kind marker works too.
	got, err = s.Resolve(task.ShortID[:4])
	if err != nil {
		t.Fatalf("Resolve(%q): %v", task.ShortID[:4], err)
	}
	if got != task.ShortID {
		t.Errorf("Resolve = %q, want %q", got, task.ShortID)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	s := testStore(t)
	// Force two tasks with a shared suffix prefix by inserting directly.
	for _, id := range []string{"f-abc234", "f-abc456"} {
		if _, err := s.db.Exec(
			`INSERT INTO tasks (short_id, title, status, created_at, updated_at)
			 VALUES (?, 'x', 'open', datetime('now'), datetime('now'))`, id,
		); err != nil {
			t.Fatal(err)
		}
	}

	_, err := s.Resolve("abc")
	var amb *AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("Resolve = %v, want AmbiguousIDError", err)
	}
	if len(amb.Candidates) != 2 {
		t.Errorf("Candidates = %v, want both tasks", amb.Candidates)
	}
}

func TestResolveNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Resolve("zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve = %v, want ErrNotFound", err)
	}
}

func TestResolveTooShort(t *testing.T) {
	s := testStore(t)
	_, err := s.Resolve("a")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Resolve(single char) = %v, want ValidationError", err)
	}
}

func TestResolveAcrossKinds(t *testing.T) {
	s := testStore(t)
	epic, err := s.CreateEpic(EpicFields{Title: "e"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Resolve(epic.ShortID[:5])
	if err != nil {
		t.Fatalf("Resolve epic prefix: %v", err)
	}
	if got != epic.ShortID {
		t.Errorf("Resolve = %q, want %q", got, epic.ShortID)
	}
}
