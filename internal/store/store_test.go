package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateTask(t *testing.T, s *Store, f TaskFields) *Task {
	t.Helper()
	task, err := s.CreateTask(f)
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", f.Title, err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	s := testStore(t)

	task := mustCreateTask(t, s, TaskFields{Title: "fix the parser"})
	if task.Status != StatusOpen {
		t.Errorf("Status = %q, want open", task.Status)
	}
	if task.Priority != 2 {
		t.Errorf("Priority = %d, want 2", task.Priority)
	}
	if task.Type != TypeTask || task.Size != SizeM || task.Complexity != ComplexityModerate {
		t.Errorf("defaults not applied: type=%q size=%q complexity=%q", task.Type, task.Size, task.Complexity)
	}

	got, err := s.GetTask(task.ShortID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "fix the parser" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	s := testStore(t)

	bad := []TaskFields{
		{Title: ""},
		{Title: "x", Type: "story"},
		{Title: "x", Size: "xxl"},
		{Title: "x", Complexity: "hard"},
		{Title: "x", Priority: intPtr(5)},
		{Title: "x", Priority: intPtr(-1)},
		{Title: "x", BlockedBy: []string{"f-zzzzzz"}},
		{Title: "x", EpicID: "e-zzzzzz"},
	}
	for i, f := range bad {
		if _, err := s.CreateTask(f); err == nil {
			t.Errorf("case %d: CreateTask accepted invalid fields %+v", i, f)
		} else if !IsValidation(err) {
			t.Errorf("case %d: error %v is not a validation error", i, err)
		}
	}
}

func TestDoneNotIdempotent(t *testing.T) {
	s := testStore(t)
	task := mustCreateTask(t, s, TaskFields{Title: "one shot"})

	if _, err := s.Done(task.ShortID, "finished", "abc1234"); err != nil {
		t.Fatalf("Done: %v", err)
	}
	got, _ := s.GetTask(task.ShortID)
	if got.Status != StatusDone || got.Reason != "finished" || got.CommitHash != "abc1234" {
		t.Errorf("after Done: %+v", got)
	}

	if _, err := s.Done(task.ShortID, "", ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Done = %v, want ErrInvalidTransition", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{StatusOpen, StatusInProgress, true},
		{StatusOpen, StatusPaused, true},
		{StatusOpen, StatusSomeday, true},
		{StatusInProgress, StatusReview, true},
		{StatusInProgress, StatusDone, true},
		{StatusInProgress, StatusOpen, true},
		{StatusReview, StatusDone, true},
		{StatusReview, StatusOpen, true},
		{StatusPaused, StatusOpen, true},
		{StatusSomeday, StatusOpen, true},
		{StatusDone, StatusOpen, true},
		{StatusDone, StatusDone, false},
		{StatusPaused, StatusDone, false},
		{StatusSomeday, StatusInProgress, false},
		{StatusReview, StatusPaused, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestAddDepRejectsCycle(t *testing.T) {
	s := testStore(t)
	t1 := mustCreateTask(t, s, TaskFields{Title: "t1"})
	t2 := mustCreateTask(t, s, TaskFields{Title: "t2", BlockedBy: []string{t1.ShortID}})

	// t1 blocked by t2 would close the loop t1 → t2 → t1.
	if err := s.AddDep(t1.ShortID, t2.ShortID); !errors.Is(err, ErrCycle) {
		t.Fatalf("AddDep = %v, want ErrCycle", err)
	}

	// Store unchanged: t1 still has no blockers.
	got, _ := s.GetTask(t1.ShortID)
	if len(got.BlockedBy) != 0 {
		t.Errorf("t1.BlockedBy = %v after rejected AddDep", got.BlockedBy)
	}

	if err := s.AddDep(t1.ShortID, t1.ShortID); !errors.Is(err, ErrCycle) {
		t.Errorf("self dep = %v, want ErrCycle", err)
	}
}

func TestAddDepTransitiveCycle(t *testing.T) {
	s := testStore(t)
	t1 := mustCreateTask(t, s, TaskFields{Title: "t1"})
	t2 := mustCreateTask(t, s, TaskFields{Title: "t2", BlockedBy: []string{t1.ShortID}})
	t3 := mustCreateTask(t, s, TaskFields{Title: "t3", BlockedBy: []string{t2.ShortID}})

	if err := s.AddDep(t1.ShortID, t3.ShortID); !errors.Is(err, ErrCycle) {
		t.Errorf("transitive cycle = %v, want ErrCycle", err)
	}
}

func TestRemoveDep(t *testing.T) {
	s := testStore(t)
	t1 := mustCreateTask(t, s, TaskFields{Title: "t1"})
	t2 := mustCreateTask(t, s, TaskFields{Title: "t2", BlockedBy: []string{t1.ShortID}})

	if err := s.RemoveDep(t2.ShortID, t1.ShortID); err != nil {
		t.Fatalf("RemoveDep: %v", err)
	}
	got, _ := s.GetTask(t2.ShortID)
	if len(got.BlockedBy) != 0 {
		t.Errorf("BlockedBy = %v, want empty", got.BlockedBy)
	}

	if err := s.RemoveDep(t2.ShortID, t1.ShortID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveDep = %v, want ErrNotFound", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	task := mustCreateTask(t, s, TaskFields{Title: "t"})

	r1, err := s.CreateRun(task.ShortID, "claude", 4242)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r1.RunID != 1 {
		t.Errorf("first RunID = %d, want 1", r1.RunID)
	}

	exit := 0
	ended := time.Now().UTC()
	cost := 0.42
	model := "sonnet"
	if _, err := s.UpdateLatestRun(task.ShortID, RunPatch{
		ExitCode: &exit, EndedAt: &ended, CostUSD: &cost, Model: &model,
	}); err != nil {
		t.Fatalf("UpdateLatestRun: %v", err)
	}

	r2, err := s.CreateRun(task.ShortID, "claude", 4243)
	if err != nil {
		t.Fatalf("CreateRun #2: %v", err)
	}
	if r2.RunID != 2 {
		t.Errorf("second RunID = %d, want 2", r2.RunID)
	}

	latest, err := s.LatestRun(task.ShortID)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ShortID != r2.ShortID {
		t.Errorf("LatestRun = %s, want %s", latest.ShortID, r2.ShortID)
	}

	open, err := s.OpenRuns()
	if err != nil {
		t.Fatalf("OpenRuns: %v", err)
	}
	if len(open) != 1 || open[0].ShortID != r2.ShortID {
		t.Errorf("OpenRuns = %v, want only the second run", open)
	}
}

func TestReviewLifecycle(t *testing.T) {
	s := testStore(t)
	task := mustCreateTask(t, s, TaskFields{Title: "t"})

	rev, err := s.CreateReview(task.ShortID, "claude")
	if err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	if rev.Status != ReviewPending {
		t.Errorf("Status = %q, want pending", rev.Status)
	}

	done, err := s.CompleteReview(rev.ShortID, ReviewFailed, []string{"missing tests", "typo in flag name"})
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if done.Status != ReviewFailed || len(done.Issues) != 2 || done.CompletedAt == nil {
		t.Errorf("CompleteReview result: %+v", done)
	}

	list, err := s.ListReviews(task.ShortID)
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(list) != 1 || list[0].Issues[0] != "missing tests" {
		t.Errorf("ListReviews = %+v", list)
	}
}

func TestRejectEpicReopensTasks(t *testing.T) {
	s := testStore(t)
	epic, err := s.CreateEpic(EpicFields{Title: "big thing"})
	if err != nil {
		t.Fatalf("CreateEpic: %v", err)
	}
	t1 := mustCreateTask(t, s, TaskFields{Title: "t1", EpicID: epic.ShortID})
	if _, err := s.Done(t1.ShortID, "", ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.RejectEpic(epic.ShortID)
	if err != nil {
		t.Fatalf("RejectEpic: %v", err)
	}
	if got.Status != EpicRejected {
		t.Errorf("epic status = %q, want rejected", got.Status)
	}
	task, _ := s.GetTask(t1.ShortID)
	if task.Status != StatusOpen {
		t.Errorf("task status = %q, want open after epic reject", task.Status)
	}
}

func TestBacklogNeverReady(t *testing.T) {
	s := testStore(t)
	if _, err := s.AddBacklogItem("someday idea", "details"); err != nil {
		t.Fatalf("AddBacklogItem: %v", err)
	}
	items, err := s.ListBacklog()
	if err != nil || len(items) != 1 {
		t.Fatalf("ListBacklog = %v, %v", items, err)
	}
	ready, err := s.ListReady(nil)
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("backlog items leaked into ready queue: %v", ready)
	}
}

func intPtr(v int) *int { return &v }
