package store

import (
	"testing"
	"time"
)

func TestReadyDependencyUnblock(t *testing.T) {
	s := testStore(t)
	p1 := 1
	p0 := 0
	t1 := mustCreateTask(t, s, TaskFields{Title: "t1", Priority: &p1})
	t2 := mustCreateTask(t, s, TaskFields{Title: "t2", Priority: &p0, BlockedBy: []string{t1.ShortID}})

	ready, err := s.ListReady(nil)
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(ready) != 1 || ready[0].ShortID != t1.ShortID {
		t.Fatalf("ready = %v, want only t1", shortIDs(ready))
	}

	if _, err := s.Done(t1.ShortID, "", ""); err != nil {
		t.Fatal(err)
	}
	ready, err = s.ListReady(nil)
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(ready) != 1 || ready[0].ShortID != t2.ShortID {
		t.Errorf("ready after unblock = %v, want only t2", shortIDs(ready))
	}
}

func TestReadyPriorityTie(t *testing.T) {
	now := time.Now().UTC()
	t1 := Task{ShortID: "f-aaaaaa", Status: StatusOpen, Priority: 2, CreatedAt: now}
	t2 := Task{ShortID: "f-bbbbbb", Status: StatusOpen, Priority: 2, CreatedAt: now.Add(time.Second)}

	ready := ReadyTasks(Snapshot{Tasks: []Task{t2, t1}})
	if len(ready) != 2 || ready[0].ShortID != t1.ShortID || ready[1].ShortID != t2.ShortID {
		t.Errorf("ready = %v, want [t1 t2] (older first)", shortIDs(ready))
	}
}

func TestReadyShortIDTieBreak(t *testing.T) {
	now := time.Now().UTC()
	t1 := Task{ShortID: "f-bbbbbb", Status: StatusOpen, Priority: 2, CreatedAt: now}
	t2 := Task{ShortID: "f-aaaaaa", Status: StatusOpen, Priority: 2, CreatedAt: now}

	ready := ReadyTasks(Snapshot{Tasks: []Task{t1, t2}})
	if ready[0].ShortID != "f-aaaaaa" {
		t.Errorf("ready = %v, want lexicographic order on equal priority and time", shortIDs(ready))
	}
}

func TestReadySkipsNeedsHuman(t *testing.T) {
	s := testStore(t)
	mustCreateTask(t, s, TaskFields{Title: "t1", Labels: []string{LabelNeedsHuman}})
	t2 := mustCreateTask(t, s, TaskFields{Title: "t2"})

	ready, err := s.ListReady(nil)
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(ready) != 1 || ready[0].ShortID != t2.ShortID {
		t.Errorf("ready = %v, want only t2", shortIDs(ready))
	}
}

func TestReadySkipsNonOpenStatuses(t *testing.T) {
	now := time.Now().UTC()
	var tasks []Task
	for i, status := range []TaskStatus{StatusInProgress, StatusPaused, StatusSomeday, StatusReview, StatusDone} {
		tasks = append(tasks, Task{ShortID: "f-aaaaa" + string(rune('a'+i)), Status: status, CreatedAt: now})
	}
	tasks = append(tasks, Task{ShortID: "f-zzzzzz", Status: StatusOpen, CreatedAt: now})

	ready := ReadyTasks(Snapshot{Tasks: tasks})
	if len(ready) != 1 || ready[0].ShortID != "f-zzzzzz" {
		t.Errorf("ready = %v, want only the open task", shortIDs(ready))
	}
}

func TestReadySkipsPausedAndRejectedEpics(t *testing.T) {
	now := time.Now().UTC()
	tasks := []Task{
		{ShortID: "f-aaaaaa", Status: StatusOpen, EpicID: "e-paused", CreatedAt: now},
		{ShortID: "f-bbbbbb", Status: StatusOpen, EpicID: "e-reject", CreatedAt: now},
		{ShortID: "f-cccccc", Status: StatusOpen, EpicID: "e-active", CreatedAt: now},
	}
	epics := map[string]Epic{
		"e-paused": {ShortID: "e-paused", Status: EpicPaused},
		"e-reject": {ShortID: "e-reject", Status: EpicRejected},
		"e-active": {ShortID: "e-active", Status: EpicActive},
	}

	ready := ReadyTasks(Snapshot{Tasks: tasks, Epics: epics})
	if len(ready) != 1 || ready[0].ShortID != "f-cccccc" {
		t.Errorf("ready = %v, want only the active epic's task", shortIDs(ready))
	}
}

func TestReadySkipsCoolingAgents(t *testing.T) {
	now := time.Now().UTC()
	tasks := []Task{
		{ShortID: "f-aaaaaa", Status: StatusOpen, Agent: "claude", CreatedAt: now},
		{ShortID: "f-bbbbbb", Status: StatusOpen, Agent: "opencode", CreatedAt: now},
	}
	cooling := func(agent string) bool { return agent == "claude" }

	ready := ReadyTasks(Snapshot{Tasks: tasks, AgentCooling: cooling})
	if len(ready) != 1 || ready[0].ShortID != "f-bbbbbb" {
		t.Errorf("ready = %v, want only the healthy agent's task", shortIDs(ready))
	}
}

func TestReadySkipsMissingBlocker(t *testing.T) {
	now := time.Now().UTC()
	tasks := []Task{
		{ShortID: "f-aaaaaa", Status: StatusOpen, BlockedBy: []string{"f-gone22"}, CreatedAt: now},
	}
	if ready := ReadyTasks(Snapshot{Tasks: tasks}); len(ready) != 0 {
		t.Errorf("task with missing blocker is ready: %v", shortIDs(ready))
	}
}

func shortIDs(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ShortID
	}
	return out
}
