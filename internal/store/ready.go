package store

import "sort"

// Snapshot is the store state the ready queue is computed from. It is
// derived fresh each tick; queue items are never persisted.
type Snapshot struct {
	Tasks []Task
	Epics map[string]Epic

	// AgentCooling reports whether an agent is in health cool-down.
	// Nil means no agent is cooling.
	AgentCooling func(agent string) bool
}

// ReadyTasks returns the tasks eligible to run now, in dispatch order.
//
// A task is eligible when it is open, not labeled needs-human, every
// blocker exists and is done, its epic (if any) is not paused or
// rejected, and its agent is not cooling down. Ordering is priority
// ascending, then created_at ascending, then short_id.
func ReadyTasks(snap Snapshot) []Task {
	done := make(map[string]bool, len(snap.Tasks))
	exists := make(map[string]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		exists[t.ShortID] = true
		if t.Status == StatusDone {
			done[t.ShortID] = true
		}
	}

	var ready []Task
	for _, t := range snap.Tasks {
		if t.Status != StatusOpen {
			continue
		}
		if t.HasLabel(LabelNeedsHuman) {
			continue
		}
		if !blockersDone(t.BlockedBy, exists, done) {
			continue
		}
		if t.EpicID != "" {
			epic, ok := snap.Epics[t.EpicID]
			if ok && (epic.Status == EpicPaused || epic.Status == EpicRejected) {
				continue
			}
		}
		if snap.AgentCooling != nil && snap.AgentCooling(t.Agent) {
			continue
		}
		ready = append(ready, t)
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ShortID < b.ShortID
	})
	return ready
}

func blockersDone(blockedBy []string, exists, done map[string]bool) bool {
	for _, dep := range blockedBy {
		if !exists[dep] || !done[dep] {
			return false
		}
	}
	return true
}

// ListReady computes the current ready queue from a fresh snapshot.
func (s *Store) ListReady(agentCooling func(string) bool) ([]Task, error) {
	snap, err := s.TakeSnapshot()
	if err != nil {
		return nil, err
	}
	snap.AgentCooling = agentCooling
	return ReadyTasks(snap), nil
}

// TakeSnapshot loads all tasks and epics for a scheduling pass.
func (s *Store) TakeSnapshot() (Snapshot, error) {
	tasks, err := s.ListTasks("")
	if err != nil {
		return Snapshot{}, err
	}
	epics, err := s.ListEpics("")
	if err != nil {
		return Snapshot{}, err
	}
	byID := make(map[string]Epic, len(epics))
	for _, e := range epics {
		byID[e.ShortID] = e
	}
	return Snapshot{Tasks: tasks, Epics: byID}, nil
}
