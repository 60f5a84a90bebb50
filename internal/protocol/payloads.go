package protocol

import "github.com/fuelhq/fuel/internal/store"

// SnapshotPayload is sent once right after ATTACH: the current board
// state a client needs before it can apply the live stream.
type SnapshotPayload struct {
	Tasks []store.Task `json:"tasks"`
	Epics []store.Epic `json:"epics"`
	Runs  []store.Run  `json:"runs,omitempty"` // runs still open
}

// TaskPayload carries a full task row, used by TaskCreated.
type TaskPayload struct {
	Task store.Task `json:"task"`
}

// StatusChangePayload describes one task transition.
type StatusChangePayload struct {
	TaskID string `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// RunStartedPayload announces a dispatched run.
type RunStartedPayload struct {
	TaskID     string `json:"task_id"`
	RunShortID string `json:"run_short_id"`
	RunID      int    `json:"run_id"`
	Agent      string `json:"agent"`
	PID        int    `json:"pid"`
}

// RunCompletedPayload announces a reaped run.
type RunCompletedPayload struct {
	TaskID     string  `json:"task_id"`
	RunShortID string  `json:"run_short_id"`
	RunID      int     `json:"run_id"`
	Agent      string  `json:"agent"`
	ExitCode   int     `json:"exit_code"`
	Outcome    string  `json:"outcome"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// EpicCompletedPayload announces that every task of an epic is done
// and a review task has been created.
type EpicCompletedPayload struct {
	EpicID       string `json:"epic_id"`
	ReviewTaskID string `json:"review_task_id"`
}

// HeartbeatPayload is emitted each tick with queue depths for
// attached boards.
type HeartbeatPayload struct {
	Running int `json:"running"`
	Ready   int `json:"ready"`
}

// ErrorPayload carries a daemon-side failure to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TaskRefPayload addresses a single task, used by PAUSE_TASK,
// UNPAUSE_TASK and CANCEL_RUN.
type TaskRefPayload struct {
	TaskID string `json:"task_id"`
}

// InjectTaskPayload creates a task through the daemon instead of the
// store directly, so attached clients see the TaskCreated event.
type InjectTaskPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Agent       string   `json:"agent,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	EpicID      string   `json:"epic_id,omitempty"`
}

// StatusResponsePayload answers a STATUS command.
type StatusResponsePayload struct {
	Running int      `json:"running"`
	Ready   int      `json:"ready"`
	Cooling []string `json:"cooling,omitempty"`
}
