package store

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusPaused     TaskStatus = "paused"
	StatusSomeday    TaskStatus = "someday"
)

// TaskType categorizes a task.
type TaskType string

const (
	TypeBug        TaskType = "bug"
	TypeFix        TaskType = "fix"
	TypeFeature    TaskType = "feature"
	TypeTask       TaskType = "task"
	TypeEpic       TaskType = "epic"
	TypeChore      TaskType = "chore"
	TypeDocs       TaskType = "docs"
	TypeTest       TaskType = "test"
	TypeRefactor   TaskType = "refactor"
	TypeSelfguided TaskType = "selfguided"
)

// TaskSize is the estimated effort bucket.
type TaskSize string

const (
	SizeXS TaskSize = "xs"
	SizeS  TaskSize = "s"
	SizeM  TaskSize = "m"
	SizeL  TaskSize = "l"
	SizeXL TaskSize = "xl"
)

// TaskComplexity is the estimated difficulty bucket.
type TaskComplexity string

const (
	ComplexityTrivial  TaskComplexity = "trivial"
	ComplexitySimple   TaskComplexity = "simple"
	ComplexityModerate TaskComplexity = "moderate"
	ComplexityComplex  TaskComplexity = "complex"
)

// LabelNeedsHuman keeps a task out of the ready queue until a human
// removes it.
const LabelNeedsHuman = "needs-human"

// AgentSelfguided marks a task for the selfguided re-dispatch loop.
const AgentSelfguided = "selfguided"

// AgentEpicReview is the agent name of synthesized epic review tasks.
const AgentEpicReview = "epic-review"

// Task is a unit of work selected for execution by the consume daemon.
type Task struct {
	ShortID             string         `json:"short_id"`
	Title               string         `json:"title"`
	Description         string         `json:"description,omitempty"`
	Type                TaskType       `json:"type"`
	Priority            int            `json:"priority"` // 0..4, lower runs first
	Size                TaskSize       `json:"size"`
	Complexity          TaskComplexity `json:"complexity"`
	Labels              []string       `json:"labels,omitempty"`
	BlockedBy           []string       `json:"blocked_by,omitempty"`
	EpicID              string         `json:"epic_id,omitempty"`
	Agent               string         `json:"agent,omitempty"`
	Status              TaskStatus     `json:"status"`
	Reason              string         `json:"reason,omitempty"`
	CommitHash          string         `json:"commit_hash,omitempty"`
	SelfguidedIteration int            `json:"selfguided_iteration"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// HasLabel reports whether the task carries the given label.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Selfguided reports whether the task runs in the selfguided loop.
func (t *Task) Selfguided() bool {
	return t.Type == TypeSelfguided || t.Agent == AgentSelfguided
}

// EpicStatus is the lifecycle state of an epic.
type EpicStatus string

const (
	EpicPlanning EpicStatus = "planning"
	EpicActive   EpicStatus = "active"
	EpicReview   EpicStatus = "review"
	EpicReviewed EpicStatus = "reviewed"
	EpicRejected EpicStatus = "rejected"
	EpicDone     EpicStatus = "done"
	EpicPaused   EpicStatus = "paused"
)

// MirrorStatus tracks the epic's isolated working-copy mirror.
type MirrorStatus string

const (
	MirrorNone     MirrorStatus = "none"
	MirrorCreating MirrorStatus = "creating"
	MirrorReady    MirrorStatus = "ready"
	MirrorMerging  MirrorStatus = "merging"
	MirrorMerged   MirrorStatus = "merged"
	MirrorFailed   MirrorStatus = "failed"
)

// Epic groups tasks that share a plan and optionally a mirror.
type Epic struct {
	ShortID      string       `json:"short_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Status       EpicStatus   `json:"status"`
	SelfGuided   bool         `json:"self_guided"`
	PlanFilename string       `json:"plan_filename,omitempty"`
	ApprovedBy   string       `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time   `json:"approved_at,omitempty"`
	MirrorStatus MirrorStatus `json:"mirror_status"`
	MirrorPath   string       `json:"mirror_path,omitempty"`
	MirrorBranch string       `json:"mirror_branch,omitempty"`
	BaseCommit   string       `json:"base_commit,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Run records one execution of an agent process for one task.
// RunID is monotonic within the task; ShortID is project-unique.
type Run struct {
	ShortID     string     `json:"short_id"`
	TaskShortID string     `json:"task_short_id"`
	RunID       int        `json:"run_id"`
	Agent       string     `json:"agent"`
	Model       string     `json:"model,omitempty"`
	PID         int        `json:"pid,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	CostUSD     *float64   `json:"cost_usd,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Output      string     `json:"output,omitempty"` // tail; full output in the run's log file
	CommitHash  string     `json:"commit_hash,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// ReviewStatus is the state of a reviewer run's verdict.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "pending"
	ReviewPassed  ReviewStatus = "passed"
	ReviewFailed  ReviewStatus = "failed"
)

// Review is one reviewer pass over a finished task run.
type Review struct {
	ShortID     string       `json:"short_id"`
	TaskShortID string       `json:"task_short_id"`
	Agent       string       `json:"agent"`
	Status      ReviewStatus `json:"status"`
	Issues      []string     `json:"issues,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// BacklogItem is an idea parked outside the execution pipeline.
// Backlog items are never selected for execution.
type BacklogItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// validTaskTransitions is the task state machine. A transition missing
// here is rejected with ErrInvalidTransition.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	StatusOpen:       {StatusInProgress, StatusPaused, StatusSomeday, StatusDone},
	StatusInProgress: {StatusReview, StatusDone, StatusOpen, StatusPaused},
	StatusReview:     {StatusDone, StatusOpen},
	StatusPaused:     {StatusOpen},
	StatusSomeday:    {StatusOpen},
	StatusDone:       {StatusOpen},
}

// CanTransition reports whether from → to is a legal task transition.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range validTaskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validTaskType(t TaskType) bool {
	switch t {
	case TypeBug, TypeFix, TypeFeature, TypeTask, TypeEpic, TypeChore,
		TypeDocs, TypeTest, TypeRefactor, TypeSelfguided:
		return true
	}
	return false
}

func validTaskSize(s TaskSize) bool {
	switch s {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL:
		return true
	}
	return false
}

func validComplexity(c TaskComplexity) bool {
	switch c {
	case ComplexityTrivial, ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

func validTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusReview, StatusDone, StatusPaused, StatusSomeday:
		return true
	}
	return false
}

func validEpicStatus(s EpicStatus) bool {
	switch s {
	case EpicPlanning, EpicActive, EpicReview, EpicReviewed, EpicRejected, EpicDone, EpicPaused:
		return true
	}
	return false
}
