package daemon

import (
	"fmt"
	"log/slog"

	"github.com/fuelhq/fuel/internal/mirror"
	"github.com/fuelhq/fuel/internal/store"
)

// LabelEpicMerge marks the task that lands an epic's mirror branch.
// Its completion drives mirror_status merging → merged/failed.
const LabelEpicMerge = "epic-merge"

// EpicController derives epic state from its tasks: completion
// detection, review task synthesis, and mirror lifecycle.
type EpicController struct {
	st             *store.Store
	mirrors        *mirror.Manager
	mirrorsEnabled bool
	projectDir     string
	log            *slog.Logger
}

// NewEpicController wires the controller. mirrors may be nil when
// mirrors are disabled.
func NewEpicController(st *store.Store, mirrors *mirror.Manager, mirrorsEnabled bool, projectDir string, log *slog.Logger) *EpicController {
	return &EpicController{
		st:             st,
		mirrors:        mirrors,
		mirrorsEnabled: mirrorsEnabled && mirrors != nil,
		projectDir:     projectDir,
		log:            log,
	}
}

// CheckCompletion runs after a task of the epic reaches done. When
// every task is done it synthesizes an epic review task and moves the
// epic active → review. Returns the review task when created.
func (c *EpicController) CheckCompletion(epicID string) (*store.Task, error) {
	epic, err := c.st.GetEpic(epicID)
	if err != nil {
		return nil, err
	}
	if epic.Status != store.EpicActive {
		return nil, nil
	}

	tasks, err := c.st.ListTasksByEpic(epicID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	for _, t := range tasks {
		if t.Status != store.StatusDone {
			return nil, nil
		}
	}

	review, err := c.st.CreateTask(store.TaskFields{
		Title:  fmt.Sprintf("Review epic %s: %s", epic.ShortID, epic.Title),
		Agent:  store.AgentEpicReview,
		EpicID: epic.ShortID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating epic review task: %w", err)
	}

	status := store.EpicReview
	if _, err := c.st.UpdateEpic(epicID, store.EpicPatch{Status: &status}); err != nil {
		return nil, err
	}

	c.log.Info("epic completed, review task created",
		"epic", epic.ShortID, "review_task", review.ShortID)
	return review, nil
}

// EnsureMirror creates the epic's working-copy mirror the first time
// one of its tasks is dispatched. Returns the refreshed epic row. A
// failed creation marks the mirror failed; tasks then run in the
// project directory.
func (c *EpicController) EnsureMirror(epic *store.Epic) (*store.Epic, error) {
	if !c.mirrorsEnabled || epic.MirrorStatus != store.MirrorNone {
		return epic, nil
	}

	creating := store.MirrorCreating
	if _, err := c.st.UpdateEpic(epic.ShortID, store.EpicPatch{MirrorStatus: &creating}); err != nil {
		return epic, err
	}

	m, err := c.mirrors.Create(epic.ShortID)
	if err != nil {
		c.log.Error("mirror creation failed", "epic", epic.ShortID, "error", err)
		failed := store.MirrorFailed
		if _, uerr := c.st.UpdateEpic(epic.ShortID, store.EpicPatch{MirrorStatus: &failed}); uerr != nil {
			return epic, uerr
		}
		return c.st.GetEpic(epic.ShortID)
	}

	ready := store.MirrorReady
	updated, err := c.st.UpdateEpic(epic.ShortID, store.EpicPatch{
		MirrorStatus: &ready,
		MirrorPath:   &m.Path,
		MirrorBranch: &m.Branch,
		BaseCommit:   &m.BaseCommit,
	})
	if err != nil {
		return epic, err
	}
	c.log.Info("mirror ready", "epic", epic.ShortID, "path", m.Path, "branch", m.Branch)
	return updated, nil
}

// WorkDir picks the cwd for a task of this epic: the mirror when
// ready, otherwise the project directory.
func (c *EpicController) WorkDir(epic *store.Epic) string {
	if epic != nil && epic.MirrorStatus == store.MirrorReady && epic.MirrorPath != "" {
		return epic.MirrorPath
	}
	return c.projectDir
}

// Reviewed handles epic:reviewed. With a ready mirror it enqueues a
// merge task and marks the mirror merging; otherwise the epic is done.
func (c *EpicController) Reviewed(epicID string) (*store.Epic, *store.Task, error) {
	epic, err := c.st.GetEpic(epicID)
	if err != nil {
		return nil, nil, err
	}
	reviewed := store.EpicReviewed
	epic, err = c.st.UpdateEpic(epicID, store.EpicPatch{Status: &reviewed})
	if err != nil {
		return nil, nil, err
	}

	if epic.MirrorStatus != store.MirrorReady {
		done := store.EpicDone
		epic, err = c.st.UpdateEpic(epicID, store.EpicPatch{Status: &done})
		return epic, nil, err
	}

	mergeTask, err := c.st.CreateTask(store.TaskFields{
		Title:  fmt.Sprintf("Merge epic %s: %s", epic.ShortID, epic.Title),
		Labels: []string{LabelEpicMerge},
		EpicID: epic.ShortID,
	})
	if err != nil {
		return epic, nil, fmt.Errorf("creating merge task: %w", err)
	}
	merging := store.MirrorMerging
	epic, err = c.st.UpdateEpic(epicID, store.EpicPatch{MirrorStatus: &merging})
	if err != nil {
		return epic, mergeTask, err
	}
	c.log.Info("merge task enqueued", "epic", epic.ShortID, "task", mergeTask.ShortID)
	return epic, mergeTask, nil
}

// DirectMerge lands the epic branch with a plain git merge in the
// project repo, bypassing the merge agent.
func (c *EpicController) DirectMerge(epicID string) error {
	if !c.mirrorsEnabled {
		return fmt.Errorf("mirrors disabled, nothing to merge for epic %s", epicID)
	}
	return c.mirrors.Merge(epicID)
}

// MergeFinished records the merge task's outcome on the epic.
func (c *EpicController) MergeFinished(epicID string, ok bool) error {
	status := store.MirrorMerged
	if !ok {
		status = store.MirrorFailed
	}
	patch := store.EpicPatch{MirrorStatus: &status}
	if ok {
		done := store.EpicDone
		patch.Status = &done
	}
	_, err := c.st.UpdateEpic(epicID, patch)
	return err
}
