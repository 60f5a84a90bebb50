package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/driver"
	"github.com/fuelhq/fuel/internal/protocol"
	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/supervisor"
)

// outputTailBytes is how much of a run's stdout is copied onto the
// run row; the full stream stays in the process log file.
const outputTailBytes = 4 * 1024

// DefaultAgent runs tasks that don't name one.
const DefaultAgent = driver.Claude

// liveRun tracks one dispatched child until its completion is reaped.
type liveRun struct {
	runShortID string
	taskID     string
	agent      string
	reviewID   string // set when this is a reviewer run
	epicMerge  bool
}

// Scheduler is the single-threaded tick loop: reap, epic rollup,
// admit, dispatch, broadcast, ingest.
type Scheduler struct {
	st         *store.Store
	sup        *supervisor.Supervisor
	reg        *driver.Registry
	health     *HealthTracker
	srv        *Server
	epics      *EpicController
	cfg        config.Config
	projectDir string
	log        *slog.Logger

	running        map[string]*liveRun // keyed by run short id
	pendingReviews []string            // task ids awaiting a reviewer run
	deferred       map[string]struct{} // task ids reopened this reap; admit skips them for one pass
	stopRequested  bool
}

// NewScheduler wires the tick loop. srv may be nil in tests; events
// are then dropped.
func NewScheduler(st *store.Store, sup *supervisor.Supervisor, reg *driver.Registry,
	health *HealthTracker, srv *Server, epics *EpicController,
	cfg config.Config, projectDir string, log *slog.Logger) *Scheduler {
	return &Scheduler{
		st:         st,
		sup:        sup,
		reg:        reg,
		health:     health,
		srv:        srv,
		epics:      epics,
		cfg:        cfg,
		projectDir: projectDir,
		log:        log,
		running:    make(map[string]*liveRun),
		deferred:   make(map[string]struct{}),
	}
}

// StopRequested reports whether a client asked the daemon to shut down.
func (sc *Scheduler) StopRequested() bool { return sc.stopRequested }

// RunningCount is the number of children counted against the cap.
func (sc *Scheduler) RunningCount() int { return len(sc.running) }

// Tick runs one scheduler pass.
func (sc *Scheduler) Tick() {
	sc.reap()
	sc.admit()
	sc.heartbeat()
}

// reap handles every completion the supervisor collected since the
// last tick.
func (sc *Scheduler) reap() {
	for _, comp := range sc.sup.Poll() {
		lr, ok := sc.running[comp.RunID]
		if !ok {
			sc.log.Warn("completion for unknown run", "run", comp.RunID)
			continue
		}
		delete(sc.running, comp.RunID)
		sc.finishRun(lr, comp)
	}
}

// finishRun closes the run row and advances the task (or review)
// state machine.
func (sc *Scheduler) finishRun(lr *liveRun, comp supervisor.Completion) {
	usage := sc.harvest(lr)
	tail := sc.outputTail(lr.runShortID)

	now := timeNow()
	patch := store.RunPatch{
		ExitCode: &comp.ExitCode,
		EndedAt:  &now,
		Output:   &tail,
	}
	if usage.Model != "" {
		patch.Model = &usage.Model
	}
	if usage.SessionID != "" {
		patch.SessionID = &usage.SessionID
	}
	if usage.CostUSD > 0 {
		patch.CostUSD = &usage.CostUSD
	}
	if comp.Outcome != supervisor.NormalExit {
		reason := string(comp.Outcome)
		patch.Reason = &reason
	}
	if _, err := sc.st.UpdateRun(lr.runShortID, patch); err != nil {
		sc.log.Error("recording run completion", "run", lr.runShortID, "error", err)
	}

	succeeded := comp.ExitCode == 0 && comp.Outcome == supervisor.NormalExit

	sc.broadcast(protocol.EventRunCompleted, protocol.RunCompletedPayload{
		TaskID:     lr.taskID,
		RunShortID: lr.runShortID,
		Agent:      lr.agent,
		ExitCode:   comp.ExitCode,
		Outcome:    string(comp.Outcome),
		CostUSD:    usage.CostUSD,
	})

	if lr.reviewID != "" {
		sc.finishReview(lr, comp, usage, succeeded)
		return
	}
	sc.finishTask(lr, comp, usage, succeeded)
}

// finishTask advances the task after one of its own runs ended. Tasks
// moved elsewhere while the run was live (paused mid-run, closed by
// hand) stay where the user put them.
func (sc *Scheduler) finishTask(lr *liveRun, comp supervisor.Completion, usage driver.Usage, succeeded bool) {
	task, err := sc.st.GetTask(lr.taskID)
	if err != nil {
		sc.log.Error("loading task after run", "task", lr.taskID, "error", err)
		return
	}
	if task.Status != store.StatusInProgress {
		sc.log.Info("run ended for a task no longer in progress",
			"task", task.ShortID, "status", task.Status)
		return
	}

	if lr.epicMerge {
		sc.finishMerge(task, succeeded)
		return
	}

	if !succeeded {
		// A SIGTERM the user asked for is not the agent's fault; a
		// wall-clock timeout is.
		if comp.Outcome != supervisor.Killed || comp.TimedOut {
			sc.health.Failure(lr.agent)
		}
		sc.transition(task, store.StatusOpen, "")
		sc.deferred[task.ShortID] = struct{}{}
		return
	}
	sc.health.Success(lr.agent)

	if task.Selfguided() && !driver.SelfguidedAccepted(usage.FinalText) {
		sc.continueSelfguided(task)
		return
	}

	if sc.cfg.ReviewEnabled {
		sc.transition(task, store.StatusReview, "")
		sc.pendingReviews = append(sc.pendingReviews, task.ShortID)
		return
	}
	sc.markDone(task, "completed")
}

// continueSelfguided re-opens a selfguided task for another iteration,
// or parks it for a human once the ceiling is hit.
func (sc *Scheduler) continueSelfguided(task *store.Task) {
	next := task.SelfguidedIteration + 1
	if next >= sc.cfg.SelfguidedCeiling {
		labels := append(append([]string{}, task.Labels...), store.LabelNeedsHuman)
		open := store.StatusOpen
		if _, err := sc.st.UpdateTask(task.ShortID, store.TaskPatch{Status: &open, Labels: &labels}); err != nil {
			sc.log.Error("parking selfguided task", "task", task.ShortID, "error", err)
			return
		}
		sc.log.Warn("selfguided ceiling reached", "task", task.ShortID, "iterations", next)
		sc.broadcast(protocol.EventTaskStatusChanged, protocol.StatusChangePayload{
			TaskID: task.ShortID, From: string(task.Status), To: string(store.StatusOpen),
		})
		return
	}
	open := store.StatusOpen
	if _, err := sc.st.UpdateTask(task.ShortID, store.TaskPatch{Status: &open, SelfguidedIteration: &next}); err != nil {
		sc.log.Error("reopening selfguided task", "task", task.ShortID, "error", err)
		return
	}
	sc.deferred[task.ShortID] = struct{}{}
	sc.broadcast(protocol.EventTaskStatusChanged, protocol.StatusChangePayload{
		TaskID: task.ShortID, From: string(task.Status), To: string(store.StatusOpen),
	})
}

// finishMerge records a merge task's outcome on its epic. When the
// merge agent fails, a plain git merge of the epic branch is tried
// before the task is parked for a human.
func (sc *Scheduler) finishMerge(task *store.Task, succeeded bool) {
	if !succeeded && task.EpicID != "" {
		if err := sc.epics.DirectMerge(task.EpicID); err != nil {
			sc.log.Warn("direct merge failed", "epic", task.EpicID, "error", err)
		} else {
			sc.log.Info("epic branch merged directly", "epic", task.EpicID)
			succeeded = true
		}
	}
	if succeeded {
		sc.markDone(task, "merged")
	} else {
		labels := append(append([]string{}, task.Labels...), store.LabelNeedsHuman)
		open := store.StatusOpen
		if _, err := sc.st.UpdateTask(task.ShortID, store.TaskPatch{Status: &open, Labels: &labels}); err != nil {
			sc.log.Error("reopening merge task", "task", task.ShortID, "error", err)
		}
	}
	if task.EpicID != "" {
		if err := sc.epics.MergeFinished(task.EpicID, succeeded); err != nil {
			sc.log.Error("recording merge outcome", "epic", task.EpicID, "error", err)
		}
	}
}

// finishReview applies the reviewer's verdict.
func (sc *Scheduler) finishReview(lr *liveRun, comp supervisor.Completion, usage driver.Usage, succeeded bool) {
	verdict, issues := VerdictUnknown, []string(nil)
	if succeeded {
		verdict, issues = ParseVerdict(usage.FinalText)
	}

	task, err := sc.st.GetTask(lr.taskID)
	if err != nil {
		sc.log.Error("loading task after review", "task", lr.taskID, "error", err)
		return
	}

	switch verdict {
	case VerdictPass:
		sc.health.Success(lr.agent)
		if _, err := sc.st.CompleteReview(lr.reviewID, store.ReviewPassed, nil); err != nil {
			sc.log.Error("closing review", "review", lr.reviewID, "error", err)
		}
		sc.markDone(task, "review-passed")
	default:
		if !succeeded {
			sc.health.Failure(lr.agent)
			issues = []string{fmt.Sprintf("reviewer exited with code %d", comp.ExitCode)}
		} else if verdict == VerdictUnknown {
			issues = []string{"reviewer produced no parseable verdict"}
		}
		if _, err := sc.st.CompleteReview(lr.reviewID, store.ReviewFailed, issues); err != nil {
			sc.log.Error("closing review", "review", lr.reviewID, "error", err)
		}
		if task.Status == store.StatusReview && sc.transition(task, store.StatusOpen, "") {
			sc.deferred[task.ShortID] = struct{}{}
		}
	}
}

// resumeReviews reloads the reviewer queue from tasks already sitting
// in review, as after a daemon restart.
func (sc *Scheduler) resumeReviews() error {
	tasks, err := sc.st.ListTasks(store.StatusReview)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		sc.pendingReviews = append(sc.pendingReviews, t.ShortID)
	}
	if len(tasks) > 0 {
		sc.log.Info("resumed pending reviews", "count", len(tasks))
	}
	return nil
}

// admit fills free slots: pending reviewer runs first, then ready
// tasks. Reviews count against the same cap as task runs. Tasks the
// current reap reopened wait one pass so their failed state is
// observable before the next attempt starts.
func (sc *Scheduler) admit() {
	free := sc.cfg.ConcurrencyCap - len(sc.running)
	var requeued []string
	for free > 0 && len(sc.pendingReviews) > 0 {
		taskID := sc.pendingReviews[0]
		sc.pendingReviews = sc.pendingReviews[1:]
		spawned, retry := sc.dispatchReview(taskID)
		if spawned {
			free--
		} else if retry {
			requeued = append(requeued, taskID)
		}
	}
	sc.pendingReviews = append(requeued, sc.pendingReviews...)
	if free <= 0 {
		return
	}

	ready, err := sc.st.ListReady(sc.health.Cooling)
	if err != nil {
		sc.log.Error("computing ready queue", "error", err)
		return
	}
	for i := 0; i < len(ready) && free > 0; i++ {
		if _, held := sc.deferred[ready[i].ShortID]; held {
			continue
		}
		if sc.dispatch(&ready[i]) {
			free--
		}
	}
	clear(sc.deferred)
}

// dispatch runs one ready task. Returns true when a child was spawned.
func (sc *Scheduler) dispatch(task *store.Task) bool {
	agent := task.Agent
	if agent == "" {
		agent = DefaultAgent
	}
	drv, err := sc.reg.Lookup(agent)
	if err != nil {
		sc.log.Error("task names an unknown agent", "task", task.ShortID, "agent", agent)
		sc.park(task)
		return false
	}

	var epic *store.Epic
	if task.EpicID != "" {
		epic, err = sc.st.GetEpic(task.EpicID)
		if err != nil {
			sc.log.Error("loading epic for dispatch", "task", task.ShortID, "error", err)
			return false
		}
		if !task.HasLabel(LabelEpicMerge) {
			if epic, err = sc.epics.EnsureMirror(epic); err != nil {
				sc.log.Error("ensuring mirror", "epic", task.EpicID, "error", err)
			}
		}
	}

	var prompt string
	if task.HasLabel(LabelEpicMerge) && epic != nil {
		prompt = RenderMergePrompt(epic)
	} else if agent == driver.EpicReview && epic != nil {
		tasks, lerr := sc.st.ListTasksByEpic(epic.ShortID)
		if lerr != nil {
			sc.log.Error("listing epic tasks", "epic", epic.ShortID, "error", lerr)
			return false
		}
		prompt = RenderEpicReviewPrompt(sc.projectDir, epic, tasks)
	} else {
		prompt = RenderTaskPrompt(sc.projectDir, task, epic)
	}

	req := driver.Request{Prompt: prompt}
	if task.Selfguided() && task.SelfguidedIteration > 0 {
		if last, lerr := sc.st.LatestRun(task.ShortID); lerr == nil {
			req.SessionID = last.SessionID
		}
	}

	cwd := sc.projectDir
	if epic != nil && !task.HasLabel(LabelEpicMerge) {
		cwd = sc.epics.WorkDir(epic)
	}

	if !sc.transition(task, store.StatusInProgress, "") {
		return false
	}
	return sc.spawn(task, drv, req, cwd, "", task.HasLabel(LabelEpicMerge))
}

// dispatchReview spawns a reviewer run for a task sitting in review.
// retry asks admit to hold the id for the next tick; ids whose task
// left review, or whose reviewer could not start, are dropped.
func (sc *Scheduler) dispatchReview(taskID string) (spawned, retry bool) {
	task, err := sc.st.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, false
		}
		sc.log.Error("loading task for review", "task", taskID, "error", err)
		return false, true
	}
	if task.Status != store.StatusReview {
		return false, false
	}
	agent := sc.cfg.ReviewAgent
	drv, err := sc.reg.Lookup(agent)
	if err != nil {
		sc.log.Error("review agent not registered", "agent", agent)
		sc.transition(task, store.StatusOpen, "review-agent-missing")
		return false, false
	}
	review, err := sc.st.CreateReview(taskID, agent)
	if err != nil {
		sc.log.Error("creating review row", "task", taskID, "error", err)
		return false, true
	}

	last, _ := sc.st.LatestRun(taskID)
	prompt := RenderReviewPrompt(task, last, "")
	return sc.spawnReview(task, drv, driver.Request{Prompt: prompt}, review.ShortID), false
}

func (sc *Scheduler) spawnReview(task *store.Task, drv driver.Driver, req driver.Request, reviewID string) bool {
	return sc.spawn(task, drv, req, sc.projectDir, reviewID, false)
}

// spawn creates the run row, launches the child, and registers it.
func (sc *Scheduler) spawn(task *store.Task, drv driver.Driver, req driver.Request, cwd, reviewID string, epicMerge bool) bool {
	run, err := sc.st.CreateRun(task.ShortID, drv.Name(), 0)
	if err != nil {
		sc.log.Error("creating run row", "task", task.ShortID, "error", err)
		return false
	}

	inv := drv.BuildInvocation(req)
	pid, err := sc.sup.Spawn(supervisor.Spec{
		RunID:   run.ShortID,
		Argv:    inv.Argv,
		Env:     inv.Env,
		Dir:     cwd,
		Timeout: sc.cfg.AgentTimeout(),
	})
	if err != nil {
		sc.log.Error("spawn failed", "task", task.ShortID, "error", err)
		sc.health.Failure(drv.Name())
		exit := -1
		now := timeNow()
		reason := "spawn-failed"
		if _, uerr := sc.st.UpdateRun(run.ShortID, store.RunPatch{
			ExitCode: &exit, EndedAt: &now, Reason: &reason,
		}); uerr != nil {
			sc.log.Error("closing failed run", "run", run.ShortID, "error", uerr)
		}
		if reviewID != "" {
			if _, cerr := sc.st.CompleteReview(reviewID, store.ReviewFailed, []string{"reviewer failed to start"}); cerr != nil {
				sc.log.Error("closing review", "review", reviewID, "error", cerr)
			}
		}
		if t, gerr := sc.st.GetTask(task.ShortID); gerr == nil {
			sc.transition(t, store.StatusOpen, "")
		}
		return false
	}

	if _, err := sc.st.UpdateRun(run.ShortID, store.RunPatch{PID: &pid}); err != nil {
		sc.log.Error("recording pid", "run", run.ShortID, "error", err)
	}

	sc.running[run.ShortID] = &liveRun{
		runShortID: run.ShortID,
		taskID:     task.ShortID,
		agent:      drv.Name(),
		reviewID:   reviewID,
		epicMerge:  epicMerge,
	}
	sc.broadcast(protocol.EventRunStarted, protocol.RunStartedPayload{
		TaskID:     task.ShortID,
		RunShortID: run.ShortID,
		RunID:      run.RunID,
		Agent:      drv.Name(),
		PID:        pid,
	})
	return true
}

// park marks a task needs-human so the queue stops retrying it.
func (sc *Scheduler) park(task *store.Task) {
	if task.HasLabel(store.LabelNeedsHuman) {
		return
	}
	labels := append(append([]string{}, task.Labels...), store.LabelNeedsHuman)
	if _, err := sc.st.UpdateTask(task.ShortID, store.TaskPatch{Labels: &labels}); err != nil {
		sc.log.Error("labeling task", "task", task.ShortID, "error", err)
	}
}

// transition moves a task and broadcasts the change. Moves the state
// machine forbids are logged and skipped; callers that must not move
// a task the user relocated mid-run check its status first.
func (sc *Scheduler) transition(task *store.Task, to store.TaskStatus, reason string) bool {
	if !store.CanTransition(task.Status, to) {
		sc.log.Debug("skipping transition", "task", task.ShortID, "from", task.Status, "to", to)
		return false
	}
	patch := store.TaskPatch{Status: &to}
	if reason != "" {
		patch.Reason = &reason
	}
	if _, err := sc.st.UpdateTask(task.ShortID, patch); err != nil {
		sc.log.Error("task transition", "task", task.ShortID, "to", to, "error", err)
		return false
	}
	from := task.Status
	task.Status = to
	sc.broadcast(protocol.EventTaskStatusChanged, protocol.StatusChangePayload{
		TaskID: task.ShortID, From: string(from), To: string(to),
	})
	return true
}

// markDone completes a task and runs the epic rollup.
func (sc *Scheduler) markDone(task *store.Task, reason string) {
	from := task.Status
	if _, err := sc.st.Done(task.ShortID, reason, ""); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			sc.log.Error("completing task", "task", task.ShortID, "error", err)
		}
		return
	}
	sc.broadcast(protocol.EventTaskStatusChanged, protocol.StatusChangePayload{
		TaskID: task.ShortID, From: string(from), To: string(store.StatusDone),
	})

	if task.EpicID == "" {
		return
	}
	review, err := sc.epics.CheckCompletion(task.EpicID)
	if err != nil {
		sc.log.Error("epic rollup", "epic", task.EpicID, "error", err)
		return
	}
	if review != nil {
		sc.broadcast(protocol.EventTaskCreated, protocol.TaskPayload{Task: *review})
		sc.broadcast(protocol.EventEpicCompleted, protocol.EpicCompletedPayload{
			EpicID: task.EpicID, ReviewTaskID: review.ShortID,
		})
	}
}

// heartbeat tells attached boards how busy the daemon is.
func (sc *Scheduler) heartbeat() {
	ready, err := sc.st.ListReady(sc.health.Cooling)
	if err != nil {
		return
	}
	sc.broadcast(protocol.EventHeartbeat, protocol.HeartbeatPayload{
		Running: len(sc.running),
		Ready:   len(ready),
	})
}

// harvest parses a finished run's stdout for model, session and cost.
func (sc *Scheduler) harvest(lr *liveRun) driver.Usage {
	drv, err := sc.reg.Lookup(lr.agent)
	if err != nil {
		return driver.Usage{}
	}
	f, err := os.Open(sc.sup.StdoutPath(lr.runShortID))
	if err != nil {
		return driver.Usage{}
	}
	defer f.Close()
	usage, err := driver.Harvest(drv, f)
	if err != nil {
		sc.log.Warn("harvesting run output", "run", lr.runShortID, "error", err)
	}
	return usage
}

// outputTail reads the last few KiB of a run's stdout.
func (sc *Scheduler) outputTail(runShortID string) string {
	f, err := os.Open(sc.sup.StdoutPath(runShortID))
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	if info.Size() > outputTailBytes {
		if _, err := f.Seek(-outputTailBytes, io.SeekEnd); err != nil {
			return ""
		}
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(raw)
}

// HandleCommand applies one IPC command inside the tick thread.
func (sc *Scheduler) HandleCommand(env protocol.Envelope) {
	switch env.Type {
	case protocol.CmdPauseTask:
		sc.handlePause(env)
	case protocol.CmdUnpauseTask:
		sc.handleUnpause(env)
	case protocol.CmdCancelRun:
		sc.handleCancel(env)
	case protocol.CmdInjectTask:
		sc.handleInject(env)
	case protocol.CmdStatus:
		sc.respond(env.RequestID, protocol.EventResponse, protocol.StatusResponsePayload{
			Running: len(sc.running),
			Ready:   sc.readyCount(),
			Cooling: sc.health.CoolingAgents(),
		})
	case protocol.CmdHealthReset:
		sc.health.Reset()
		sc.respond(env.RequestID, protocol.EventResponse, map[string]bool{"ok": true})
	case protocol.CmdShutdown:
		sc.stopRequested = true
		sc.respond(env.RequestID, protocol.EventResponse, map[string]bool{"ok": true})
	default:
		if protocol.IsBrowserCommand(env.Type) {
			// No browser adjunct runs inside the daemon; answer so the
			// client's correlation wait terminates.
			sc.respond(env.RequestID, protocol.EventBrowserResponse, protocol.ErrorPayload{
				Message: "no browser adjunct attached",
			})
			return
		}
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{
			Message: "unknown command " + env.Type,
		})
	}
}

func (sc *Scheduler) handlePause(env protocol.Envelope) {
	var ref protocol.TaskRefPayload
	if err := protocol.DecodePayload(env, &ref); err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}
	task, err := sc.st.GetTask(ref.TaskID)
	if err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}

	// Pausing an in-progress task cancels its run first; the reap path
	// sees the task already paused and leaves it there.
	if task.Status == store.StatusInProgress {
		sc.cancelRunsFor(task.ShortID)
	}
	if !sc.transition(task, store.StatusPaused, "") {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{
			Message: fmt.Sprintf("cannot pause task in status %s", task.Status),
		})
		return
	}
	sc.respond(env.RequestID, protocol.EventResponse, map[string]bool{"ok": true})
}

func (sc *Scheduler) handleUnpause(env protocol.Envelope) {
	var ref protocol.TaskRefPayload
	if err := protocol.DecodePayload(env, &ref); err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}
	task, err := sc.st.GetTask(ref.TaskID)
	if err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}
	if !sc.transition(task, store.StatusOpen, "") {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{
			Message: fmt.Sprintf("cannot unpause task in status %s", task.Status),
		})
		return
	}
	sc.respond(env.RequestID, protocol.EventResponse, map[string]bool{"ok": true})
}

func (sc *Scheduler) handleCancel(env protocol.Envelope) {
	var ref protocol.TaskRefPayload
	if err := protocol.DecodePayload(env, &ref); err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}
	if !sc.cancelRunsFor(ref.TaskID) {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{
			Message: "no live run for task " + ref.TaskID,
		})
		return
	}
	sc.respond(env.RequestID, protocol.EventResponse, map[string]bool{"ok": true})
}

// cancelRunsFor SIGTERMs every live run of a task. The completion
// lands next tick with a Killed outcome.
func (sc *Scheduler) cancelRunsFor(taskID string) bool {
	found := false
	for runID, lr := range sc.running {
		if lr.taskID != taskID {
			continue
		}
		found = true
		if err := sc.sup.Kill(runID, syscall.SIGTERM); err != nil {
			sc.log.Warn("canceling run", "run", runID, "error", err)
		}
	}
	return found
}

func (sc *Scheduler) handleInject(env protocol.Envelope) {
	var p protocol.InjectTaskPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}
	task, err := sc.st.CreateTask(store.TaskFields{
		Title:       p.Title,
		Description: p.Description,
		Agent:       p.Agent,
		Priority:    p.Priority,
		Labels:      p.Labels,
		EpicID:      p.EpicID,
	})
	if err != nil {
		sc.respond(env.RequestID, protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		return
	}
	sc.broadcast(protocol.EventTaskCreated, protocol.TaskPayload{Task: *task})
	sc.respond(env.RequestID, protocol.EventResponse, protocol.TaskPayload{Task: *task})
}

func (sc *Scheduler) readyCount() int {
	ready, err := sc.st.ListReady(sc.health.Cooling)
	if err != nil {
		return 0
	}
	return len(ready)
}

func (sc *Scheduler) broadcast(eventType string, payload any) {
	if sc.srv != nil {
		sc.srv.Broadcast(eventType, payload)
	}
}

func (sc *Scheduler) respond(requestID, eventType string, payload any) {
	if sc.srv != nil {
		sc.srv.Respond(requestID, eventType, payload)
	}
}
