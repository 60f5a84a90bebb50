// Package daemon implements the consume daemon: the tick-loop
// scheduler, process supervision glue, epic controller, review
// pipeline, health tracking and the IPC server.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/driver"
	"github.com/fuelhq/fuel/internal/mirror"
	"github.com/fuelhq/fuel/internal/protocol"
	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/supervisor"
)

// timeNow is the daemon's clock; swapped in tests.
var timeNow = func() time.Time { return time.Now().UTC() }

// healthRebuildWindow is how many recent runs seed the health tracker
// at startup.
const healthRebuildWindow = 50

// Daemon owns one project's consume loop.
type Daemon struct {
	projectDir string
	cfg        config.Config
	log        *slog.Logger

	st         *store.Store
	sup        *supervisor.Supervisor
	reg        *driver.Registry
	health     *HealthTracker
	srv        *Server
	sched      *Scheduler
	instanceID string

	// pidAlive is the liveness probe for the single-instance check.
	pidAlive func(int) bool
}

// New wires a daemon for the project. The store stays open until
// Close.
func New(projectDir string, cfg config.Config, log *slog.Logger) (*Daemon, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(store.DBPath(projectDir))
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(filepath.Join(projectDir, config.Dir, "processes"), nil, log)
	reg := driver.NewRegistry(cfg.Agents)
	health := NewHealthTracker(cfg.Health.FailureThreshold, cfg.Health.Cooldown())

	var mirrors *mirror.Manager
	if cfg.EpicMirrorsEnabled {
		mirrors, err = mirror.NewManager(projectDir, "")
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	epics := NewEpicController(st, mirrors, cfg.EpicMirrorsEnabled, projectDir, log)

	d := &Daemon{
		projectDir: projectDir,
		cfg:        cfg,
		log:        log,
		st:         st,
		sup:        sup,
		reg:        reg,
		health:     health,
		instanceID: protocol.NewInstanceID(),
		pidAlive:   pidAlive,
	}
	d.sched = NewScheduler(st, sup, reg, health, nil, epics, cfg, projectDir, log)
	return d, nil
}

// Close releases the store.
func (d *Daemon) Close() error {
	return d.st.Close()
}

// Run starts the daemon and blocks until the context is canceled or a
// client requests shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquireLock(); err != nil {
		return err
	}
	defer func() {
		if err := protocol.RemovePidFile(d.projectDir); err != nil {
			d.log.Warn("removing pid file", "error", err)
		}
	}()

	if err := d.recoverySweep(); err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	if err := d.sched.resumeReviews(); err != nil {
		return fmt.Errorf("resuming reviews: %w", err)
	}
	if runs, err := d.st.RecentRuns(healthRebuildWindow); err == nil {
		d.health.Rebuild(runs)
	}

	srv, err := NewServer(d.instanceID, d.snapshot, d.log)
	if err != nil {
		return err
	}
	d.srv = srv
	d.sched.srv = srv
	defer srv.Close()

	if err := protocol.WritePidFile(d.projectDir, protocol.PidFile{
		PID:       os.Getpid(),
		Port:      srv.Port(),
		StartedAt: timeNow(),
	}); err != nil {
		return err
	}

	d.log.Info("consume daemon started",
		"project", d.projectDir,
		"port", srv.Port(),
		"interval", d.cfg.Interval(),
		"cap", d.cfg.ConcurrencyCap,
	)

	for {
		d.sched.Tick()
		if d.sched.StopRequested() {
			break
		}

		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case env := <-d.srv.Commands():
			d.sched.HandleCommand(env)
			d.drainCommands()
		case <-time.After(d.cfg.Interval()):
		}
	}

	d.shutdown()
	return nil
}

// drainCommands applies whatever else is queued without sleeping.
func (d *Daemon) drainCommands() {
	for {
		select {
		case env := <-d.srv.Commands():
			d.sched.HandleCommand(env)
		default:
			return
		}
	}
}

// acquireLock enforces one daemon per project via the pid file.
func (d *Daemon) acquireLock() error {
	pf, err := protocol.ReadPidFile(d.projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if d.pidAlive(pf.PID) {
		return fmt.Errorf("consume daemon already running (pid %d, port %d)", pf.PID, pf.Port)
	}
	// Stale file from a crashed daemon; the sweep handles its orphans.
	return protocol.RemovePidFile(d.projectDir)
}

// recoverySweep closes runs orphaned by a previous daemon: any
// in_progress task whose recorded pid is dead goes back to open, its
// run closed with exit_code -1 and reason daemon-restart.
func (d *Daemon) recoverySweep() error {
	open, err := d.st.OpenRuns()
	if err != nil {
		return err
	}
	for _, r := range open {
		if r.PID != 0 && d.pidAlive(r.PID) {
			continue
		}
		exit := -1
		now := timeNow()
		reason := "daemon-restart"
		if _, err := d.st.UpdateRun(r.ShortID, store.RunPatch{
			ExitCode: &exit, EndedAt: &now, Reason: &reason,
		}); err != nil {
			return err
		}

		task, err := d.st.GetTask(r.TaskShortID)
		if err != nil {
			d.log.Warn("orphaned run without task", "run", r.ShortID, "error", err)
			continue
		}
		if task.Status == store.StatusInProgress {
			open := store.StatusOpen
			if _, err := d.st.UpdateTask(task.ShortID, store.TaskPatch{Status: &open}); err != nil {
				return err
			}
			d.log.Info("reclaimed orphaned task", "task", task.ShortID, "run", r.ShortID)
		}
	}
	return nil
}

// snapshot builds the board state sent to a client on ATTACH.
func (d *Daemon) snapshot() (protocol.SnapshotPayload, error) {
	tasks, err := d.st.ListTasks("")
	if err != nil {
		return protocol.SnapshotPayload{}, err
	}
	epics, err := d.st.ListEpics("")
	if err != nil {
		return protocol.SnapshotPayload{}, err
	}
	runs, err := d.st.OpenRuns()
	if err != nil {
		return protocol.SnapshotPayload{}, err
	}
	return protocol.SnapshotPayload{Tasks: tasks, Epics: epics, Runs: runs}, nil
}

// shutdown SIGTERMs every child, waits up to the grace period, then
// reaps whatever exited so the final rows are written.
func (d *Daemon) shutdown() {
	d.log.Info("shutting down", "grace", d.cfg.ShutdownGrace())
	d.srv.Close()
	d.sup.KillAll()

	deadline := time.Now().Add(d.cfg.ShutdownGrace())
	for d.sup.Running() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if d.sup.Running() > 0 {
		d.log.Warn("children survived the grace period", "count", d.sup.Running())
	}

	// Final reap writes completion rows for everything that exited.
	d.sched.reap()
	d.log.Info("consume daemon stopped")
}

// pidAlive checks liveness via kill(pid, 0); only ESRCH means gone.
func pidAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}
