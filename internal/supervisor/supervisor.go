// Package supervisor spawns and reaps agent subprocesses. Each run
// gets its own directory under .fuel/processes/<run>/ holding
// stdout.log and stderr.log; completions are collected internally and
// handed to the scheduler exactly once via Poll.
package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// Outcome classifies how a run's process ended.
type Outcome string

const (
	// NormalExit means the process exited on its own; ExitCode holds
	// its status.
	NormalExit Outcome = "normal_exit"
	// Killed means the process was terminated by a signal, either an
	// explicit Kill or the wall-clock timeout.
	Killed Outcome = "killed"
	// CrashedEarly means the process died inside the early-crash
	// window without writing anything to stdout. Treated as a failure
	// regardless of exit code.
	CrashedEarly Outcome = "crashed_early"
)

// DefaultEarlyCrashWindow bounds how soon a silent exit counts as an
// early crash.
const DefaultEarlyCrashWindow = 10 * time.Second

// killGrace is how long a SIGTERMed process gets before SIGKILL.
const killGrace = 10 * time.Second

// Spec describes one process to spawn.
type Spec struct {
	RunID string
	Argv  []string
	Env   []string // appended to the daemon's environment
	Dir   string   // working directory; project path or epic mirror
	// Timeout is the wall-clock limit. Zero means no limit.
	Timeout time.Duration
}

// Completion is the exactly-once record of a finished process.
type Completion struct {
	RunID    string
	PID      int
	ExitCode int
	Outcome  Outcome
	TimedOut bool
	Duration time.Duration
}

// Process is the handle the supervisor waits on. The seam for tests:
// swap the starter for one returning a fake.
type Process interface {
	Wait() error
	PID() int
	Signal(sig syscall.Signal) error
}

// ProcessStarter launches a process per spec, wiring the given writers
// to its stdout and stderr.
type ProcessStarter func(spec Spec, stdout, stderr io.Writer) (Process, error)

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }
func (p *execProcess) PID() int    { return p.cmd.Process.Pid }

// Signal targets the process group so an agent's own children go with
// it. Falls back to the single pid when the group is already gone.
func (p *execProcess) Signal(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err == nil || err == syscall.ESRCH {
		return err
	}
	return syscall.Kill(pid, sig)
}

// ExecStarter spawns a real OS process in its own session so terminal
// signals aimed at the daemon never reach agents.
func ExecStarter(spec Spec, stdout, stderr io.Writer) (Process, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", spec.Argv[0], err)
	}
	return &execProcess{cmd: cmd}, nil
}

type child struct {
	runID     string
	pid       int
	proc      Process
	started   time.Time
	killed    bool
	timedOut  bool
	killTimer *time.Timer
}

// Supervisor owns the live children of one daemon instance.
type Supervisor struct {
	mu       sync.Mutex
	children map[string]*child
	done     []Completion

	baseDir     string // .fuel/processes
	starter     ProcessStarter
	earlyWindow time.Duration
	log         *slog.Logger

	// pidAlive checks process liveness via kill(pid, 0); overridden
	// in tests.
	pidAlive func(int) bool
}

// New builds a supervisor writing process logs under baseDir. A nil
// starter means real OS processes.
func New(baseDir string, starter ProcessStarter, log *slog.Logger) *Supervisor {
	if starter == nil {
		starter = ExecStarter
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		children:    make(map[string]*child),
		baseDir:     baseDir,
		starter:     starter,
		earlyWindow: DefaultEarlyCrashWindow,
		log:         log,
		pidAlive:    defaultPIDAlive,
	}
}

// defaultPIDAlive reports liveness via kill(pid, 0). ESRCH is the only
// signal the pid is gone; EPERM means alive but owned by someone else.
func defaultPIDAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}

// RunDir returns the per-run directory holding the process logs.
func (s *Supervisor) RunDir(runID string) string {
	return filepath.Join(s.baseDir, filepath.Base(runID))
}

// StdoutPath returns the path of a run's captured stdout.
func (s *Supervisor) StdoutPath(runID string) string {
	return filepath.Join(s.RunDir(runID), "stdout.log")
}

// StderrPath returns the path of a run's captured stderr.
func (s *Supervisor) StderrPath(runID string) string {
	return filepath.Join(s.RunDir(runID), "stderr.log")
}

// Spawn launches the process described by spec and begins reaping it
// in the background. A returned error means the process never started
// and nothing was registered.
func (s *Supervisor) Spawn(spec Spec) (pid int, err error) {
	dir := s.RunDir(spec.RunID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return 0, fmt.Errorf("creating run directory: %w", err)
	}
	stdout, err := openLog(filepath.Join(dir, "stdout.log"))
	if err != nil {
		return 0, err
	}
	stderr, err := openLog(filepath.Join(dir, "stderr.log"))
	if err != nil {
		stdout.Close()
		return 0, err
	}

	proc, err := s.starter(spec, stdout, stderr)
	if err != nil {
		stdout.Close()
		stderr.Close()
		return 0, fmt.Errorf("spawn %s: %w", spec.RunID, err)
	}

	c := &child{
		runID:   spec.RunID,
		pid:     proc.PID(),
		proc:    proc,
		started: time.Now(),
	}
	if spec.Timeout > 0 {
		c.killTimer = time.AfterFunc(spec.Timeout, func() { s.timeout(c) })
	}

	s.mu.Lock()
	s.children[spec.RunID] = c
	s.mu.Unlock()

	s.log.Info("process spawned", "run", spec.RunID, "pid", c.pid, "argv0", spec.Argv[0])

	go s.reap(c, stdout, stderr)
	return c.pid, nil
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// reap waits for the process, closes its logs, classifies the exit,
// and queues the completion for Poll.
func (s *Supervisor) reap(c *child, logs ...io.Closer) {
	err := c.proc.Wait()
	for _, l := range logs {
		if closeErr := l.Close(); closeErr != nil {
			s.log.Warn("closing process log", "run", c.runID, "error", closeErr)
		}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	duration := time.Since(c.started)

	s.mu.Lock()
	if c.killTimer != nil {
		c.killTimer.Stop()
	}
	delete(s.children, c.runID)

	comp := Completion{
		RunID:    c.runID,
		PID:      c.pid,
		ExitCode: exitCode,
		Outcome:  s.classify(c, err, duration),
		TimedOut: c.timedOut,
		Duration: duration,
	}
	s.done = append(s.done, comp)
	s.mu.Unlock()

	s.log.Info("process reaped",
		"run", c.runID,
		"pid", c.pid,
		"exit_code", exitCode,
		"outcome", comp.Outcome,
		"duration", duration.Round(time.Second),
	)
}

// classify is called with the lock held.
func (s *Supervisor) classify(c *child, waitErr error, duration time.Duration) Outcome {
	if c.killed || c.timedOut {
		return Killed
	}
	if waitErr != nil && duration < s.earlyWindow && s.stdoutEmpty(c.runID) {
		return CrashedEarly
	}
	return NormalExit
}

func (s *Supervisor) stdoutEmpty(runID string) bool {
	info, err := os.Stat(s.StdoutPath(runID))
	return err == nil && info.Size() == 0
}

// Poll drains the queued completions. Each completion is returned
// exactly once.
func (s *Supervisor) Poll() []Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.done
	s.done = nil
	return out
}

// Kill signals a live run. The reap goroutine records the completion
// once the process actually exits.
func (s *Supervisor) Kill(runID string, sig syscall.Signal) error {
	s.mu.Lock()
	c, ok := s.children[runID]
	if ok {
		c.killed = true
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: no live process", runID)
	}
	return c.proc.Signal(sig)
}

// IsAlive reports whether a run's process is still running. A
// registered child whose pid is gone counts as dead even before its
// reap completes.
func (s *Supervisor) IsAlive(runID string) bool {
	s.mu.Lock()
	c, ok := s.children[runID]
	s.mu.Unlock()
	return ok && s.pidAlive(c.pid)
}

// Running returns the number of live children.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// KillAll SIGTERMs every live child, for daemon shutdown.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	live := make([]*child, 0, len(s.children))
	for _, c := range s.children {
		c.killed = true
		live = append(live, c)
	}
	s.mu.Unlock()

	for _, c := range live {
		if err := c.proc.Signal(syscall.SIGTERM); err != nil && err != syscall.ESRCH {
			s.log.Warn("signaling child", "run", c.runID, "pid", c.pid, "error", err)
		}
	}
}

// timeout enforces the wall-clock limit: SIGTERM now, SIGKILL after
// the grace period if the process is still around.
func (s *Supervisor) timeout(c *child) {
	s.mu.Lock()
	_, live := s.children[c.runID]
	if live {
		c.timedOut = true
	}
	s.mu.Unlock()
	if !live {
		return
	}

	s.log.Warn("run exceeded wall-clock limit", "run", c.runID, "pid", c.pid)
	_ = c.proc.Signal(syscall.SIGTERM)

	time.AfterFunc(killGrace, func() {
		s.mu.Lock()
		_, still := s.children[c.runID]
		s.mu.Unlock()
		if still {
			_ = c.proc.Signal(syscall.SIGKILL)
		}
	})
}
