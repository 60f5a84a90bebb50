package supervisor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"
)

// fakeProcess exits when told to, recording signals it receives.
type fakeProcess struct {
	pid     int
	waitErr error

	mu      sync.Mutex
	signals []syscall.Signal
	exited  chan struct{}
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exited: make(chan struct{})}
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return p.waitErr
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	return nil
}

func (p *fakeProcess) exit(err error) {
	p.waitErr = err
	close(p.exited)
}

func (p *fakeProcess) gotSignal(sig syscall.Signal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.signals {
		if s == sig {
			return true
		}
	}
	return false
}

// fakeStarter hands out pre-built processes and remembers the writers
// so tests can emit stdout.
type fakeStarter struct {
	mu      sync.Mutex
	procs   map[string]*fakeProcess
	stdouts map[string]io.Writer
	nextPID int
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{procs: map[string]*fakeProcess{}, stdouts: map[string]io.Writer{}, nextPID: 1000}
}

func (f *fakeStarter) start(spec Spec, stdout, stderr io.Writer) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	p := newFakeProcess(f.nextPID)
	f.procs[spec.RunID] = p
	f.stdouts[spec.RunID] = stdout
	return p, nil
}

func (f *fakeStarter) proc(runID string) *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[runID]
}

func (f *fakeStarter) writeStdout(runID, line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.stdouts[runID], line)
}

func testSupervisor(t *testing.T) (*Supervisor, *fakeStarter) {
	t.Helper()
	starter := newFakeStarter()
	s := New(t.TempDir(), starter.start, nil)
	return s, starter
}

// waitCompletions polls until n completions have arrived.
func waitCompletions(t *testing.T, s *Supervisor, n int) []Completion {
	t.Helper()
	var got []Completion
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got = append(got, s.Poll()...)
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d completions, have %d", n, len(got))
	return nil
}

func TestSpawnPollExactlyOnce(t *testing.T) {
	s, starter := testSupervisor(t)
	// Fake pids are not in the real process table.
	s.pidAlive = func(int) bool { return true }

	pid, err := s.Spawn(Spec{RunID: "r-aaaaaa", Argv: []string{"agent"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid == 0 {
		t.Fatal("pid not reported")
	}
	if !s.IsAlive("r-aaaaaa") {
		t.Error("IsAlive = false for live child")
	}

	starter.writeStdout("r-aaaaaa", `{"type":"system"}`)
	starter.proc("r-aaaaaa").exit(nil)

	got := waitCompletions(t, s, 1)
	if got[0].RunID != "r-aaaaaa" || got[0].Outcome != NormalExit || got[0].ExitCode != 0 {
		t.Errorf("completion = %+v", got[0])
	}
	if extra := s.Poll(); len(extra) != 0 {
		t.Errorf("Poll returned completion twice: %+v", extra)
	}
	if s.IsAlive("r-aaaaaa") {
		t.Error("IsAlive = true after reap")
	}
}

func TestSpawnFailed(t *testing.T) {
	s := New(t.TempDir(), func(Spec, io.Writer, io.Writer) (Process, error) {
		return nil, errors.New("exec format error")
	}, nil)

	if _, err := s.Spawn(Spec{RunID: "r-bbbbbb", Argv: []string{"agent"}}); err == nil {
		t.Fatal("Spawn succeeded despite starter failure")
	}
	if s.Running() != 0 {
		t.Error("failed spawn left a registered child")
	}
	if got := s.Poll(); len(got) != 0 {
		t.Errorf("failed spawn queued a completion: %+v", got)
	}
}

func TestCrashedEarlySilentExit(t *testing.T) {
	s, starter := testSupervisor(t)

	if _, err := s.Spawn(Spec{RunID: "r-cccccc", Argv: []string{"agent"}}); err != nil {
		t.Fatal(err)
	}
	// Dies immediately without writing a byte of stdout.
	starter.proc("r-cccccc").exit(errors.New("wait: no child"))

	got := waitCompletions(t, s, 1)
	if got[0].Outcome != CrashedEarly {
		t.Errorf("outcome = %s, want crashed_early", got[0].Outcome)
	}
	if got[0].ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 for non-exit wait error", got[0].ExitCode)
	}
}

func TestFailureAfterOutputIsNotEarlyCrash(t *testing.T) {
	s, starter := testSupervisor(t)

	if _, err := s.Spawn(Spec{RunID: "r-dddddd", Argv: []string{"agent"}}); err != nil {
		t.Fatal(err)
	}
	starter.writeStdout("r-dddddd", `{"type":"system","subtype":"init"}`)
	starter.proc("r-dddddd").exit(errors.New("boom"))

	got := waitCompletions(t, s, 1)
	if got[0].Outcome != NormalExit {
		t.Errorf("outcome = %s, want normal_exit once output exists", got[0].Outcome)
	}
}

func TestKill(t *testing.T) {
	s, starter := testSupervisor(t)

	if _, err := s.Spawn(Spec{RunID: "r-eeeeee", Argv: []string{"agent"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Kill("r-eeeeee", syscall.SIGTERM); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	p := starter.proc("r-eeeeee")
	if !p.gotSignal(syscall.SIGTERM) {
		t.Error("SIGTERM never reached the process")
	}
	p.exit(errors.New("signal: terminated"))

	got := waitCompletions(t, s, 1)
	if got[0].Outcome != Killed {
		t.Errorf("outcome = %s, want killed", got[0].Outcome)
	}

	if err := s.Kill("r-eeeeee", syscall.SIGTERM); err == nil {
		t.Error("Kill succeeded on a reaped run")
	}
}

func TestTimeoutSendsSIGTERM(t *testing.T) {
	s, starter := testSupervisor(t)

	if _, err := s.Spawn(Spec{
		RunID:   "r-ffffff",
		Argv:    []string{"agent"},
		Timeout: 20 * time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}

	p := starter.proc("r-ffffff")
	deadline := time.Now().Add(2 * time.Second)
	for !p.gotSignal(syscall.SIGTERM) {
		if time.Now().After(deadline) {
			t.Fatal("timeout never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.exit(errors.New("signal: terminated"))

	got := waitCompletions(t, s, 1)
	if got[0].Outcome != Killed || !got[0].TimedOut {
		t.Errorf("completion = %+v, want killed with TimedOut", got[0])
	}
}

func TestIsAliveChecksPID(t *testing.T) {
	s, starter := testSupervisor(t)
	s.pidAlive = func(int) bool { return false }

	if _, err := s.Spawn(Spec{RunID: "r-gggggg", Argv: []string{"agent"}}); err != nil {
		t.Fatal(err)
	}
	if s.IsAlive("r-gggggg") {
		t.Error("IsAlive = true for a dead pid")
	}
	starter.proc("r-gggggg").exit(nil)
	waitCompletions(t, s, 1)
}

func TestKillAll(t *testing.T) {
	s, starter := testSupervisor(t)
	for _, id := range []string{"r-hhhhhh", "r-jjjjjj"} {
		if _, err := s.Spawn(Spec{RunID: id, Argv: []string{"agent"}}); err != nil {
			t.Fatal(err)
		}
	}
	s.KillAll()
	for _, id := range []string{"r-hhhhhh", "r-jjjjjj"} {
		p := starter.proc(id)
		if !p.gotSignal(syscall.SIGTERM) {
			t.Errorf("%s missed shutdown SIGTERM", id)
		}
		p.exit(errors.New("signal: terminated"))
	}
	got := waitCompletions(t, s, 2)
	for _, c := range got {
		if c.Outcome != Killed {
			t.Errorf("%s outcome = %s, want killed", c.RunID, c.Outcome)
		}
	}
}
