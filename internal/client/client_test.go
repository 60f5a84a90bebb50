package client

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fuelhq/fuel/internal/protocol"
	"github.com/fuelhq/fuel/internal/store"
)

// fakeDaemon answers ATTACH with a snapshot, STATUS with a response
// and anything else with an error event, mimicking the daemon's frame
// discipline.
func fakeDaemon(t *testing.T, projectDir string) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	port := ln.Addr().(*net.TCPAddr).Port
	if err := protocol.WritePidFile(projectDir, protocol.PidFile{
		PID: 1, Port: port, StartedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn)
		}
	}()
	return ln
}

func serveConn(conn net.Conn) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		env, err := protocol.Decode(sc.Bytes())
		if err != nil {
			continue
		}
		switch env.Type {
		case protocol.CmdAttach:
			snap := protocol.SnapshotPayload{
				Tasks: []store.Task{{ShortID: "f-abc123", Title: "t", Status: store.StatusOpen}},
			}
			out, _ := protocol.NewEvent("inst", protocol.EventSnapshot, snap)
			_ = protocol.Write(w, out)
		case protocol.CmdStatus:
			// Unrelated broadcast first; Call must skip it.
			hb, _ := protocol.NewEvent("inst", protocol.EventHeartbeat, protocol.HeartbeatPayload{})
			_ = protocol.Write(w, hb)
			out, _ := protocol.NewEvent("inst", protocol.EventResponse, protocol.StatusResponsePayload{Running: 2})
			out.RequestID = env.RequestID
			_ = protocol.Write(w, out)
		case protocol.CmdDisconnect:
			return
		default:
			out, _ := protocol.NewEvent("inst", protocol.EventError, protocol.ErrorPayload{Message: "unknown command"})
			out.RequestID = env.RequestID
			_ = protocol.Write(w, out)
		}
	}
}

func TestDialWithoutPidFile(t *testing.T) {
	_, err := Dial(t.TempDir())
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestDialStalePidFile(t *testing.T) {
	dir := t.TempDir()
	// Grab a port, then release it so nothing answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if err := protocol.WritePidFile(dir, protocol.PidFile{PID: 1, Port: port, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, err := Dial(dir); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestAttachReturnsSnapshot(t *testing.T) {
	dir := t.TempDir()
	fakeDaemon(t, dir)

	c, err := Dial(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	snap, err := c.Attach()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].ShortID != "f-abc123" {
		t.Errorf("snapshot = %+v", snap.Tasks)
	}
}

func TestCallSkipsUnrelatedEvents(t *testing.T) {
	dir := t.TempDir()
	fakeDaemon(t, dir)

	c, err := Dial(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	env, err := c.Call(protocol.CmdStatus, nil)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != protocol.EventResponse {
		t.Errorf("type = %s", env.Type)
	}
	var status protocol.StatusResponsePayload
	if err := protocol.DecodePayload(env, &status); err != nil {
		t.Fatal(err)
	}
	if status.Running != 2 {
		t.Errorf("running = %d", status.Running)
	}
}

func TestCallSurfacesDaemonError(t *testing.T) {
	dir := t.TempDir()
	fakeDaemon(t, dir)

	c, err := Dial(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.Call("BOGUS", nil)
	if err == nil || err.Error() != "unknown command" {
		t.Fatalf("err = %v", err)
	}
}

func TestRunning(t *testing.T) {
	dir := t.TempDir()
	if ok, _ := Running(dir); ok {
		t.Fatal("running without pid file")
	}
	fakeDaemon(t, dir)
	ok, pf := Running(dir)
	if !ok || pf == nil {
		t.Fatal("live daemon not detected")
	}
	if _, err := protocol.ReadPidFile(dir); err != nil {
		t.Fatal(err)
	}
}
