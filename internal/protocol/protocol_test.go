package protocol

import (
	"bufio"
	"bytes"
	"os"
	"testing"
	"time"
)

func TestEventRoundTrip(t *testing.T) {
	instance := NewInstanceID()
	env, err := NewEvent(instance, EventTaskStatusChanged, StatusChangePayload{
		TaskID: "f-abc234", From: "open", To: "in_progress",
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := Write(w, env); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line := buf.Bytes()
	if line[len(line)-1] != '\n' {
		t.Fatal("frame not newline terminated")
	}

	got, err := Decode(bytes.TrimSpace(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != EventTaskStatusChanged || got.InstanceID != instance {
		t.Errorf("decoded envelope = %+v", got)
	}
	var p StatusChangePayload
	if err := DecodePayload(got, &p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.TaskID != "f-abc234" || p.To != "in_progress" {
		t.Errorf("payload = %+v", p)
	}
}

func TestCommandCarriesRequestID(t *testing.T) {
	env, err := NewCommand(CmdPauseTask, TaskRefPayload{TaskID: "f-abc234"})
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	if env.RequestID == "" {
		t.Error("command missing requestId")
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Decode accepted garbage")
	}
	if _, err := Decode([]byte(`{"timestamp":1}`)); err == nil {
		t.Error("Decode accepted a frame without type")
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	env, err := Decode([]byte(`{"type":"Heartbeat","timestamp":1,"someFutureField":true}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != EventHeartbeat {
		t.Errorf("Type = %q", env.Type)
	}
}

func TestIsBrowserCommand(t *testing.T) {
	if !IsBrowserCommand("BROWSER_NAVIGATE") {
		t.Error("BROWSER_NAVIGATE not recognized")
	}
	if IsBrowserCommand("BROWSER_") || IsBrowserCommand(CmdAttach) {
		t.Error("false positive on non-browser command")
	}
}

func TestPidFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadPidFile(dir); !os.IsNotExist(err) {
		t.Fatalf("ReadPidFile on empty project = %v, want not-exist", err)
	}

	want := PidFile{PID: 4242, Port: 38011, StartedAt: time.Now().UTC().Truncate(time.Second)}
	if err := WritePidFile(dir, want); err != nil {
		t.Fatalf("WritePidFile: %v", err)
	}
	got, err := ReadPidFile(dir)
	if err != nil {
		t.Fatalf("ReadPidFile: %v", err)
	}
	if got.PID != want.PID || got.Port != want.Port || !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("ReadPidFile = %+v, want %+v", got, want)
	}

	if err := RemovePidFile(dir); err != nil {
		t.Fatalf("RemovePidFile: %v", err)
	}
	if err := RemovePidFile(dir); err != nil {
		t.Errorf("RemovePidFile twice: %v", err)
	}
}
