// Package protocol defines the IPC wire format between the consume
// daemon and its clients: newline-delimited JSON over localhost TCP.
// The schema is additive, unknown fields are ignored on both sides.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types the daemon broadcasts.
const (
	EventSnapshot          = "Snapshot"
	EventTaskCreated       = "TaskCreated"
	EventTaskStatusChanged = "TaskStatusChanged"
	EventRunStarted        = "RunStarted"
	EventRunCompleted      = "RunCompleted"
	EventEpicCompleted     = "EpicCompleted"
	EventHeartbeat         = "Heartbeat"
	EventResponse          = "Response"
	EventBrowserResponse   = "BrowserResponse"
	EventError             = "Error"
)

// Command types clients send.
const (
	CmdAttach      = "ATTACH"
	CmdDetach      = "DETACH"
	CmdDisconnect  = "DISCONNECT"
	CmdPauseTask   = "PAUSE_TASK"
	CmdUnpauseTask = "UNPAUSE_TASK"
	CmdCancelRun   = "CANCEL_RUN"
	CmdInjectTask  = "INJECT_TASK"
	CmdStatus      = "STATUS"
	CmdHealthReset = "HEALTH_RESET"
	CmdShutdown    = "SHUTDOWN"

	// BrowserPrefix marks adjunct browser commands; the daemon relays
	// them and answers with a BrowserResponse carrying the requestId.
	BrowserPrefix = "BROWSER_"
)

// Envelope is one NDJSON frame. Every message carries type, timestamp
// and the daemon's per-process instance id; commands additionally
// carry a client-generated requestId that response events echo back.
type Envelope struct {
	Type       string          `json:"type"`
	Timestamp  int64           `json:"timestamp"` // Unix milliseconds
	InstanceID string          `json:"instanceId,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewInstanceID generates the daemon's per-process identity.
func NewInstanceID() string {
	return uuid.NewString()
}

// NewEvent builds an event envelope with the payload marshaled in.
func NewEvent(instanceID, eventType string, payload any) (Envelope, error) {
	env := Envelope{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		InstanceID: instanceID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshaling %s payload: %w", eventType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// NewCommand builds a command envelope with a fresh requestId.
func NewCommand(cmdType string, payload any) (Envelope, error) {
	env := Envelope{
		Type:      cmdType,
		Timestamp: time.Now().UnixMilli(),
		RequestID: uuid.NewString(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshaling %s payload: %w", cmdType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Write encodes one envelope as a single line and flushes it.
func Write(w *bufio.Writer, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", env.Type, err)
	}
	if _, err := w.Write(append(raw, '\n')); err != nil {
		return err
	}
	return w.Flush()
}

// Decode parses one NDJSON line into an envelope.
func Decode(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("frame missing type")
	}
	return env, nil
}

// DecodePayload unmarshals an envelope payload into dst.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%s payload: %w", env.Type, err)
	}
	return nil
}

// IsBrowserCommand reports whether a command is a browser adjunct.
func IsBrowserCommand(cmdType string) bool {
	return len(cmdType) > len(BrowserPrefix) && cmdType[:len(BrowserPrefix)] == BrowserPrefix
}
