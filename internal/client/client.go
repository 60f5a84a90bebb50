// Package client is the CLI side of the consume daemon IPC: it finds
// the daemon through the project pid file, dials its localhost port
// and speaks newline-delimited JSON envelopes.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fuelhq/fuel/internal/protocol"
)

// ErrNotRunning means no live daemon was found for the project.
var ErrNotRunning = errors.New("consume daemon is not running")

// DefaultCommandTimeout bounds how long a command waits for its
// response event.
const DefaultCommandTimeout = 10 * time.Second

// Client is one connection to a project's consume daemon.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	w       *bufio.Writer
}

// Dial reads the project's pid file and connects to the daemon it
// names. A missing pid file, or a dead port behind a stale one, maps
// to ErrNotRunning.
func Dial(projectDir string) (*Client, error) {
	pf, err := protocol.ReadPidFile(projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotRunning
		}
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", pf.Port), 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w (pid file names port %d)", ErrNotRunning, pf.Port)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Client{conn: conn, scanner: scanner, w: bufio.NewWriter(conn)}, nil
}

// Close sends DISCONNECT and drops the connection.
func (c *Client) Close() error {
	if env, err := protocol.NewCommand(protocol.CmdDisconnect, nil); err == nil {
		_ = protocol.Write(c.w, env)
	}
	return c.conn.Close()
}

// Send writes one command envelope.
func (c *Client) Send(cmdType string, payload any) (protocol.Envelope, error) {
	env, err := protocol.NewCommand(cmdType, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if err := protocol.Write(c.w, env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("sending %s: %w", cmdType, err)
	}
	return env, nil
}

// Next blocks for the next event frame, up to the deadline.
func (c *Client) Next(timeout time.Duration) (protocol.Envelope, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return protocol.Envelope{}, err
		}
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Envelope{}, errors.New("daemon closed the connection")
	}
	return protocol.Decode(c.scanner.Bytes())
}

// Call sends a command and waits for the event echoing its requestId.
// Unrelated events that arrive in between are discarded, so Call is
// meant for detached command connections, not live streams.
func (c *Client) Call(cmdType string, payload any) (protocol.Envelope, error) {
	sent, err := c.Send(cmdType, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}

	deadline := time.Now().Add(DefaultCommandTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return protocol.Envelope{}, fmt.Errorf("%s: no response from daemon", cmdType)
		}
		env, err := c.Next(remaining)
		if err != nil {
			return protocol.Envelope{}, err
		}
		if env.RequestID != sent.RequestID {
			continue
		}
		if env.Type == protocol.EventError {
			var ep protocol.ErrorPayload
			if derr := protocol.DecodePayload(env, &ep); derr == nil && ep.Message != "" {
				return env, errors.New(ep.Message)
			}
			return env, fmt.Errorf("%s rejected by daemon", cmdType)
		}
		return env, nil
	}
}

// Attach subscribes to the event stream and returns the leading
// snapshot.
func (c *Client) Attach() (protocol.SnapshotPayload, error) {
	if _, err := c.Send(protocol.CmdAttach, nil); err != nil {
		return protocol.SnapshotPayload{}, err
	}
	env, err := c.Next(DefaultCommandTimeout)
	if err != nil {
		return protocol.SnapshotPayload{}, err
	}
	if env.Type != protocol.EventSnapshot {
		return protocol.SnapshotPayload{}, fmt.Errorf("expected Snapshot, got %s", env.Type)
	}
	var snap protocol.SnapshotPayload
	if err := protocol.DecodePayload(env, &snap); err != nil {
		return protocol.SnapshotPayload{}, err
	}
	return snap, nil
}

// Detach stops the event stream but keeps the connection usable for
// commands.
func (c *Client) Detach() error {
	_, err := c.Send(protocol.CmdDetach, nil)
	return err
}

// Running reports whether a live daemon holds the project's pid file.
func Running(projectDir string) (bool, *protocol.PidFile) {
	pf, err := protocol.ReadPidFile(projectDir)
	if err != nil {
		return false, nil
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", pf.Port), time.Second)
	if err != nil {
		return false, &pf
	}
	conn.Close()
	return true, &pf
}
