package daemon

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fuelhq/fuel/internal/protocol"
)

// clientBacklog bounds each client's outbound queue. A client that
// falls this far behind is dropped rather than blocking the tick loop.
const clientBacklog = 256

// commandQueueSize bounds commands buffered between the accept loop
// and the tick loop.
const commandQueueSize = 64

// Server is the daemon side of the IPC bus: a TCP listener on
// localhost speaking newline-delimited JSON envelopes. Events flow
// out to attached clients; commands flow into a bounded queue the
// scheduler drains each tick.
type Server struct {
	instanceID string
	ln         net.Listener
	log        *slog.Logger

	// snapshot produces the board state sent right after ATTACH.
	snapshot func() (protocol.SnapshotPayload, error)

	mu      sync.Mutex
	clients map[net.Conn]*ipcClient
	closed  bool

	commands chan protocol.Envelope
}

type ipcClient struct {
	conn     net.Conn
	out      chan protocol.Envelope
	attached bool
	done     chan struct{}
}

// NewServer starts listening on an ephemeral localhost port.
func NewServer(instanceID string, snapshot func() (protocol.SnapshotPayload, error), log *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for IPC clients: %w", err)
	}
	s := &Server{
		instanceID: instanceID,
		ln:         ln,
		log:        log,
		snapshot:   snapshot,
		clients:    make(map[net.Conn]*ipcClient),
		commands:   make(chan protocol.Envelope, commandQueueSize),
	}
	go s.acceptLoop()
	return s, nil
}

// Port returns the bound TCP port for the pid file.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Commands is the queue of client commands. The scheduler selects on
// it to wake early from its tick sleep.
func (s *Server) Commands() <-chan protocol.Envelope {
	return s.commands
}

// Close stops accepting connections and drops every client.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*ipcClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	_ = s.ln.Close()
	for _, c := range clients {
		s.drop(c, "")
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		c := &ipcClient{
			conn: conn,
			out:  make(chan protocol.Envelope, clientBacklog),
			done: make(chan struct{}),
		}
		s.mu.Lock()
		s.clients[conn] = c
		s.mu.Unlock()

		go s.writeLoop(c)
		go s.readLoop(c)
	}
}

func (s *Server) readLoop(c *ipcClient) {
	defer s.drop(c, "")

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		env, err := protocol.Decode(scanner.Bytes())
		if err != nil {
			s.sendTo(c, s.errorEvent("", err.Error()))
			continue
		}

		switch env.Type {
		case protocol.CmdAttach:
			s.attach(c)
		case protocol.CmdDetach:
			s.detach(c)
		case protocol.CmdDisconnect:
			return
		default:
			select {
			case s.commands <- env:
			default:
				s.sendTo(c, s.errorEvent(env.RequestID, "command queue full"))
			}
		}
	}
}

// attach registers the client for the event stream, leading with a
// snapshot so it can render the board before live events arrive.
func (s *Server) attach(c *ipcClient) {
	snap, err := s.snapshot()
	if err != nil {
		s.sendTo(c, s.errorEvent("", "snapshot: "+err.Error()))
		return
	}
	env, err := protocol.NewEvent(s.instanceID, protocol.EventSnapshot, snap)
	if err != nil {
		s.sendTo(c, s.errorEvent("", err.Error()))
		return
	}

	s.mu.Lock()
	c.attached = true
	s.mu.Unlock()
	s.sendTo(c, env)
}

// detach stops event delivery and discards the pending backlog, but
// keeps the connection for later commands.
func (s *Server) detach(c *ipcClient) {
	s.mu.Lock()
	c.attached = false
	s.mu.Unlock()
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

func (s *Server) writeLoop(c *ipcClient) {
	w := bufio.NewWriter(c.conn)
	for {
		select {
		case <-c.done:
			return
		case env := <-c.out:
			if err := protocol.Write(w, env); err != nil {
				s.drop(c, "")
				return
			}
		}
	}
}

// Broadcast delivers an event to every attached client. A client with
// a full backlog is dropped so the tick loop never blocks on a slow
// reader.
func (s *Server) Broadcast(eventType string, payload any) {
	env, err := protocol.NewEvent(s.instanceID, eventType, payload)
	if err != nil {
		s.log.Error("encoding broadcast", "type", eventType, "error", err)
		return
	}
	s.broadcast(env)
}

// Respond broadcasts a response event carrying the originating
// requestId; clients filter by it.
func (s *Server) Respond(requestID, eventType string, payload any) {
	env, err := protocol.NewEvent(s.instanceID, eventType, payload)
	if err != nil {
		s.log.Error("encoding response", "type", eventType, "error", err)
		return
	}
	env.RequestID = requestID
	s.broadcast(env)
}

func (s *Server) broadcast(env protocol.Envelope) {
	s.mu.Lock()
	var slow []*ipcClient
	for _, c := range s.clients {
		if !c.attached {
			continue
		}
		select {
		case c.out <- env:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.drop(c, "event backlog overflow, client too slow")
	}
}

// sendTo queues an event for one client regardless of attach state.
func (s *Server) sendTo(c *ipcClient, env protocol.Envelope) {
	select {
	case c.out <- env:
	default:
		s.drop(c, "")
	}
}

func (s *Server) errorEvent(requestID, msg string) protocol.Envelope {
	env, err := protocol.NewEvent(s.instanceID, protocol.EventError, protocol.ErrorPayload{Message: msg})
	if err != nil {
		return protocol.Envelope{Type: protocol.EventError, Timestamp: time.Now().UnixMilli(), InstanceID: s.instanceID}
	}
	env.RequestID = requestID
	return env
}

// drop removes a client, optionally telling it why first.
func (s *Server) drop(c *ipcClient, reason string) {
	s.mu.Lock()
	if _, ok := s.clients[c.conn]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.conn)
	s.mu.Unlock()

	if reason != "" {
		// Best effort: the client may already be gone.
		w := bufio.NewWriter(c.conn)
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = protocol.Write(w, s.errorEvent("", reason))
		s.log.Warn("dropping client", "remote", c.conn.RemoteAddr(), "reason", reason)
	}
	close(c.done)
	_ = c.conn.Close()
}

// ClientCount reports current connections, attached or not.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
