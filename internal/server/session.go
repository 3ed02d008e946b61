// Package server manages individual chat sessions, driving the naming
// handshake, command handling, and concurrent relay of inbound and broadcast
// traffic for each connection.
package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn is the transport a session runs over. *net.TCPConn satisfies it
// directly; the WebSocket bridge satisfies it through an adapter.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	SetWriteDeadline(t time.Time) error
}

// Session tracks one client connection from accept to close. It owns a
// private bus subscription and shares the Registry and the Bus publish handle
// with every other session. A session is the only writer to its socket; a
// dedicated reader goroutine feeds inbound lines into the session loop, so
// socket reads and bus deliveries progress concurrently without racing on
// writes.
type Session struct {
	id           string
	conn         Conn
	registry     *Registry
	bus          *Bus
	sub          *Subscription
	log          zerolog.Logger
	maxLineBytes int
	writeTimeout time.Duration
	name         string
	done         chan struct{}
}

// NewSession creates a session for the given connection with a fresh bus
// subscription. It returns ErrBusClosed when the relay is shutting down.
func NewSession(conn Conn, registry *Registry, bus *Bus, log zerolog.Logger, cfg Config) (*Session, error) {
	sub, err := bus.Subscribe()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return &Session{
		id:           id,
		conn:         conn,
		registry:     registry,
		bus:          bus,
		sub:          sub,
		log:          log.With().Str("session", id).Stringer("addr", conn.RemoteAddr()).Logger(),
		maxLineBytes: cfg.MaxLineBytes,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}, nil
}

// Run drives the session state machine until the client disconnects, fails,
// quits, or ctx is canceled. It always cleans up the registry entry, the bus
// subscription, and the socket before returning; failures never escape to
// other sessions.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	lines := make(chan string)
	go s.readLines(lines)

	if !s.awaitName(ctx, lines) {
		return
	}

	s.registry.Insert(s.id, s.name)
	s.bus.Publish(formatJoin(s.name))
	s.log.Info().Str("name", s.name).Msg("client joined")

	s.serve(ctx, lines)
}

// readLines pumps newline-terminated lines from the socket into the session
// loop. It owns the read side of the connection exclusively and stops when
// the client disconnects, a line exceeds the configured limit, or the
// session is done.
func (s *Session) readLines(lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(nil, s.maxLineBytes)

	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-s.done:
			return
		}
	}

	if err := scanner.Err(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("read loop ended")
	}
}

// awaitName runs the naming handshake, re-prompting until the client supplies
// a non-blank name. It reports false when the session should close without
// having joined.
func (s *Session) awaitName(ctx context.Context, lines <-chan string) bool {
	for {
		if err := s.write(namePrompt); err != nil {
			return false
		}

		select {
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if name := strings.TrimSpace(line); name != "" {
				s.name = name
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

// serve is the active phase: it races the next inbound line against the next
// bus delivery and services whichever is ready first, for the life of the
// session.
func (s *Session) serve(ctx context.Context, lines <-chan string) {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !s.handleLine(line) {
				return
			}
		case message, ok := <-s.sub.C():
			if !ok {
				return
			}
			if err := s.write(message); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleLine classifies one inbound line as a command or chat text and
// reports whether the session should keep running.
func (s *Session) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if !isCommand(line) {
		s.bus.Publish(formatChat(s.name, line))
		return true
	}

	switch line {
	case "/users":
		return s.write(formatUsers(s.registry.Snapshot())) == nil
	case "/quit":
		// Best effort; the session closes either way.
		_ = s.write(farewell)
		return false
	default:
		return s.write(formatUnknownCommand(line)) == nil
	}
}

// write sends one protocol line to this connection only.
func (s *Session) write(line string) error {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	if _, err := io.WriteString(s.conn, line+"\n"); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Debug().Err(err).Msg("write failed")
		}
		return err
	}
	return nil
}

// teardown is the terminal state: deregister, announce the departure if the
// naming handshake had completed, and release the subscription and socket.
func (s *Session) teardown() {
	close(s.done)
	s.sub.Close()

	if s.registry.Remove(s.id) {
		s.bus.Publish(formatLeave(s.name))
		s.log.Info().Str("name", s.name).Uint64("dropped", s.sub.Dropped()).Msg("client left")
	} else {
		s.log.Info().Msg("client disconnected before naming")
	}

	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("error closing connection")
	}
}
