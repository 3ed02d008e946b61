// Package server coordinates the TCP listener, session lifecycle, and
// graceful shutdown for the relay via the Relay type.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Relay owns the shared Registry and Bus and runs the accept loop that spawns
// one session goroutine per inbound connection. It maintains session
// registration and ensures thread-safe operations through mutex protection.
type Relay struct {
	cfg      Config
	log      zerolog.Logger
	registry *Registry
	bus      *Bus
	listener net.Listener
	sessions map[*Session]struct{}
	mu       sync.Mutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRelay creates a Relay with a fresh Registry and Bus, ready to Start.
func NewRelay(cfg Config, log zerolog.Logger) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		cfg:      cfg,
		log:      log.With().Str("component", "relay").Logger(),
		registry: NewRegistry(),
		bus:      NewBus(cfg.SubscriberBuffer),
		sessions: make(map[*Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Registry returns the shared display-name registry.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Addr returns the bound listen address, or nil before Start. Useful with a
// ":0" listen address.
func (r *Relay) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start binds the configured TCP endpoint and launches the accept loop in the
// background. A bind failure is fatal and reported to the caller; nothing is
// left running in that case.
func (r *Relay) Start() error {
	listener, err := net.Listen("tcp", r.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", r.cfg.ListenAddr, err)
	}
	r.listener = listener
	r.log.Info().Stringer("addr", listener.Addr()).Msg("relay listening")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.acceptLoop()
	}()
	return nil
}

// acceptLoop accepts connections until the listener is closed. Accept
// failures are logged and the loop continues; they are never fatal to
// already-running sessions.
func (r *Relay) acceptLoop() {
	defer close(r.done)

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.ctx.Done():
				return
			default:
			}
			r.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		if err := r.StartSession(conn); err != nil {
			// Only possible during shutdown.
			_ = conn.Close()
			return
		}
	}
}

// StartSession wires a connection into the relay and launches its session
// goroutine. The WebSocket bridge feeds adapted connections through the same
// path as the accept loop.
func (r *Relay) StartSession(conn Conn) error {
	session, err := NewSession(conn, r.registry, r.bus, r.log, r.cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sessions[session] = struct{}{}
	count := len(r.sessions)
	r.mu.Unlock()
	r.log.Info().Stringer("addr", conn.RemoteAddr()).Int("sessions", count).Msg("session started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		session.Run(r.ctx)

		r.mu.Lock()
		delete(r.sessions, session)
		r.mu.Unlock()
	}()
	return nil
}

// Shutdown stops accepting connections, closes every live session, and waits
// for their goroutines to finish or the timeout to elapse. It returns
// context.DeadlineExceeded when sessions are still draining at the deadline.
func (r *Relay) Shutdown(timeout time.Duration) error {
	r.log.Info().Msg("initiating relay shutdown")
	r.cancel()

	if r.listener != nil {
		if err := r.listener.Close(); err != nil && !isExpectedCloseError(err) {
			r.log.Warn().Err(err).Msg("error closing listener")
		}
		<-r.done
	}

	// Unblock sessions parked on socket reads or bus waits.
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()
	for _, session := range sessions {
		if err := session.conn.Close(); err != nil && !isExpectedCloseError(err) {
			r.log.Warn().Err(err).Stringer("addr", session.conn.RemoteAddr()).Msg("error closing session connection")
		}
	}
	r.bus.CloseAll()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		r.log.Info().Msg("relay shutdown completed")
		return nil
	case <-time.After(timeout):
		r.log.Warn().Msg("relay shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
