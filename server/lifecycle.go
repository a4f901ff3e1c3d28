package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/marsevilspirit/greeter/log"
)

// State is a server's position in its lifecycle:
// Created → Started → Stopping → Stopped.
type State int32

const (
	Created State = iota
	Started
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown state"
	}
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Stop gracefully shuts the server down and waits until it has stopped.
// No new calls are admitted, in-flight calls finish and write their
// responses, and only then is the listening port released. Stop is a no-op
// on a server that was never started and may be called any number of times
// from any goroutine.
func (s *Server) Stop() {
	_ = s.Shutdown(context.Background())
}

// Shutdown is Stop bounded by ctx. If ctx ends first it returns ctx.Err()
// and the drain carries on in the background.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Created:
		s.mu.Unlock()
		return nil
	case Started:
		s.beginStopLocked()
	}
	stopped := s.getStoppedLocked()
	s.mu.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockUntilShutdown parks the caller until the server has stopped and its
// RegisterOnShutdown hooks have returned. It returns at once if the server
// was never started.
func (s *Server) BlockUntilShutdown() {
	s.mu.Lock()
	if s.state == Created {
		s.mu.Unlock()
		return
	}
	finished := s.getFinishedLocked()
	s.mu.Unlock()

	<-finished
}

// beginStopLocked moves a started server to Stopping and starts the drain.
func (s *Server) beginStopLocked() {
	s.state = Stopping
	s.closeDoneLocked()

	// Stop accepting without giving up the port when the listener allows it.
	// Otherwise the port goes now rather than after the drain.
	if s.lnDeadliner == nil || s.lnDeadliner.SetDeadline(time.Now()) != nil {
		s.closeListenerLocked()
	}

	// Wake connections parked in Read; armReadDeadline keeps them from
	// reading again.
	now := time.Now()
	for c := range s.activeConn {
		c.SetReadDeadline(now)
	}

	go s.drain()
}

func (s *Server) closeListenerLocked() {
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warnf("server: failed to close listener: %v", err)
	}
}

func (s *Server) drain() {
	s.connWG.Wait()

	s.mu.Lock()
	s.closeListenerLocked()
	hooks := s.onShutdown
	stopSignals := s.stopSignals
	s.stopSignals = nil
	s.mu.Unlock()

	if stopSignals != nil {
		stopSignals()
	}

	s.mu.Lock()
	s.state = Stopped
	close(s.getStoppedLocked())
	finished := s.getFinishedLocked()
	s.mu.Unlock()

	log.Info("server stopped")

	// hooks run after Stopped so that one calling Stop returns at once
	for _, f := range hooks {
		f()
	}
	close(finished)
}
