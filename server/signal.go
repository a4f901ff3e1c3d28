package server

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// DefaultShutdownSignals are the termination requests a server started with
// WithShutdownSignals(DefaultShutdownSignals...) reacts to.
var DefaultShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// handleSignals subscribes to sigs and stops s on the first one. The
// returned func unsubscribes.
func (s *Server) handleSignals(sigs []os.Signal, done <-chan struct{}) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	s.watchSignals(ch, done)
	return func() {
		signal.Stop(ch)
	}
}

func (s *Server) watchSignals(ch <-chan os.Signal, done <-chan struct{}) {
	go func() {
		select {
		case sig := <-ch:
			// Not the log package: the process is going away and the
			// logger may already be flushed or replaced.
			w := s.diagOutput()
			fmt.Fprintf(w, "*** shutting down RPC server since process received %v\n", sig)
			s.Stop()
			fmt.Fprintln(w, "*** server shut down")
		case <-done:
		}
	}()
}

func (s *Server) diagOutput() io.Writer {
	if s.diag != nil {
		return s.diag
	}
	return os.Stderr
}
