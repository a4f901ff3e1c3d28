package server

import (
	"crypto/tls"
	"io"
	"os"
	"time"
)

type OptionFn func(*Server)

func WithTLSConfig(cfg *tls.Config) OptionFn {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

func WithReadTimeout(readTimeout time.Duration) OptionFn {
	return func(s *Server) {
		s.readTimeout = readTimeout
	}
}

func WithWriteTimeout(writeTimeout time.Duration) OptionFn {
	return func(s *Server) {
		s.writeTimeout = writeTimeout
	}
}

// WithShutdownSignals makes Start install a hook that stops the server when
// the process receives one of sigs. See DefaultShutdownSignals.
func WithShutdownSignals(sigs ...os.Signal) OptionFn {
	return func(s *Server) {
		s.shutdownSignals = sigs
	}
}

// WithDiagnosticOutput sets where the signal hook writes its shutdown
// messages. The default is os.Stderr.
func WithDiagnosticOutput(w io.Writer) OptionFn {
	return func(s *Server) {
		s.diag = w
	}
}
