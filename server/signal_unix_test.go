//go:build unix

package server

import (
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownSignalDelivered(t *testing.T) {
	var out syncBuffer
	s, _ := startEcho(t, WithShutdownSignals(syscall.SIGUSR1), WithDiagnosticOutput(&out))

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	done := make(chan struct{})
	go func() {
		s.BlockUntilShutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("signal did not stop the server")
	}

	assert.Eventually(t, func() bool {
		return strings.HasSuffix(out.String(), "*** server shut down\n")
	}, time.Second, 5*time.Millisecond)
	assert.True(t, strings.HasPrefix(out.String(), "*** shutting down RPC server since process received user defined signal 1"))
}
