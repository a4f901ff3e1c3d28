package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ex "github.com/marsevilspirit/greeter/errors"
)

var errRPC = errors.New("RPC error")

func fail(b *Breaker) error {
	_, err := b.Execute(func() (any, error) {
		return nil, errRPC
	})
	return err
}

func succeed(b *Breaker) (any, error) {
	return b.Execute(func() (any, error) {
		return 1, nil
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "unknown state", State(100).String())
}

func TestCounts(t *testing.T) {
	c := &Counts{}

	c.onRequest()
	assert.Equal(t, uint32(1), c.Requests)

	c.onSuccess()
	assert.Equal(t, uint32(1), c.TotalSuccesses)
	assert.Equal(t, uint32(1), c.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), c.ConsecutiveFailures)

	c.onFailure()
	assert.Equal(t, uint32(1), c.TotalFailures)
	assert.Equal(t, uint32(1), c.ConsecutiveFailures)
	assert.Equal(t, uint32(0), c.ConsecutiveSuccesses)

	c.clear()
	assert.Equal(t, Counts{}, *c)
}

func TestBreakerCounts(t *testing.T) {
	cb := NewBreaker(Settings{Name: "greeter"})

	assert.Equal(t, "greeter", cb.Name())
	assert.Equal(t, Closed, cb.State())

	result, err := succeed(cb)
	assert.NoError(t, err)
	assert.Equal(t, 1, result)

	assert.ErrorIs(t, fail(cb), errRPC)

	counts := cb.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}

func TestBreakerTripAndReset(t *testing.T) {
	var transitions []State
	b := NewBreaker(Settings{
		Name: "greeter",
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures > 2
		},
		Timeout: 100 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, to)
		},
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, fail(b), errRPC)
	}
	assert.Equal(t, Open, b.State())

	// rejected without running
	ran := false
	result, err := b.Execute(func() (any, error) {
		ran = true
		return 1, nil
	})
	assert.False(t, ran)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrOpenState)
	assert.ErrorIs(t, err, ex.ErrServiceUnavailable)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	result, err = succeed(b)
	require.NoError(t, err)
	assert.Equal(t, 1, result)
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []State{Open, HalfOpen, Closed}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		Timeout:     50 * time.Millisecond,
	})

	fail(b)
	require.Equal(t, Open, b.State())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	fail(b)
	assert.Equal(t, Open, b.State())
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	b := NewBreaker(Settings{
		MaxRequests: 1,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		Timeout:     50 * time.Millisecond,
	})

	fail(b)
	time.Sleep(80 * time.Millisecond)

	release := make(chan struct{})
	probing := make(chan struct{})
	go b.Execute(func() (any, error) {
		close(probing)
		<-release
		return nil, nil
	})
	<-probing

	_, err := succeed(b)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
	assert.Eventually(t, func() bool { return b.State() == Closed }, time.Second, 5*time.Millisecond)
}

func TestIsSuccessful(t *testing.T) {
	errIgnored := errors.New("application error")
	b := NewBreaker(Settings{
		ReadyToTrip:  func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errIgnored) },
	})

	_, err := b.Execute(func() (any, error) { return nil, errIgnored })
	assert.ErrorIs(t, err, errIgnored)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, uint32(1), b.Counts().TotalSuccesses)
}

func TestPanicCountsAsFailure(t *testing.T) {
	b := NewBreaker(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	assert.Panics(t, func() {
		b.Execute(func() (any, error) { panic("boom") })
	})
	assert.Equal(t, Open, b.State())
}

func TestIntervalClearsCounts(t *testing.T) {
	b := NewBreaker(Settings{Interval: 50 * time.Millisecond})

	fail(b)
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)

	time.Sleep(80 * time.Millisecond)
	succeed(b)
	assert.Equal(t, uint32(0), b.Counts().TotalFailures)
	assert.Equal(t, uint32(1), b.Counts().Requests)
}
