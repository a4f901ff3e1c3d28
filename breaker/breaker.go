// Package breaker is a circuit breaker guarding calls to one RPC server.
//
// Closed: calls pass and failures are counted. Open: calls fail fast with
// ErrOpenState until Timeout elapses. HalfOpen: up to MaxRequests probe
// calls pass; enough consecutive successes close the breaker again, any
// failure opens it.
package breaker

import (
	"sync"
	"time"

	ex "github.com/marsevilspirit/greeter/errors"
	"github.com/marsevilspirit/greeter/log"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

const defaultTimeout = 60 * time.Second

var (
	ErrTooManyRequests = ex.New(ex.ErrCodeServiceUnavailable, "breaker: too many requests while half-open")
	ErrOpenState       = ex.New(ex.ErrCodeServiceUnavailable, "breaker: circuit breaker is open")
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown state"
	}
}

// Counts are the calls seen in the current generation. A generation ends on
// every state change and, while closed, every Interval.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32 // 连续成功次数
	ConsecutiveFailures  uint32 // 连续失败次数
}

func (c *Counts) onRequest() {
	c.Requests++
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	*c = Counts{}
}

type Settings struct {
	Name string
	// MaxRequests is the number of probe calls allowed while half-open,
	// and the consecutive successes needed to close. Default 1.
	MaxRequests uint32
	// Interval clears the counts while closed. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open. Default 60s.
	Timeout time.Duration
	// ReadyToTrip decides, after a failure while closed, whether to open.
	// Default: more than 5 consecutive failures.
	ReadyToTrip func(counts Counts) bool
	// IsSuccessful classifies a call's error. Default: err == nil.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from State, to State)
}

type Breaker struct {
	name          string
	maxRequests   uint32
	interval      time.Duration
	timeout       time.Duration
	readyToTrip   func(counts Counts) bool
	isSuccessful  func(err error) bool
	onStateChange func(name string, from State, to State)

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

func NewBreaker(st Settings) *Breaker {
	b := &Breaker{
		name:          st.Name,
		maxRequests:   st.MaxRequests,
		interval:      st.Interval,
		timeout:       st.Timeout,
		readyToTrip:   st.ReadyToTrip,
		isSuccessful:  st.IsSuccessful,
		onStateChange: st.OnStateChange,
	}

	if b.maxRequests == 0 {
		b.maxRequests = 1
	}
	if b.interval < 0 {
		b.interval = 0
	}
	if b.timeout <= 0 {
		b.timeout = defaultTimeout
	}
	if b.readyToTrip == nil {
		b.readyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if b.isSuccessful == nil {
		b.isSuccessful = func(err error) bool {
			return err == nil
		}
	}

	b.toNewGeneration(time.Now())

	return b
}

func (b *Breaker) toNewGeneration(now time.Time) {
	b.generation++
	b.counts.clear()

	switch b.state {
	case Closed:
		if b.interval == 0 {
			b.expiry = time.Time{}
		} else {
			b.expiry = now.Add(b.interval)
		}
	case Open:
		b.expiry = now.Add(b.timeout)
	default:
		b.expiry = time.Time{}
	}
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.currentState(time.Now())
	return state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case Closed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.toNewGeneration(now)
		}
	case Open:
		if b.expiry.Before(now) {
			b.setState(HalfOpen, now)
		}
	}

	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.toNewGeneration(now)

	log.Debugf("breaker %s: %s -> %s", b.name, prev, state)
	if b.onStateChange != nil {
		b.onStateChange(b.name, prev, state)
	}
}

// Execute runs req unless the breaker rejects it, and records the outcome.
// A panic in req counts as a failure and is re-raised.
func (b *Breaker) Execute(req func() (any, error)) (any, error) {
	generation, err := b.beforeRequest()
	if err != nil {
		return nil, err
	}

	defer func() {
		if e := recover(); e != nil {
			b.afterRequest(generation, false)
			panic(e)
		}
	}()

	result, err := req()
	b.afterRequest(generation, b.isSuccessful(err))
	return result, err
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, generation := b.currentState(time.Now())

	switch {
	case state == Open:
		return generation, ErrOpenState
	case state == HalfOpen && b.counts.Requests >= b.maxRequests:
		return generation, ErrTooManyRequests
	}

	b.counts.onRequest()
	return generation, nil
}

func (b *Breaker) afterRequest(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)
	// 结果属于已经过去的 generation, 丢弃
	if generation != before {
		return
	}

	if success {
		b.counts.onSuccess()
		if state == HalfOpen && b.counts.ConsecutiveSuccesses >= b.maxRequests {
			b.setState(Closed, now)
		}
		return
	}

	switch state {
	case Closed:
		b.counts.onFailure()
		if b.readyToTrip(b.counts) {
			b.setState(Open, now)
		}
	case HalfOpen:
		b.setState(Open, now)
	}
}
