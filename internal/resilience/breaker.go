package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrOpenState is returned by Acquire while the breaker rejects calls.
var ErrOpenState = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned by Acquire in HALF_OPEN once every trial
// permit is taken.
var ErrTooManyRequests = errors.New("circuit breaker is half-open and all trial calls are in flight")

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Outcome is what a finished call reports back to the breaker.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeIgnored frees the permit without affecting state.
	OutcomeIgnored
)

type Transition struct {
	Name string
	From State
	To   State
	At   time.Time
}

type StateChangeListener func(Transition)

// CircuitState is a point-in-time copy of the breaker's counters.
type CircuitState struct {
	State                State     `json:"state"`
	FailureRate          float64   `json:"failureRate"`
	BufferedCalls        int       `json:"bufferedCalls"`
	FailedCalls          int       `json:"failedCalls"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	HalfOpenInFlight     int       `json:"halfOpenInFlight"`
	OpenedAt             time.Time `json:"openedAt,omitempty"`
}

// Breaker is a count-based circuit breaker. In CLOSED it keeps the outcomes
// of the last SlidingWindowSize calls in a ring; in OPEN it rejects until the
// wait duration has elapsed on its clock; in HALF_OPEN the first finished
// trial decides between CLOSED and OPEN.
type Breaker struct {
	name  string
	cfg   BreakerConfig
	clock clock.Clock

	mu       sync.Mutex
	state    State
	openedAt time.Time
	// generation changes on every transition so that permits issued in an
	// earlier state cannot affect the current one.
	generation uint64

	window   []bool
	next     int
	buffered int
	failed   int

	consecutiveSuccesses int
	consecutiveFailures  int
	halfOpenInFlight     int

	listeners []StateChangeListener
}

func NewBreaker(name string, cfg BreakerConfig, clk clock.Clock) (*Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MinimumCalls < 1 || cfg.MinimumCalls > cfg.SlidingWindowSize {
		cfg.MinimumCalls = cfg.SlidingWindowSize
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		clock:  clk,
		state:  StateClosed,
		window: make([]bool, cfg.SlidingWindowSize),
	}, nil
}

func (b *Breaker) Name() string { return b.name }

// OnStateChange registers l. Listeners run after the breaker lock is released.
func (b *Breaker) OnStateChange(l StateChangeListener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Permit is a single admitted call. Release must be called exactly once.
type Permit struct {
	b          *Breaker
	generation uint64
	once       sync.Once
}

// Acquire admits a call or rejects it with ErrOpenState or ErrTooManyRequests.
func (b *Breaker) Acquire() (*Permit, error) {
	b.mu.Lock()
	var transitions []Transition
	if t, ok := b.maybeHalfOpenLocked(); ok {
		transitions = append(transitions, t)
	}

	var (
		p   *Permit
		err error
	)
	switch b.state {
	case StateOpen:
		err = ErrOpenState
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.PermittedCallsInHalfOpen {
			err = ErrTooManyRequests
		} else {
			b.halfOpenInFlight++
			p = &Permit{b: b, generation: b.generation}
		}
	default:
		p = &Permit{b: b, generation: b.generation}
	}
	listeners := b.listeners
	b.mu.Unlock()

	notify(listeners, transitions)
	return p, err
}

// Release records the call outcome. It returns the transition it caused, if any.
func (p *Permit) Release(o Outcome) (Transition, bool) {
	var (
		t       Transition
		changed bool
	)
	p.once.Do(func() {
		t, changed = p.b.release(p.generation, o)
	})
	return t, changed
}

func (b *Breaker) release(generation uint64, o Outcome) (Transition, bool) {
	b.mu.Lock()
	if generation != b.generation {
		b.mu.Unlock()
		return Transition{}, false
	}

	var (
		t       Transition
		changed bool
	)
	switch b.state {
	case StateClosed:
		if o == OutcomeIgnored {
			break
		}
		b.recordLocked(o == OutcomeFailure)
		if b.buffered >= b.cfg.MinimumCalls && b.failureRateLocked() >= b.cfg.FailureRateThreshold {
			t, changed = b.transitionLocked(StateOpen), true
		}
	case StateHalfOpen:
		b.halfOpenInFlight--
		switch o {
		case OutcomeSuccess:
			b.consecutiveSuccesses++
			b.consecutiveFailures = 0
			t, changed = b.transitionLocked(StateClosed), true
		case OutcomeFailure:
			b.consecutiveFailures++
			b.consecutiveSuccesses = 0
			t, changed = b.transitionLocked(StateOpen), true
		}
	}
	listeners := b.listeners
	b.mu.Unlock()

	if changed {
		notify(listeners, []Transition{t})
	}
	return t, changed
}

// State returns the current state, applying a due OPEN to HALF_OPEN move.
func (b *Breaker) State() State {
	return b.Snapshot().State
}

func (b *Breaker) Snapshot() CircuitState {
	b.mu.Lock()
	var transitions []Transition
	if t, ok := b.maybeHalfOpenLocked(); ok {
		transitions = append(transitions, t)
	}
	s := CircuitState{
		State:                b.state,
		FailureRate:          b.failureRateLocked(),
		BufferedCalls:        b.buffered,
		FailedCalls:          b.failed,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		ConsecutiveFailures:  b.consecutiveFailures,
		HalfOpenInFlight:     b.halfOpenInFlight,
		OpenedAt:             b.openedAt,
	}
	listeners := b.listeners
	b.mu.Unlock()

	notify(listeners, transitions)
	return s
}

// Reset forces the breaker back to CLOSED with empty counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var transitions []Transition
	if b.state != StateClosed {
		transitions = append(transitions, b.transitionLocked(StateClosed))
	} else {
		b.clearWindowLocked()
		b.generation++
	}
	listeners := b.listeners
	b.mu.Unlock()

	notify(listeners, transitions)
}

func (b *Breaker) maybeHalfOpenLocked() (Transition, bool) {
	if b.state != StateOpen {
		return Transition{}, false
	}
	if b.clock.Now().Sub(b.openedAt) < b.cfg.WaitDurationInOpenState {
		return Transition{}, false
	}
	return b.transitionLocked(StateHalfOpen), true
}

func (b *Breaker) transitionLocked(to State) Transition {
	now := b.clock.Now()
	t := Transition{Name: b.name, From: b.state, To: to, At: now}
	b.state = to
	b.generation++
	b.halfOpenInFlight = 0

	switch to {
	case StateOpen:
		b.openedAt = now
	case StateClosed:
		b.openedAt = time.Time{}
		b.clearWindowLocked()
	case StateHalfOpen:
		b.clearWindowLocked()
	}
	return t
}

func (b *Breaker) recordLocked(failure bool) {
	if b.buffered == len(b.window) {
		if b.window[b.next] {
			b.failed--
		}
	} else {
		b.buffered++
	}
	b.window[b.next] = failure
	if failure {
		b.failed++
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0
	} else {
		b.consecutiveSuccesses++
		b.consecutiveFailures = 0
	}
	b.next = (b.next + 1) % len(b.window)
}

func (b *Breaker) clearWindowLocked() {
	for i := range b.window {
		b.window[i] = false
	}
	b.next = 0
	b.buffered = 0
	b.failed = 0
}

func (b *Breaker) failureRateLocked() float64 {
	if b.buffered == 0 {
		return 0
	}
	return float64(b.failed) * 100 / float64(b.buffered)
}

func notify(listeners []StateChangeListener, transitions []Transition) {
	for _, t := range transitions {
		for _, l := range listeners {
			l(t)
		}
	}
}
