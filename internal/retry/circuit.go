package retry

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

// Breaker states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// circuit. Default 5.
	FailureThreshold int
	// CoolDown is how long the circuit stays open before a single trial
	// call is allowed. Default 30s.
	CoolDown time.Duration
	// Now allows test injection of time.
	Now func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.CoolDown <= 0 {
		c.CoolDown = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker tracks consecutive failures for one source and short-circuits calls
// while open. After the cool-down one trial call is allowed; its outcome
// decides whether the circuit closes again.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a Breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: CircuitClosed}
}

// Allow reports whether a call may proceed right now. An open circuit past its
// cool-down transitions to half-open and admits exactly one trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitHalfOpen:
		// The trial slot is taken until Record resolves it.
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	case CircuitOpen:
		if b.cfg.Now().Sub(b.lastFailure) >= b.cfg.CoolDown {
			b.state = CircuitHalfOpen
			b.probing = true
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err == nil {
		b.state = CircuitClosed
		b.failures = 0
		return
	}
	b.failures++
	b.lastFailure = b.cfg.Now()
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = CircuitOpen
	}
}

// State returns the current state, surfacing the half-open transition once
// the cool-down has elapsed.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.cfg.Now().Sub(b.lastFailure) >= b.cfg.CoolDown {
		return CircuitHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.probing = false
}

// BreakerSet manages one breaker per source ID.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerSet creates a registry of per-source breakers.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for sourceID, creating one if needed.
func (s *BreakerSet) Get(sourceID string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[sourceID]
	if !ok {
		b = NewBreaker(s.cfg)
		s.breakers[sourceID] = b
	}
	return b
}

// States snapshots every breaker's state for observability.
func (s *BreakerSet) States() map[string]CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]CircuitState, len(s.breakers))
	for id, b := range s.breakers {
		out[id] = b.State()
	}
	return out
}
