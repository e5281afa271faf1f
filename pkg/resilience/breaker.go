package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrCircuitOpen is returned by Execute once the breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker trips after a run of consecutive failures and then rejects every
// further call. An export writes to each sink once, so an open breaker stays
// open until Reset.
type Breaker struct {
	name      string
	threshold int
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
}

// NewBreaker returns a closed breaker that opens after threshold consecutive
// failures. A threshold below one is treated as one.
func NewBreaker(name string, threshold int) *Breaker {
	return &Breaker{
		name:      name,
		threshold: max(threshold, 1),
		logger:    slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker is open, and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		return nil
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.threshold {
		b.state = StateOpen
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "threshold", b.threshold)
	}
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}
