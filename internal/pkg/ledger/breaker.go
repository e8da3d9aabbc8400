package ledger

import (
	"errors"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/uswegem/miracore/configs"
	"github.com/uswegem/miracore/internal/pkg/logger"
)

// BreakerSet holds one circuit breaker per (client role × HTTP verb).
// Breakers are created lazily on first use and live for the process;
// the admin surface can reset them all.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      configs.BreakerConfig
}

func NewBreakerSet(cfg configs.BreakerConfig) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
	}
}

// For returns the breaker for a role and HTTP verb.
func (s *BreakerSet) For(role, verb string) *gobreaker.CircuitBreaker {
	key := role + ":" + verb

	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[key]; ok {
		return cb
	}
	cb := s.newBreaker(key)
	s.breakers[key] = cb
	return cb
}

func (s *BreakerSet) newBreaker(name string) *gobreaker.CircuitBreaker {
	cfg := s.cfg
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var le *Error
			if errors.As(err, &le) {
				return !le.countsAsBreakerFailure()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	})
}

// States reports the current state of every breaker, keyed role:verb.
func (s *BreakerSet) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make(map[string]string, len(s.breakers))
	for key, cb := range s.breakers {
		states[key] = cb.State().String()
	}
	return states
}

// Reset discards all breakers; the next call per key starts CLOSED.
func (s *BreakerSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers = make(map[string]*gobreaker.CircuitBreaker)
}

// IsCircuitOpen reports whether err is the breaker's fail-fast rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
