package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerSettings configures the optional per-provider circuit breaker. A
// provider whose breaker is open is skipped without being called.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before it lets one probe through.
	Timeout time.Duration
	// Interval clears the failure counts periodically while closed.
	Interval time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxFailures == 0 {
		s.MaxFailures = defaultBreakerMaxFailures
	}
	if s.Timeout == 0 {
		s.Timeout = defaultBreakerTimeout
	}
	if s.Interval == 0 {
		s.Interval = defaultBreakerInterval
	}
	return s
}

// breakerSet lazily creates one breaker per provider id. A nil set disables breaking.
type breakerSet struct {
	mu       sync.Mutex
	settings BreakerSettings
	byID     map[string]*gobreaker.CircuitBreaker[*llm.Response]
	logger   *zap.Logger
}

func newBreakerSet(s BreakerSettings, logger *zap.Logger) *breakerSet {
	return &breakerSet{
		settings: s.withDefaults(),
		byID:     make(map[string]*gobreaker.CircuitBreaker[*llm.Response]),
		logger:   logger,
	}
}

func (b *breakerSet) get(id string) *gobreaker.CircuitBreaker[*llm.Response] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.byID[id]; ok {
		return cb
	}
	maxFailures := b.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*llm.Response](gobreaker.Settings{
		Name:        "provider:" + id,
		MaxRequests: 1, // one probe while half-open
		Interval:    b.settings.Interval,
		Timeout:     b.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	b.byID[id] = cb
	return cb
}

func (b *breakerSet) open(id string) bool {
	if b == nil {
		return false
	}
	return b.get(id).State() == gobreaker.StateOpen
}

func (b *breakerSet) execute(id string, fn func() (*llm.Response, error)) (*llm.Response, error) {
	if b == nil {
		return fn()
	}
	return b.get(id).Execute(fn)
}

// forget drops the breaker of a replaced or removed provider.
func (b *breakerSet) forget(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, id)
}

// states reports the breaker state of every provider seen so far.
func (b *breakerSet) states() map[string]string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]string, len(b.byID))
	for id, cb := range b.byID {
		out[id] = cb.State().String()
	}
	return out
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
