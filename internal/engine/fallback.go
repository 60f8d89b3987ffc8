package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/autopilot/internal/agent"
)

// BreakerRegistry manages per-agent circuit breakers. A breaker that has seen
// enough consecutive failures short-circuits availability checks and recovery
// probes, so a dead CLI is not re-exercised on every iteration.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given agent id.
// Creates a new one if it doesn't exist.
func (r *BreakerRegistry) Get(agentID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentID,
		MaxRequests: 1,
		Interval:    0, // Don't clear counts automatically
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Don't count user cancellation as agent failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) {
				return true
			}
			return false
		},
	})

	r.breakers[agentID] = cb
	return cb
}

// FallbackSelector picks the next agent after the primary's retry budget for
// rate-limiting is exhausted.
type FallbackSelector struct {
	registry *agent.Registry
	breakers *BreakerRegistry
}

// NewFallbackSelector creates a selector over the given agent registry.
func NewFallbackSelector(registry *agent.Registry, breakers *BreakerRegistry) *FallbackSelector {
	return &FallbackSelector{registry: registry, breakers: breakers}
}

// Next returns the first agent from the ordered backup list that has not been
// tried this iteration and reports itself available. Returns
// ErrFallbackExhausted when none qualifies.
func (s *FallbackSelector) Next(ctx context.Context, backups []string, tried map[string]bool) (agent.Agent, error) {
	for _, id := range backups {
		if tried[id] {
			continue
		}

		a, ok := s.registry.Get(id)
		if !ok {
			log.Printf("WARNING: fallback agent %q is not registered, skipping", id)
			continue
		}

		cb := s.breakers.Get(id)
		result, err := cb.Execute(func() (interface{}, error) {
			res := a.Detect(ctx)
			if !res.Available {
				return res, errors.New(res.Error)
			}
			return res, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				log.Printf("fallback agent %q circuit open, skipping", id)
			} else {
				log.Printf("fallback agent %q unavailable: %v", id, err)
			}
			continue
		}
		_ = result

		return a, nil
	}

	return nil, ErrFallbackExhausted
}

// probePrompt is deliberately synthetic: a probe failure must not burn real
// task context, and a trivial prompt keeps the bounded timeout honest.
const probePrompt = "Reply with the single word: pong"

// ProbeConfig configures the primary-recovery probe run at the start of an
// iteration while a fallback agent is active.
type ProbeConfig struct {
	Enabled bool
	Timeout time.Duration // Default 5s
}

// DefaultProbeConfig returns the default recovery probe configuration.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{Enabled: true, Timeout: 5 * time.Second}
}

// ProbePrimary runs a short, low-cost invocation of the primary agent to see
// whether its rate limit has cleared. Never blocks longer than the configured
// timeout. Returns true when the probe ran clean.
func ProbePrimary(ctx context.Context, primary agent.Agent, cfg ProbeConfig, breakers *BreakerRegistry) bool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cb := breakers.Get(primary.ID())
	_, err := cb.Execute(func() (interface{}, error) {
		handle, err := primary.Execute(ctx, probePrompt, agent.Options{Timeout: timeout})
		if err != nil {
			return nil, err
		}

		var stderr []string
		for chunk := range handle.Output() {
			if chunk.Stream == agent.StreamStderr {
				stderr = append(stderr, chunk.Data)
			}
		}
		exit := handle.Wait()

		if exit.Err != nil {
			return nil, exit.Err
		}
		if exit.Code != 0 {
			detection := Classify(primary.RateLimitPatterns(), strings.Join(stderr, "\n"), exit.Code)
			if detection.IsRateLimit {
				return nil, errors.New("still rate limited: " + detection.Message)
			}
			return nil, errors.New("probe exited non-zero")
		}
		return nil, nil
	})

	if err != nil {
		log.Printf("primary recovery probe for %q failed: %v", primary.ID(), err)
		return false
	}
	return true
}
