package engine

import (
	"time"
)

// Status is the engine lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
)

// Outcome is the terminal result of one iteration.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// SwitchReason explains why the active agent changed.
type SwitchReason string

const (
	SwitchRateLimit SwitchReason = "rate_limit"
	SwitchRecovery  SwitchReason = "recovery"
	SwitchManual    SwitchReason = "manual"
)

// AgentReason explains why an agent is active.
type AgentReason string

const (
	AgentPrimary  AgentReason = "primary"
	AgentFallback AgentReason = "fallback"
)

// AgentSwitch records one active-agent change. Entries are append-only and
// strictly ordered by At.
type AgentSwitch struct {
	At     time.Time    `json:"at"`
	From   string       `json:"from"`
	To     string       `json:"to"`
	Reason SwitchReason `json:"reason"`
}

// ActiveAgent identifies the agent the engine currently executes with.
type ActiveAgent struct {
	ID     string      `json:"id"`
	Reason AgentReason `json:"reason"`
	Since  time.Time   `json:"since"`
}

// RateLimitState tracks the primary agent's throttled condition while a
// fallback is (or is about to be) active.
type RateLimitState struct {
	PrimaryID  string     `json:"primary_id"`
	LimitedAt  *time.Time `json:"limited_at,omitempty"`
	FallbackID string     `json:"fallback_id,omitempty"`
	RetryCount int        `json:"retry_count"`
}

// Iteration is one complete attempt to drive a single task to completion,
// inclusive of retries and agent switches within it.
type Iteration struct {
	Number    int           `json:"number"`
	TaskID    string        `json:"task_id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Outcome   Outcome       `json:"outcome,omitempty"`
	Switches  []AgentSwitch `json:"switches,omitempty"`
}

// EngineState is the complete engine snapshot. It is created at engine start
// or session resume, mutated only by the iteration controller, and discarded
// only on an explicit restart.
type EngineState struct {
	Status           Status          `json:"status"`
	CurrentIteration int             `json:"current_iteration"`
	CurrentTaskID    string          `json:"current_task_id,omitempty"`
	ActiveAgent      *ActiveAgent    `json:"active_agent,omitempty"`
	RateLimit        *RateLimitState `json:"rate_limit,omitempty"`
	History          []Iteration     `json:"history"`
	MaxIterations    int             `json:"max_iterations"`
	StartedAt        time.Time       `json:"started_at"`
	RunID            string          `json:"run_id"`
}

// OpenIteration returns the iteration with no EndedAt, or nil. At most one
// iteration is open at any time.
func (s *EngineState) OpenIteration() *Iteration {
	for i := range s.History {
		if s.History[i].EndedAt == nil {
			return &s.History[i]
		}
	}
	return nil
}

// CompletedIterations counts iterations that ran to a terminal outcome other
// than interrupted. Interrupted iterations do not consume an iteration slot.
func (s *EngineState) CompletedIterations() int {
	n := 0
	for _, it := range s.History {
		if it.EndedAt != nil && it.Outcome != OutcomeInterrupted {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to external readers.
func (s *EngineState) Clone() EngineState {
	out := *s

	if s.ActiveAgent != nil {
		agent := *s.ActiveAgent
		out.ActiveAgent = &agent
	}
	if s.RateLimit != nil {
		rl := *s.RateLimit
		if s.RateLimit.LimitedAt != nil {
			at := *s.RateLimit.LimitedAt
			rl.LimitedAt = &at
		}
		out.RateLimit = &rl
	}

	out.History = make([]Iteration, len(s.History))
	for i, it := range s.History {
		clone := it
		if it.EndedAt != nil {
			at := *it.EndedAt
			clone.EndedAt = &at
		}
		clone.Switches = append([]AgentSwitch(nil), it.Switches...)
		out.History[i] = clone
	}

	return out
}
