package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
	When() time.Time
}

// Topic constants
const (
	TopicEngine = "engine"
	TopicTask   = "task"
	TopicAgent  = "agent"
)

// Event type constants
const (
	EventTypeTaskSelected      = "task.selected"
	EventTypePromptBuilt       = "task.prompt_built"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeTaskSkipped       = "task.skipped"
	EventTypeAgentStarted      = "agent.started"
	EventTypeAgentOutput       = "agent.output"
	EventTypeRateLimitDetected = "agent.rate_limited"
	EventTypeRetryScheduled    = "agent.retry_scheduled"
	EventTypeAgentSwitched     = "agent.switched"
	EventTypeEnginePaused      = "engine.paused"
	EventTypeEngineResumed     = "engine.resumed"
	EventTypeEngineInterrupted = "engine.interrupted"
	EventTypeEngineCompleted   = "engine.completed"
	EventTypeEngineFailed      = "engine.failed"
	EventTypeGap               = "bus.gap"
)

// TaskSelectedEvent is published when the controller picks the next task.
type TaskSelectedEvent struct {
	ID        string
	Title     string
	Iteration int
	Timestamp time.Time
}

func (e TaskSelectedEvent) EventType() string { return EventTypeTaskSelected }
func (e TaskSelectedEvent) TaskID() string    { return e.ID }
func (e TaskSelectedEvent) When() time.Time   { return e.Timestamp }

// PromptBuiltEvent is published after the prompt template renders.
type PromptBuiltEvent struct {
	ID        string
	Bytes     int
	Timestamp time.Time
}

func (e PromptBuiltEvent) EventType() string { return EventTypePromptBuilt }
func (e PromptBuiltEvent) TaskID() string    { return e.ID }
func (e PromptBuiltEvent) When() time.Time   { return e.Timestamp }

// AgentStartedEvent is published when an agent process starts for a task.
type AgentStartedEvent struct {
	ID        string
	AgentID   string
	Attempt   int
	Timestamp time.Time
}

func (e AgentStartedEvent) EventType() string { return EventTypeAgentStarted }
func (e AgentStartedEvent) TaskID() string    { return e.ID }
func (e AgentStartedEvent) When() time.Time   { return e.Timestamp }

// AgentOutputEvent is published for each output chunk from the agent process.
type AgentOutputEvent struct {
	ID        string
	AgentID   string
	Stream    string // "stdout" or "stderr"
	Line      string
	Timestamp time.Time
}

func (e AgentOutputEvent) EventType() string { return EventTypeAgentOutput }
func (e AgentOutputEvent) TaskID() string    { return e.ID }
func (e AgentOutputEvent) When() time.Time   { return e.Timestamp }

// RateLimitDetectedEvent is published when agent output classifies as a
// transient rate-limit condition.
type RateLimitDetectedEvent struct {
	ID         string
	AgentID    string
	Message    string
	RetryAfter time.Duration // Zero when the agent gave no explicit value
	Timestamp  time.Time
}

func (e RateLimitDetectedEvent) EventType() string { return EventTypeRateLimitDetected }
func (e RateLimitDetectedEvent) TaskID() string    { return e.ID }
func (e RateLimitDetectedEvent) When() time.Time   { return e.Timestamp }

// RetryScheduledEvent is published when the engine schedules a backoff wait.
type RetryScheduledEvent struct {
	ID        string
	AgentID   string
	Attempt   int
	Delay     time.Duration
	Timestamp time.Time
}

func (e RetryScheduledEvent) EventType() string { return EventTypeRetryScheduled }
func (e RetryScheduledEvent) TaskID() string    { return e.ID }
func (e RetryScheduledEvent) When() time.Time   { return e.Timestamp }

// AgentSwitchedEvent is published when the active agent changes.
type AgentSwitchedEvent struct {
	ID        string
	From      string
	To        string
	Reason    string // "rate_limit", "recovery", or "manual"
	Timestamp time.Time
}

func (e AgentSwitchedEvent) EventType() string { return EventTypeAgentSwitched }
func (e AgentSwitchedEvent) TaskID() string    { return e.ID }
func (e AgentSwitchedEvent) When() time.Time   { return e.Timestamp }

// TaskCompletedEvent is published when an iteration completes its task.
type TaskCompletedEvent struct {
	ID        string
	AgentID   string
	Iteration int
	Duration  time.Duration
	Fallback  bool // True when the task completed on a fallback agent
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }
func (e TaskCompletedEvent) When() time.Time   { return e.Timestamp }

// TaskFailedEvent is published when an iteration fails its task.
type TaskFailedEvent struct {
	ID        string
	AgentID   string
	Iteration int
	Reason    string
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }
func (e TaskFailedEvent) When() time.Time   { return e.Timestamp }

// TaskSkippedEvent is published when the skip failure strategy blocks a task
// and moves on.
type TaskSkippedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }
func (e TaskSkippedEvent) When() time.Time   { return e.Timestamp }

// EngineStatusEvent is published on pause, resume, interrupt, completion, and
// engine-level failure. Type discriminates which.
type EngineStatusEvent struct {
	Type      string
	Detail    string
	Timestamp time.Time
}

func (e EngineStatusEvent) EventType() string { return e.Type }
func (e EngineStatusEvent) TaskID() string    { return "" }
func (e EngineStatusEvent) When() time.Time   { return e.Timestamp }

// GapEvent is delivered to a subscriber in place of events dropped from its
// queue. Dropped counts how many events were lost since the last delivery.
type GapEvent struct {
	Dropped   int
	Timestamp time.Time
}

func (e GapEvent) EventType() string { return EventTypeGap }
func (e GapEvent) TaskID() string    { return "" }
func (e GapEvent) When() time.Time   { return e.Timestamp }
