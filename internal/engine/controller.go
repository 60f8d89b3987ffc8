package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/autopilot/internal/agent"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/tracker"
)

// FailureStrategy governs what happens when an agent fails a task for reasons
// other than rate limiting.
type FailureStrategy string

const (
	FailRetry FailureStrategy = "retry" // Re-run the same task, bounded attempts
	FailSkip  FailureStrategy = "skip"  // Mark the task blocked, continue
	FailAbort FailureStrategy = "abort" // Stop the engine, surface the failure
)

// Config configures the iteration controller.
type Config struct {
	MaxIterations   int
	FailureStrategy FailureStrategy
	MaxTaskRetries  int // Re-attempt budget under FailRetry (default 2)
	CompletionToken string
	WorkDir         string
	ExecTimeout     time.Duration // Per-execution bound; zero disables
	Backoff         BackoffConfig
	Probe           ProbeConfig
	PrimaryAgent    string
	FallbackAgents  []string // Ordered backup list
}

// PromptBuilder renders a task into the prompt handed to the agent.
type PromptBuilder interface {
	Build(task tracker.Task) (string, error)
}

// StateSaver persists engine snapshots. Satisfied by session.Store.
type StateSaver interface {
	Save(ctx context.Context, state EngineState) error
}

// stderrTailLines bounds how much stderr the rate-limit classifier sees.
const stderrTailLines = 50

// Controller is the iteration state machine. It owns EngineState exclusively:
// all mutation happens on the run goroutine, and control operations take
// effect at the next suspension point (agent exit, backoff timer, probe,
// tracker I/O).
type Controller struct {
	cfg      Config
	agents   *agent.Registry
	tasks    tracker.Tracker
	prompts  PromptBuilder
	bus      *events.EventBus
	saver    StateSaver
	breakers *BreakerRegistry
	selector *FallbackSelector

	mu          sync.Mutex
	state       *EngineState
	running     bool
	paused      bool
	resumeCh    chan struct{}
	interrupted bool
	interruptCh chan struct{} // Closed on Interrupt; wakes backoff waits
	execHandle  agent.Handle
	cancelRun   context.CancelFunc
	doneCh      chan struct{}
	taskRetries int // FailRetry budget consumed for the current task
}

// NewController creates a controller over a fresh or resumed engine state.
func NewController(cfg Config, reg *agent.Registry, tasks tracker.Tracker, prompts PromptBuilder, bus *events.EventBus, saver StateSaver, state *EngineState) *Controller {
	if cfg.MaxTaskRetries <= 0 {
		cfg.MaxTaskRetries = 2
	}
	if cfg.Backoff.MaxRetries <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.CompletionToken == "" {
		cfg.CompletionToken = DefaultCompletionToken
	}

	if state == nil {
		state = &EngineState{Status: StatusIdle, MaxIterations: cfg.MaxIterations}
	}
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}
	if state.MaxIterations == 0 {
		state.MaxIterations = cfg.MaxIterations
	}

	breakers := NewBreakerRegistry()
	return &Controller{
		cfg:      cfg,
		agents:   reg,
		tasks:    tasks,
		prompts:  prompts,
		bus:      bus,
		saver:    saver,
		breakers: breakers,
		selector: NewFallbackSelector(reg, breakers),
		state:    state,
	}
}

// State returns a deep copy of the engine state for external readers.
func (c *Controller) State() EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Start begins the iteration loop. Fails with ErrAlreadyRunning if the engine
// is already live.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.paused = false
	c.interrupted = false
	c.cancelRun = cancel
	c.doneCh = make(chan struct{})
	c.state.Status = StatusRunning
	if c.state.StartedAt.IsZero() {
		c.state.StartedAt = time.Now()
	}
	done := c.doneCh
	c.mu.Unlock()

	c.persist()

	go func() {
		defer close(done)
		defer cancel()
		c.run(runCtx)
	}()

	return nil
}

// Wait blocks until the run loop exits.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.doneCh
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop cancels the run loop and waits for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.Wait()
}

// Pause suspends the engine without cancelling an in-flight agent process:
// the live process runs on, but the next step is deferred until Resume.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	if c.paused {
		return nil
	}

	c.paused = true
	c.resumeCh = make(chan struct{})
	c.state.Status = StatusPaused

	c.bus.Publish(events.TopicEngine, events.EngineStatusEvent{
		Type:      events.EventTypeEnginePaused,
		Timestamp: time.Now(),
	})
	return nil
}

// Resume lifts a pause and returns the engine to the interrupted step.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	if !c.paused {
		return nil
	}

	c.paused = false
	c.state.Status = StatusRunning
	close(c.resumeCh)
	c.resumeCh = nil

	c.bus.Publish(events.TopicEngine, events.EngineStatusEvent{
		Type:      events.EventTypeEngineResumed,
		Timestamp: time.Now(),
	})
	return nil
}

// Interrupt cancels the current agent process. The iteration is recorded with
// an interrupted outcome, does not consume an iteration slot, and the engine
// re-enters task selection.
func (c *Controller) Interrupt() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.interrupted = true
	h := c.execHandle
	if c.interruptCh != nil {
		close(c.interruptCh)
		c.interruptCh = nil
	}
	c.mu.Unlock()

	if h != nil {
		return h.Interrupt()
	}
	return nil
}

// Continue resumes a paused engine, or starts a new run when the engine is
// idle after completion.
func (c *Controller) Continue(ctx context.Context) error {
	c.mu.Lock()
	running, paused := c.running, c.paused
	c.mu.Unlock()

	if running {
		if paused {
			return c.Resume()
		}
		return ErrAlreadyRunning
	}
	return c.Start(ctx)
}

// Tasks returns the tracker's current task list.
func (c *Controller) Tasks(ctx context.Context) ([]tracker.Task, error) {
	return c.tasks.GetTasks(ctx)
}

// AddIterations raises the iteration budget by n.
func (c *Controller) AddIterations(n int) error {
	if n <= 0 {
		return ErrInvalidBound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.MaxIterations += n
	return nil
}

// RemoveIterations lowers the iteration budget by n. Fails with
// ErrInvalidBound when the result would drop below the already-run count.
func (c *Controller) RemoveIterations(n int) error {
	if n <= 0 {
		return ErrInvalidBound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state.MaxIterations - n
	if next < c.state.CompletedIterations() {
		return fmt.Errorf("%w: %d completed, requested bound %d", ErrInvalidBound, c.state.CompletedIterations(), next)
	}
	c.state.MaxIterations = next
	return nil
}

// run is the iteration loop. Exits on context cancellation, budget
// exhaustion, no eligible tasks, or abort.
func (c *Controller) run(ctx context.Context) {
	for {
		if err := c.gate(ctx); err != nil {
			c.finishRun(StatusIdle, "")
			return
		}

		c.mu.Lock()
		budgetDone := c.state.CompletedIterations() >= c.state.MaxIterations
		c.mu.Unlock()

		if budgetDone {
			c.finishRun(StatusCompleted, "iteration budget reached")
			return
		}

		proceed, err := c.runIteration(ctx)
		if err != nil {
			c.finishRun(StatusError, err.Error())
			return
		}
		if !proceed {
			if ctx.Err() != nil {
				c.finishRun(StatusIdle, "")
			}
			return
		}
	}
}

// runIteration drives one task from selection to a terminal outcome. Returns
// false when the engine should stop looping (run finished or aborted).
func (c *Controller) runIteration(ctx context.Context) (bool, error) {
	// SelectingTask
	tasks, err := c.tasks.GetTasks(ctx)
	if err != nil {
		c.pauseOnTrackerError(&tracker.Error{Op: "get_tasks", Err: err})
		return true, nil
	}

	next := tracker.NextEligible(tasks)
	if next == nil {
		c.finishRun(StatusCompleted, "no eligible tasks")
		return false, nil
	}

	if _, err := c.tasks.UpdateTaskStatus(ctx, next.ID, tracker.StatusInProgress); err != nil {
		c.pauseOnTrackerError(&tracker.Error{Op: "update_status", Err: err})
		return true, nil
	}

	c.mu.Lock()
	c.interrupted = false
	c.interruptCh = make(chan struct{})
	c.taskRetries = 0
	c.state.CurrentIteration++
	number := c.state.CurrentIteration
	c.state.CurrentTaskID = next.ID
	c.state.History = append(c.state.History, Iteration{
		Number:    number,
		TaskID:    next.ID,
		StartedAt: time.Now(),
	})
	if c.state.ActiveAgent == nil {
		c.state.ActiveAgent = &ActiveAgent{ID: c.cfg.PrimaryAgent, Reason: AgentPrimary, Since: time.Now()}
	}
	c.mu.Unlock()

	c.persist()
	c.bus.Publish(events.TopicTask, events.TaskSelectedEvent{
		ID:        next.ID,
		Title:     next.Title,
		Iteration: number,
		Timestamp: time.Now(),
	})

	// Recovery probe before building the real prompt
	c.maybeRecoverPrimary(ctx)

	// BuildingPrompt
	promptText, err := c.prompts.Build(*next)
	if err != nil {
		c.endIteration(OutcomeFailed)
		c.failTask(ctx, next.ID, fmt.Sprintf("prompt build failed: %v", err))
		return true, nil
	}
	c.bus.Publish(events.TopicTask, events.PromptBuiltEvent{
		ID:        next.ID,
		Bytes:     len(promptText),
		Timestamp: time.Now(),
	})

	// Executing / DetectingOutcome
	return c.executeTask(ctx, *next, promptText)
}

// executeTask runs the active agent against one task, handling rate-limit
// retries, agent switches, and the configured failure strategy. Same prompt
// context is reused across retries and switches within the iteration.
func (c *Controller) executeTask(ctx context.Context, task tracker.Task, promptText string) (bool, error) {
	tried := map[string]bool{}
	retries := 0 // Rate-limit retries for the active agent; reset on switch

	c.mu.Lock()
	activeID := c.state.ActiveAgent.ID
	c.mu.Unlock()
	tried[activeID] = true

	started := time.Now()

	for {
		if err := c.gate(ctx); err != nil {
			c.endIteration(OutcomeInterrupted)
			return false, nil
		}

		c.mu.Lock()
		wasInterrupted := c.interrupted
		c.mu.Unlock()
		if wasInterrupted {
			return c.abandonInterrupted(ctx, task.ID)
		}

		active, ok := c.agents.Get(activeID)
		if !ok {
			c.endIteration(OutcomeFailed)
			return false, fmt.Errorf("active agent %q is not registered", activeID)
		}

		attempt := retries + 1
		c.bus.Publish(events.TopicAgent, events.AgentStartedEvent{
			ID:        task.ID,
			AgentID:   activeID,
			Attempt:   attempt,
			Timestamp: time.Now(),
		})

		sentinel, stderrTail, exit, runErr := c.streamExecution(ctx, active, task, promptText)
		if runErr != nil {
			// Process could not start at all; treat as a fatal agent error
			stderrTail = runErr.Error()
			exit = agent.Exit{Code: -1}
		}

		c.mu.Lock()
		interruptedDuringExec := c.interrupted
		c.mu.Unlock()
		if interruptedDuringExec {
			return c.abandonInterrupted(ctx, task.ID)
		}

		// Sentinel beats exit status: the agent declared the task done
		if sentinel {
			return c.completeTask(ctx, task, activeID, time.Since(started))
		}

		// Detector first: a throttled agent can exit zero after printing the
		// provider's rate-limit message, and that is a transient condition,
		// not a fatal one
		detection := Classify(active.RateLimitPatterns(), stderrTail, exit.Code)
		if !detection.IsRateLimit {
			reason := fmt.Sprintf("agent exited with code %d", exit.Code)
			if exit.Signal != "" {
				reason = fmt.Sprintf("agent terminated by %s", exit.Signal)
			}
			if exit.Code == 0 && exit.Err == nil {
				// Clean exit without the sentinel: the agent gave up
				// silently. A fatal agent error, not success.
				reason = "agent exited without completion token"
			}
			done, err := c.handleFatalFailure(ctx, task, activeID, reason)
			if err != nil {
				return false, err
			}
			if done {
				return true, nil
			}
			continue
		}

		// TransientAgentCondition
		c.recordRateLimit(activeID, retries+1)
		c.bus.Publish(events.TopicAgent, events.RateLimitDetectedEvent{
			ID:         task.ID,
			AgentID:    activeID,
			Message:    detection.Message,
			RetryAfter: detection.RetryAfter,
			Timestamp:  time.Now(),
		})

		if retries < c.cfg.Backoff.MaxRetries {
			// RetryWaiting
			retries++
			delay := c.cfg.Backoff.Delay(retries)
			if detection.RetryAfter > 0 {
				// Explicit signal beats inference
				delay = detection.RetryAfter
			}

			c.bus.Publish(events.TopicAgent, events.RetryScheduledEvent{
				ID:        task.ID,
				AgentID:   activeID,
				Attempt:   retries,
				Delay:     delay,
				Timestamp: time.Now(),
			})
			c.persist()

			if !c.sleep(ctx, delay) {
				c.endIteration(OutcomeInterrupted)
				return false, nil
			}
			continue
		}

		// SwitchingAgent: retry budget exhausted
		nextAgent, err := c.selector.Next(ctx, c.cfg.FallbackAgents, tried)
		if err != nil {
			// FallbackExhausted: pause, notify, and wait for the operator.
			// After resume the iteration restarts its budget from scratch.
			log.Printf("WARNING: all agents rate limited for task %q; pausing", task.ID)
			c.pauseWithNotice("all agents rate limited; resume when limits clear")
			if err := c.gate(ctx); err != nil {
				c.endIteration(OutcomeInterrupted)
				return false, nil
			}
			tried = map[string]bool{activeID: true}
			retries = 0
			continue
		}

		c.switchAgent(activeID, nextAgent.ID(), SwitchRateLimit, task.ID)
		activeID = nextAgent.ID()
		tried[activeID] = true
		retries = 0 // Attempt counter is per-agent
		c.persist()
	}
}

// streamExecution runs one agent invocation, fanning the output stream out to
// the completion scanner, the stderr tail for the rate-limit classifier, and
// the event bus.
func (c *Controller) streamExecution(ctx context.Context, a agent.Agent, task tracker.Task, promptText string) (sentinel bool, stderrTail string, exit agent.Exit, err error) {
	handle, err := a.Execute(ctx, promptText, agent.Options{
		WorkDir: c.cfg.WorkDir,
		Timeout: c.cfg.ExecTimeout,
	})
	if err != nil {
		return false, "", agent.Exit{}, err
	}

	c.mu.Lock()
	c.execHandle = handle
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.execHandle = nil
		c.mu.Unlock()
	}()

	scanner := NewCompletionScanner(c.cfg.CompletionToken)
	var stderr []string

	for chunk := range handle.Output() {
		scanner.Feed(chunk.Data)
		if chunk.Stream == agent.StreamStderr {
			stderr = append(stderr, chunk.Data)
			if len(stderr) > stderrTailLines {
				stderr = stderr[len(stderr)-stderrTailLines:]
			}
		}

		c.bus.Publish(events.TopicAgent, events.AgentOutputEvent{
			ID:        task.ID,
			AgentID:   a.ID(),
			Stream:    string(chunk.Stream),
			Line:      chunk.Data,
			Timestamp: chunk.At,
		})
	}

	exit = handle.Wait()
	return scanner.Found(), strings.Join(stderr, "\n"), exit, nil
}

// abandonInterrupted closes out an interrupted iteration: the task goes back
// to open, the iteration is recorded without consuming a slot, and the engine
// re-enters task selection.
func (c *Controller) abandonInterrupted(ctx context.Context, taskID string) (bool, error) {
	c.endIteration(OutcomeInterrupted)
	if _, err := c.tasks.UpdateTaskStatus(ctx, taskID, tracker.StatusOpen); err != nil {
		c.pauseOnTrackerError(&tracker.Error{Op: "update_status", Err: err})
		return true, nil
	}
	c.bus.Publish(events.TopicEngine, events.EngineStatusEvent{
		Type:      events.EventTypeEngineInterrupted,
		Detail:    taskID,
		Timestamp: time.Now(),
	})
	return true, nil
}

// completeTask finalizes a successful iteration.
func (c *Controller) completeTask(ctx context.Context, task tracker.Task, agentID string, took time.Duration) (bool, error) {
	if err := c.tasks.CompleteTask(ctx, task.ID); err != nil {
		c.pauseOnTrackerError(&tracker.Error{Op: "complete", Err: err})
		return true, nil
	}

	c.mu.Lock()
	fallback := c.state.ActiveAgent != nil && c.state.ActiveAgent.Reason == AgentFallback
	number := c.state.CurrentIteration
	c.mu.Unlock()

	c.endIteration(OutcomeCompleted)
	c.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ID:        task.ID,
		AgentID:   agentID,
		Iteration: number,
		Duration:  took,
		Fallback:  fallback,
		Timestamp: time.Now(),
	})
	return true, nil
}

// handleFatalFailure applies the configured failure strategy to a
// non-rate-limit agent failure. done=false means re-run the task within the
// current iteration; done=true means the iteration is over. A non-nil error
// aborts the engine.
func (c *Controller) handleFatalFailure(ctx context.Context, task tracker.Task, agentID, reason string) (done bool, err error) {
	strategy := c.cfg.FailureStrategy
	if strategy == "" {
		strategy = FailRetry
	}

	if strategy == FailRetry {
		c.mu.Lock()
		c.taskRetries++
		within := c.taskRetries <= c.cfg.MaxTaskRetries
		c.mu.Unlock()

		if within {
			log.Printf("task %q failed (%s); re-attempting", task.ID, reason)
			return false, nil
		}
		// Budget exhausted: degrade to skip so one broken task cannot
		// wedge the whole run
		strategy = FailSkip
	}

	switch strategy {
	case FailSkip:
		c.endIteration(OutcomeFailed)
		if _, err := c.tasks.UpdateTaskStatus(ctx, task.ID, tracker.StatusBlocked); err != nil {
			c.pauseOnTrackerError(&tracker.Error{Op: "update_status", Err: err})
			return true, nil
		}
		c.bus.Publish(events.TopicTask, events.TaskSkippedEvent{
			ID:        task.ID,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		return true, nil

	default: // FailAbort
		c.endIteration(OutcomeFailed)
		c.bus.Publish(events.TopicTask, events.TaskFailedEvent{
			ID:        task.ID,
			AgentID:   agentID,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		return true, fmt.Errorf("task %q failed: %s", task.ID, reason)
	}
}

// maybeRecoverPrimary probes the primary agent when a fallback is active and
// reverts on success. Never blocks longer than the probe timeout.
func (c *Controller) maybeRecoverPrimary(ctx context.Context) {
	if !c.cfg.Probe.Enabled {
		return
	}

	c.mu.Lock()
	onFallback := c.state.ActiveAgent != nil && c.state.ActiveAgent.Reason == AgentFallback
	taskID := c.state.CurrentTaskID
	c.mu.Unlock()

	if !onFallback {
		return
	}

	primary, ok := c.agents.Get(c.cfg.PrimaryAgent)
	if !ok {
		return
	}

	if !ProbePrimary(ctx, primary, c.cfg.Probe, c.breakers) {
		log.Printf("primary agent %q still rate limited; staying on fallback", c.cfg.PrimaryAgent)
		return
	}

	c.mu.Lock()
	from := c.state.ActiveAgent.ID
	c.mu.Unlock()

	c.switchAgent(from, c.cfg.PrimaryAgent, SwitchRecovery, taskID)
	c.mu.Lock()
	c.state.RateLimit = nil
	c.mu.Unlock()
	c.persist()
}

// switchAgent updates the active agent, appends the switch record to the open
// iteration, and publishes the transition.
func (c *Controller) switchAgent(from, to string, reason SwitchReason, taskID string) {
	now := time.Now()

	c.mu.Lock()
	agentReason := AgentFallback
	if to == c.cfg.PrimaryAgent {
		agentReason = AgentPrimary
	}
	c.state.ActiveAgent = &ActiveAgent{ID: to, Reason: agentReason, Since: now}

	if reason == SwitchRateLimit {
		if c.state.RateLimit == nil {
			c.state.RateLimit = &RateLimitState{PrimaryID: c.cfg.PrimaryAgent}
		}
		c.state.RateLimit.FallbackID = to
		if c.state.RateLimit.LimitedAt == nil {
			c.state.RateLimit.LimitedAt = &now
		}
	}

	if open := c.state.OpenIteration(); open != nil {
		open.Switches = append(open.Switches, AgentSwitch{At: now, From: from, To: to, Reason: reason})
	}
	c.mu.Unlock()

	c.bus.Publish(events.TopicAgent, events.AgentSwitchedEvent{
		ID:        taskID,
		From:      from,
		To:        to,
		Reason:    string(reason),
		Timestamp: now,
	})
}

// recordRateLimit tracks throttle state for the primary agent.
func (c *Controller) recordRateLimit(agentID string, count int) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.RateLimit == nil {
		c.state.RateLimit = &RateLimitState{PrimaryID: c.cfg.PrimaryAgent}
	}
	if agentID == c.cfg.PrimaryAgent {
		c.state.RateLimit.RetryCount = count
		if c.state.RateLimit.LimitedAt == nil {
			c.state.RateLimit.LimitedAt = &now
		}
	}
}

// endIteration closes the open iteration with the given outcome.
func (c *Controller) endIteration(outcome Outcome) {
	now := time.Now()

	c.mu.Lock()
	if open := c.state.OpenIteration(); open != nil {
		open.EndedAt = &now
		open.Outcome = outcome
	}
	c.state.CurrentTaskID = ""
	c.mu.Unlock()

	c.persist()
}

// finishRun closes out the run loop with a terminal engine status.
func (c *Controller) finishRun(status Status, detail string) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.state.Status = status
	c.running = false
	c.state.CurrentTaskID = ""
	c.mu.Unlock()

	c.persist()

	if status == StatusIdle {
		// Host shutdown, not a run outcome
		return
	}

	eventType := events.EventTypeEngineCompleted
	if status == StatusError {
		eventType = events.EventTypeEngineFailed
	}
	c.bus.Publish(events.TopicEngine, events.EngineStatusEvent{
		Type:      eventType,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// failTask marks a task blocked after a non-agent failure (e.g. the prompt
// template rejected it).
func (c *Controller) failTask(ctx context.Context, taskID, reason string) {
	if _, err := c.tasks.UpdateTaskStatus(ctx, taskID, tracker.StatusBlocked); err != nil {
		c.pauseOnTrackerError(&tracker.Error{Op: "update_status", Err: err})
		return
	}
	c.bus.Publish(events.TopicTask, events.TaskSkippedEvent{
		ID:        taskID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// pauseOnTrackerError surfaces a failed tracker call and pauses: task state
// may be inconsistent, so the engine must not press on.
func (c *Controller) pauseOnTrackerError(err error) {
	log.Printf("ERROR: %v; pausing engine", err)
	c.pauseWithNotice(err.Error())
}

// pauseWithNotice pauses the engine with a user-facing detail message.
func (c *Controller) pauseWithNotice(detail string) {
	c.mu.Lock()
	if !c.running || c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
	c.state.Status = StatusPaused
	c.mu.Unlock()

	c.persist()
	c.bus.Publish(events.TopicEngine, events.EngineStatusEvent{
		Type:      events.EventTypeEnginePaused,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// gate blocks while the engine is paused. Returns the context error when the
// run is cancelled.
func (c *Controller) gate(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		ch := c.resumeCh
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// sleep waits the given delay. Interrupt wakes the wait early so the loop can
// abandon the iteration; only run cancellation returns false.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	intr := c.interruptCh
	c.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-intr:
		return true
	case <-timer.C:
		return true
	}
}

// persist writes the current snapshot. It runs on a fresh context so that
// shutdown snapshots still land; save failures are logged, not fatal, since
// losing one snapshot is recoverable and stopping the run for it is not.
func (c *Controller) persist() {
	if c.saver == nil {
		return
	}

	c.mu.Lock()
	snapshot := c.state.Clone()
	c.mu.Unlock()

	if err := c.saver.Save(context.Background(), snapshot); err != nil {
		log.Printf("ERROR: failed to persist session snapshot: %v", err)
	}
}
