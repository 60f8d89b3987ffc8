package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autopilot/internal/engine"
	"github.com/aristath/autopilot/internal/tracker"
)

// Reconcile repairs a loaded snapshot after a crash. Two repairs happen:
//
//  1. An iteration with no end time belongs to the dead process; it is closed
//     with an interrupted outcome and its task is reset to open.
//  2. Any task persisted as in_progress that no open iteration accounts for
//     is reset to open. Crash during that task is assumed; no partial credit.
//
// The returned state is ready to run: status idle, no current task, and the
// active agent and rate-limit state cleared (a resumed run re-detects agents
// rather than trusting stale throttle state).
func Reconcile(ctx context.Context, state engine.EngineState, tr tracker.Tracker) (engine.EngineState, error) {
	if open := state.OpenIteration(); open != nil {
		now := time.Now()
		open.EndedAt = &now
		open.Outcome = engine.OutcomeInterrupted
	}

	tasks, err := tr.GetTasks(ctx)
	if err != nil {
		return engine.EngineState{}, fmt.Errorf("failed to list tasks during recovery: %w", err)
	}

	for _, t := range tasks {
		if t.Status != tracker.StatusInProgress {
			continue
		}
		// Either the dead run's open iteration or an orphan; reset both
		if _, err := tr.UpdateTaskStatus(ctx, t.ID, tracker.StatusOpen); err != nil {
			return engine.EngineState{}, fmt.Errorf("failed to reset task %q during recovery: %w", t.ID, err)
		}
	}

	state.Status = engine.StatusIdle
	state.CurrentTaskID = ""
	state.ActiveAgent = nil
	state.RateLimit = nil

	return state, nil
}
