package engine

import (
	"errors"
)

var (
	// ErrAlreadyRunning is returned by Start when the engine is not idle.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning is returned by control operations that need a live engine.
	ErrNotRunning = errors.New("engine not running")

	// ErrInvalidBound is returned when RemoveIterations would set the budget
	// below the already-run count.
	ErrInvalidBound = errors.New("iteration bound below already-run count")

	// ErrFallbackExhausted signals that the primary and every configured
	// backup agent rate-limited within one iteration. Recoverable: the engine
	// pauses rather than failing the run.
	ErrFallbackExhausted = errors.New("all agents rate limited")
)
