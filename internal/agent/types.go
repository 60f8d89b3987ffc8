package agent

import (
	"time"
)

// DetectResult reports whether an agent CLI is installed and usable.
type DetectResult struct {
	Available bool
	Version   string
	Error     string
}

// Options configures a single agent execution.
type Options struct {
	WorkDir string
	Model   string
	Timeout time.Duration // Zero means no timeout
}

// Stream identifies which pipe a chunk came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Chunk is one piece of subprocess output.
type Chunk struct {
	Stream Stream
	Data   string
	At     time.Time
}

// Exit is the terminal record of an agent process.
type Exit struct {
	Code   int
	Signal string // Name of the terminating signal, if any
	Err    error  // Process-level error (start failure, context cancellation)
}

// Handle is a live agent execution. Output delivers stdout/stderr chunks on a
// bounded channel and is closed once the process exits; Wait blocks until the
// terminal exit record is available. Interrupt terminates the whole process
// group.
type Handle interface {
	Output() <-chan Chunk
	Wait() Exit
	Interrupt() error
}
