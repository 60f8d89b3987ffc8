package agent

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// chunkBufferSize bounds the per-process output channel. The engine drains it
// continuously; if it ever fills, pipe reads block until it drains.
const chunkBufferSize = 256

// newCommand creates an exec.Cmd with process group isolation.
// The Setpgid: true flag ensures the subprocess is in its own process group,
// allowing for clean termination of the entire subprocess tree.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group for signal propagation
	}
	// The default context cancel kills only the direct child. Shell-wrapper
	// CLIs leave a grandchild holding the pipe write-ends, which keeps the
	// output stream open past the deadline. Kill the whole group instead.
	cmd.Cancel = func() error {
		return killProcessGroup(cmd, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// killProcessGroup kills the entire process group associated with the command.
// This ensures all child processes are terminated, not just the immediate subprocess.
func killProcessGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}

	// Negative PID targets the whole process group
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		return fmt.Errorf("failed to signal process group: %w", err)
	}

	return nil
}

// streamHandle implements Handle over a live subprocess. Output chunks are
// produced line-by-line from stdout and stderr by two reader goroutines; the
// channel is closed after both pipes drain and the process exits.
type streamHandle struct {
	cmd    *exec.Cmd
	out    chan Chunk
	done   chan struct{}
	exit   Exit
	procMg *ProcessManager

	interruptOnce sync.Once
}

// startStreaming launches the command and wires its pipes into a chunk channel.
// Both pipes are read concurrently and fully drained before cmd.Wait(), which
// prevents deadlocks when subprocess output exceeds pipe buffer capacity.
func startStreaming(cmd *exec.Cmd, pm *ProcessManager) (*streamHandle, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	if pm != nil {
		pm.Track(cmd)
	}

	h := &streamHandle{
		cmd:    cmd,
		out:    make(chan Chunk, chunkBufferSize),
		done:   make(chan struct{}),
		procMg: pm,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	readPipe := func(stream Stream, r *bufio.Scanner) {
		defer wg.Done()
		r.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for r.Scan() {
			h.out <- Chunk{Stream: stream, Data: r.Text(), At: time.Now()}
		}
	}

	go readPipe(StreamStdout, bufio.NewScanner(stdoutPipe))
	go readPipe(StreamStderr, bufio.NewScanner(stderrPipe))

	go func() {
		// Drain both pipes before cmd.Wait()
		wg.Wait()

		waitErr := cmd.Wait()
		exit := Exit{}
		if waitErr != nil {
			exit.Err = waitErr
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				exit.Code = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					exit.Signal = status.Signal().String()
				}
				exit.Err = nil // Non-zero exit is a result, not a transport error
			}
		}

		if pm != nil {
			pm.Untrack(cmd)
		}

		h.exit = exit
		close(h.out)
		close(h.done)
	}()

	return h, nil
}

// Output returns the chunk channel. Closed once the process exits.
func (h *streamHandle) Output() <-chan Chunk {
	return h.out
}

// Wait blocks until the process exits and returns its terminal record. The
// signal, if any, comes from the real wait status, so a process that exited
// cleanly before an Interrupt reports a clean exit.
func (h *streamHandle) Wait() Exit {
	<-h.done
	return h.exit
}

// Interrupt terminates the process group: SIGTERM first, then SIGKILL after a
// short grace period if the process has not exited.
func (h *streamHandle) Interrupt() error {
	var err error
	h.interruptOnce.Do(func() {
		err = killProcessGroup(h.cmd, syscall.SIGTERM)
		if err != nil {
			return
		}

		go func() {
			select {
			case <-h.done:
			case <-time.After(5 * time.Second):
				_ = killProcessGroup(h.cmd, syscall.SIGKILL)
			}
		}()
	})
	return err
}

// executeStreaming starts a CLI invocation with process group isolation and
// returns its streaming handle. A positive timeout bounds the whole run; the
// derived context is released once the process exits.
func executeStreaming(ctx context.Context, pm *ProcessManager, timeout time.Duration, workDir, command string, args ...string) (Handle, error) {
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	cmd := newCommand(ctx, command, args...)
	cmd.Dir = workDir

	h, err := startStreaming(cmd, pm)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		h.Wait()
		cancel()
	}()

	return h, nil
}

// ProcessManager tracks all running subprocesses and can terminate them all on
// shutdown. This prevents zombie processes and ensures clean cleanup.
//
// Usage pattern (typically in main):
//
//	pm := NewProcessManager()
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//	go func() {
//	  <-ctx.Done()
//	  pm.KillAll()
//	}()
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a subprocess for tracking.
// Should be called after cmd.Start() when cmd.Process is available.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess from tracking.
// Should be called after cmd.Wait() completes.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses.
// Called during shutdown to ensure clean termination.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd, syscall.SIGKILL); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors killing processes: %v", errs)
	}

	return nil
}

// Count returns the number of currently tracked processes.
// Useful for tests and monitoring.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
