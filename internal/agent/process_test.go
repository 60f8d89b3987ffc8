package agent

import (
	"context"
	"syscall"
	"testing"
	"time"
)

// TestExecuteStreaming_SeparatesStreams verifies stdout and stderr arrive
// tagged with their origin.
func TestExecuteStreaming_SeparatesStreams(t *testing.T) {
	h, err := executeStreaming(context.Background(), nil, 5*time.Second, "",
		"sh", "-c", "echo out-line; echo err-line 1>&2")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var stdout, stderr []string
	for chunk := range h.Output() {
		switch chunk.Stream {
		case StreamStdout:
			stdout = append(stdout, chunk.Data)
		case StreamStderr:
			stderr = append(stderr, chunk.Data)
		}
	}

	if len(stdout) != 1 || stdout[0] != "out-line" {
		t.Errorf("stdout = %v", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "err-line" {
		t.Errorf("stderr = %v", stderr)
	}
	if exit := h.Wait(); exit.Code != 0 {
		t.Errorf("exit code = %d", exit.Code)
	}
}

// TestExecuteStreaming_NonZeroExit verifies an agent's failure status is a
// result, not a transport error.
func TestExecuteStreaming_NonZeroExit(t *testing.T) {
	h, err := executeStreaming(context.Background(), nil, 5*time.Second, "",
		"sh", "-c", "exit 3")
	if err != nil {
		t.Fatal(err)
	}

	for range h.Output() {
	}
	exit := h.Wait()
	if exit.Code != 3 {
		t.Errorf("exit code = %d, want 3", exit.Code)
	}
	if exit.Err != nil {
		t.Errorf("non-zero exit reported as error: %v", exit.Err)
	}
}

// TestExecuteStreaming_StartFailure verifies a missing binary fails at start.
func TestExecuteStreaming_StartFailure(t *testing.T) {
	if _, err := executeStreaming(context.Background(), nil, 0, "",
		"no-such-binary-for-sure-4242"); err == nil {
		t.Error("expected start failure")
	}
}

// TestHandle_Interrupt verifies interrupt terminates the process group and
// the exit record carries the signal.
func TestHandle_Interrupt(t *testing.T) {
	h, err := executeStreaming(context.Background(), nil, 0, "",
		"sh", "-c", "sleep 30")
	if err != nil {
		t.Fatal(err)
	}

	// Give the shell a moment to exec sleep before signalling
	time.Sleep(50 * time.Millisecond)
	if err := h.Interrupt(); err != nil {
		t.Fatalf("interrupt: %v", err)
	}

	done := make(chan Exit, 1)
	go func() { done <- h.Wait() }()

	select {
	case exit := <-done:
		if exit.Signal != syscall.SIGTERM.String() {
			t.Errorf("signal = %q, want %q", exit.Signal, syscall.SIGTERM.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not die after interrupt")
	}

	// Second interrupt is a no-op
	if err := h.Interrupt(); err != nil {
		t.Errorf("repeated interrupt errored: %v", err)
	}
}

// TestExecuteStreaming_Timeout verifies the per-execution bound kills a stuck
// process.
func TestExecuteStreaming_Timeout(t *testing.T) {
	h, err := executeStreaming(context.Background(), nil, 100*time.Millisecond, "",
		"sh", "-c", "sleep 30")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan Exit, 1)
	go func() {
		for range h.Output() {
		}
		done <- h.Wait()
	}()

	select {
	case exit := <-done:
		if exit.Code == 0 && exit.Signal == "" {
			t.Errorf("timed-out process reported clean exit: %+v", exit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout never fired")
	}
}

// TestExecuteStreaming_TimeoutKillsShellChildren verifies the bound covers
// the whole process group. A wrapper shell's child inherits the pipe
// write-ends, and would otherwise hold the output stream open long after the
// deadline.
func TestExecuteStreaming_TimeoutKillsShellChildren(t *testing.T) {
	started := time.Now()
	h, err := executeStreaming(context.Background(), nil, 150*time.Millisecond, "",
		"sh", "-c", "sleep 30 & wait")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan Exit, 1)
	go func() {
		for range h.Output() {
		}
		done <- h.Wait()
	}()

	select {
	case exit := <-done:
		if elapsed := time.Since(started); elapsed > 3*time.Second {
			t.Errorf("output stream stayed open %v past a 150ms bound", elapsed)
		}
		if exit.Code == 0 && exit.Signal == "" {
			t.Errorf("timed-out process reported clean exit: %+v", exit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout never fired")
	}
}

// TestHandle_InterruptAfterExit verifies a process that finished on its own
// reports a clean exit even when an interrupt lands afterwards.
func TestHandle_InterruptAfterExit(t *testing.T) {
	h, err := executeStreaming(context.Background(), nil, 5*time.Second, "",
		"sh", "-c", "exit 0")
	if err != nil {
		t.Fatal(err)
	}

	for range h.Output() {
	}
	h.Interrupt()

	exit := h.Wait()
	if exit.Code != 0 {
		t.Errorf("exit code = %d, want 0", exit.Code)
	}
	if exit.Signal != "" {
		t.Errorf("natural exit carries signal %q", exit.Signal)
	}
}

// TestExecuteStreaming_WorkDir verifies the working directory is applied.
func TestExecuteStreaming_WorkDir(t *testing.T) {
	dir := t.TempDir()
	h, err := executeStreaming(context.Background(), nil, 5*time.Second, dir,
		"sh", "-c", "pwd")
	if err != nil {
		t.Fatal(err)
	}

	var got string
	for chunk := range h.Output() {
		if chunk.Stream == StreamStdout {
			got = chunk.Data
		}
	}
	h.Wait()

	// macOS tempdirs resolve through /private; compare by suffix
	if got == "" || !(got == dir || len(got) > len(dir) && got[len(got)-len(dir):] == dir) {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

// TestProcessManager_TrackingLifecycle verifies processes appear while
// running and vanish after exit.
func TestProcessManager_TrackingLifecycle(t *testing.T) {
	pm := NewProcessManager()

	h, err := executeStreaming(context.Background(), pm, 5*time.Second, "",
		"sh", "-c", "sleep 0.2")
	if err != nil {
		t.Fatal(err)
	}

	if pm.Count() != 1 {
		t.Errorf("running process not tracked, count = %d", pm.Count())
	}

	for range h.Output() {
	}
	h.Wait()

	if pm.Count() != 0 {
		t.Errorf("exited process still tracked, count = %d", pm.Count())
	}
}

// TestProcessManager_KillAll verifies shutdown terminates every tracked
// process.
func TestProcessManager_KillAll(t *testing.T) {
	pm := NewProcessManager()

	h, err := executeStreaming(context.Background(), pm, 0, "",
		"sh", "-c", "sleep 30")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := pm.KillAll(); err != nil {
		t.Fatalf("kill all: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for range h.Output() {
		}
		h.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process survived KillAll")
	}
}
