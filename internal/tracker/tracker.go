package tracker

import (
	"context"
	"fmt"
	"sync"
)

// Status represents the current state of a tracked task.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Task is a unit of work owned by the tracker. The engine only mutates task
// status through the Tracker interface.
type Task struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Status      Status   `yaml:"status" json:"status"`
	Priority    int      `yaml:"priority" json:"priority"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Tracker defines the interface that all tracker adapters must implement.
// Implementations must be idempotent under retry: completing an already
// completed task is a no-op success.
type Tracker interface {
	// GetTasks returns all tasks in stable insertion order.
	GetTasks(ctx context.Context) ([]Task, error)

	// CompleteTask marks a task completed.
	CompleteTask(ctx context.Context, id string) error

	// UpdateTaskStatus sets a task's status and returns the updated task, or
	// nil if the task does not exist.
	UpdateTaskStatus(ctx context.Context, id string, status Status) (*Task, error)
}

// Error wraps a failed tracker adapter call. The engine does not retry these;
// it pauses, since task state may be inconsistent.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NextEligible returns the highest-priority task with status open and no
// unmet dependency. Ties break on stable order as returned by the tracker.
// Returns nil when no task is eligible.
func NextEligible(tasks []Task) *Task {
	done := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Status == StatusCompleted {
			done[t.ID] = true
		}
	}

	var best *Task
	for i := range tasks {
		t := &tasks[i]
		if t.Status != StatusOpen {
			continue
		}

		unmet := false
		for _, dep := range t.DependsOn {
			if !done[dep] {
				unmet = true
				break
			}
		}
		if unmet {
			continue
		}

		// Strict > keeps the earlier task on priority ties
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}

	if best == nil {
		return nil
	}
	clone := *best
	return &clone
}

// Factory creates a tracker from its configuration.
type Factory func(path string) (Tracker, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory makes a tracker type available to New. Called from package
// init functions of concrete trackers.
func RegisterFactory(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = f
}

// New creates a tracker of the given kind.
func New(kind, path string) (Tracker, error) {
	factoryMu.RLock()
	f, ok := factories[kind]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tracker type: %s", kind)
	}
	return f(path)
}
