package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gammazero/toposort"
	"gopkg.in/yaml.v3"
)

func init() {
	RegisterFactory("file", func(path string) (Tracker, error) {
		return NewFileTracker(path)
	})
}

// taskFile is the on-disk YAML document.
type taskFile struct {
	Tasks []Task `yaml:"tasks"`
}

// FileTracker is a YAML-file-backed tracker. Task order in the file is the
// stable order used for selection tie-breaks.
type FileTracker struct {
	mu    sync.Mutex
	path  string
	tasks []Task
}

// NewFileTracker loads the task file at path and validates its dependency
// graph. A task with an empty status is normalized to open.
func NewFileTracker(path string) (*FileTracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file %q: %w", path, err)
	}

	var doc taskFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task file %q: %w", path, err)
	}

	seen := make(map[string]bool, len(doc.Tasks))
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if t.ID == "" {
			return nil, fmt.Errorf("task file %q: task %d has no id", path, i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("task file %q: duplicate task id %q", path, t.ID)
		}
		seen[t.ID] = true
		if t.Status == "" {
			t.Status = StatusOpen
		}
	}

	if err := validateDependencies(doc.Tasks); err != nil {
		return nil, fmt.Errorf("task file %q: %w", path, err)
	}

	return &FileTracker{path: path, tasks: doc.Tasks}, nil
}

// validateDependencies checks that every dependency exists and that the graph
// is acyclic, using a topological sort.
func validateDependencies(tasks []Task) error {
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}

	var edges []toposort.Edge
	for _, t := range tasks {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("dependency cycle: %w", err)
	}
	return nil
}

// GetTasks returns all tasks in file order.
func (f *FileTracker) GetTasks(_ context.Context) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Task, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

// CompleteTask marks a task completed and persists the file. Completing an
// already completed task is a no-op success.
func (f *FileTracker) CompleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.find(id)
	if t == nil {
		return &Error{Op: "complete", Err: fmt.Errorf("task %q not found", id)}
	}
	if t.Status == StatusCompleted {
		return nil
	}

	t.Status = StatusCompleted
	return f.persist()
}

// UpdateTaskStatus sets a task's status and persists the file. Returns nil
// (no error) when the task does not exist.
func (f *FileTracker) UpdateTaskStatus(_ context.Context, id string, status Status) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.find(id)
	if t == nil {
		return nil, nil
	}

	t.Status = status
	if err := f.persist(); err != nil {
		return nil, err
	}

	clone := *t
	return &clone, nil
}

// find returns a pointer into the backing slice. Caller holds f.mu.
func (f *FileTracker) find(id string) *Task {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return &f.tasks[i]
		}
	}
	return nil
}

// persist writes the task file atomically (temp file + rename). Caller holds f.mu.
func (f *FileTracker) persist() error {
	data, err := yaml.Marshal(taskFile{Tasks: f.tasks})
	if err != nil {
		return &Error{Op: "persist", Err: err}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &Error{Op: "persist", Err: err}
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return &Error{Op: "persist", Err: err}
	}
	return nil
}

// WriteTaskFile writes a starter task file. Used by `autopilot init` and tests.
func WriteTaskFile(path string, tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(taskFile{Tasks: tasks})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
