// Package prompt renders a tracked task into the text handed to an agent CLI.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aristath/autopilot/internal/tracker"
)

// defaultTemplate is the built-in prompt. It always closes with the
// completion-token instruction so the engine's output scanner can detect
// success.
const defaultTemplate = `You are working autonomously on one task from the project task queue.

Task ID: {{.Task.ID}}
Title: {{.Task.Title}}
{{- if .Task.Description}}

Description:
{{.Task.Description}}
{{- end}}

Complete this task fully. When the task is done and verified, print exactly
this token on its own line as your final output:

{{.CompletionToken}}

Do not print the token unless the task is genuinely complete.`

// Builder renders tasks into prompt text.
type Builder struct {
	tmpl  *template.Template
	token string
}

// data is the template context.
type data struct {
	Task            tracker.Task
	CompletionToken string
}

// NewBuilder creates a builder from a custom template source, or the built-in
// template when source is empty.
func NewBuilder(source, completionToken string) (*Builder, error) {
	if strings.TrimSpace(source) == "" {
		source = defaultTemplate
	}

	tmpl, err := template.New("prompt").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &Builder{tmpl: tmpl, token: completionToken}, nil
}

// Build renders the prompt for one task.
func (b *Builder) Build(task tracker.Task) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data{Task: task, CompletionToken: b.token}); err != nil {
		return "", fmt.Errorf("render prompt for task %q: %w", task.ID, err)
	}
	return sb.String(), nil
}
