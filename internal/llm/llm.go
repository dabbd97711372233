// Package llm is the language-model collaborator. Every pipeline stage is a
// Prompt sent through a Completer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyReply = errors.New("no content generated")

// Prompt is the fully rendered input for one stage.
type Prompt struct {
	Role           string
	Goal           string
	Backstory      string
	Task           string
	ExpectedOutput string
	Context        string
}

// Completer is implemented by every model backend.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// System renders the persona half of the prompt.
func (p Prompt) System() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s.\n", p.Role)
	if p.Goal != "" {
		fmt.Fprintf(&b, "Your goal: %s\n", p.Goal)
	}
	if p.Backstory != "" {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(p.Backstory))
	}
	return b.String()
}

// User renders the task half of the prompt.
func (p Prompt) User() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Task))
	b.WriteString("\n")
	if p.Context != "" {
		b.WriteString("\nThis is the context you're working with:\n")
		b.WriteString(strings.TrimSpace(p.Context))
		b.WriteString("\n")
	}
	if p.ExpectedOutput != "" {
		b.WriteString("\nThis is the expected criteria for your final answer: ")
		b.WriteString(strings.TrimSpace(p.ExpectedOutput))
		b.WriteString("\n")
	}
	return b.String()
}
