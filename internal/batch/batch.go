// Package batch defines YAML batch files: an ordered list of administration
// commands run against one server.
package batch

import (
	"fmt"
	"time"

	"github.com/eugenetaranov/dasctl/internal/command"
)

// Batch is a parsed batch file.
type Batch struct {
	// Path is the file the batch was loaded from.
	Path string

	// Name is an optional description.
	Name string

	// Server names the configured server the steps target. The CLI
	// --server flag overrides it.
	Server string

	// Vars are available to every step through {{ var }}.
	Vars map[string]any

	// Steps run in order.
	Steps []*Step
}

// Step is one administration command.
type Step struct {
	// Name is a description of the step.
	Name string

	// Kind is the registered command kind.
	Kind string

	// Params are the command parameters before interpolation.
	Params map[string]any

	// Timeout bounds the wait for the result. Zero uses the engine default.
	Timeout time.Duration

	// IgnoreErrors continues the batch when the step fails.
	IgnoreErrors bool

	// Retryable overrides the kind's automatic retry on a busy server.
	Retryable *bool

	// Wait polls the server after the step until it answers.
	Wait bool
}

// String returns the step name, falling back to the kind.
func (s *Step) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind
}

// Command interpolates the step parameters with vars and builds the command.
func (s *Step) Command(vars map[string]any) (*command.Command, error) {
	params, err := Interpolate(s.Params, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to interpolate parameters: %w", err)
	}
	cmd, err := command.New(s.Kind, params)
	if err != nil {
		return nil, err
	}
	if s.Retryable != nil {
		cmd.Retryable = *s.Retryable
	}
	return cmd, nil
}

// Validate checks that the batch can run.
func (b *Batch) Validate() error {
	if len(b.Steps) == 0 {
		return fmt.Errorf("batch has no steps")
	}
	for i, s := range b.Steps {
		if err := ResolveKind(s); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("step %d: timeout must not be negative", i+1)
		}
	}
	return nil
}
