// Package runner defines the contract shared by the transports that execute
// administration commands, together with their results and failure taxonomy.
package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Runner executes exactly one administration command against one server.
// A runner is not reused across commands.
type Runner interface {
	// Name returns the runner's identifier, e.g. "http" or "rest/property".
	Name() string

	// Run executes the command and returns its value: a string,
	// map[string]string, []string, or *Process.
	Run(ctx context.Context) (any, error)
}

// Result holds the outcome of a submitted command.
type Result[T any] struct {
	// ID identifies the task that produced the result.
	ID string

	// Value is the command output; zero when State is StateFailed.
	Value T

	// State is StateCompleted or StateFailed once the result is populated.
	State State

	// Err is the failure cause when State is StateFailed.
	Err error

	// Attempts counts runner invocations, 2 when a busy server caused a retry.
	Attempts int

	// Duration is the wall time from the first attempt to completion.
	Duration time.Duration
}

// OK reports whether the command completed successfully.
func (r *Result[T]) OK() bool {
	return r.State == StateCompleted
}

// Convert asserts a runner value to T. A nil value yields T's zero value.
func Convert[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, Errorf(CodeIllegalState, nil,
			fmt.Sprintf("command produced %T, caller expected %T", v, zero))
	}
	return t, nil
}

// Format renders a runner value for display.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s=%s", k, val[k])
		}
		return b.String()
	case []string:
		return strings.Join(val, "\n")
	case *Process:
		return fmt.Sprintf("process %d: %s", val.Pid(), strings.Join(val.Args(), " "))
	default:
		return fmt.Sprintf("%v", val)
	}
}
