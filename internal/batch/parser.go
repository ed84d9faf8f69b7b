package batch

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/dasctl/internal/command"
)

// knownStepFields are step directives, not command kinds.
var knownStepFields = map[string]bool{
	"name":          true,
	"timeout":       true,
	"ignore_errors": true,
	"retryable":     true,
	"wait":          true,
}

// ParseFile parses a batch from a YAML file.
func ParseFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch %s: %w", path, err)
	}
	b.Path = path
	return b, nil
}

// Parse parses a batch from YAML data. The document is either a map with
// name, server, vars and steps, or a bare list of steps.
func Parse(data []byte) (*Batch, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid batch format: %w", err)
	}

	var raw map[string]any
	var steps []any
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		if err := node.Decode(&steps); err != nil {
			return nil, fmt.Errorf("invalid batch format: %w", err)
		}
	} else {
		if err := node.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid batch format: %w", err)
		}
		if s, ok := raw["steps"]; ok {
			list, ok := s.([]any)
			if !ok {
				return nil, fmt.Errorf("steps must be a list")
			}
			steps = list
		}
	}

	b := &Batch{Vars: make(map[string]any)}
	if v, ok := raw["name"].(string); ok {
		b.Name = v
	}
	if v, ok := raw["server"].(string); ok {
		b.Server = v
	}
	if v, ok := raw["vars"].(map[string]any); ok {
		b.Vars = v
	}

	for i, rawStep := range steps {
		stepMap, ok := rawStep.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %d: invalid step format", i+1)
		}
		step, err := parseStep(stepMap)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		b.Steps = append(b.Steps, step)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// parseStep parses a single step from a raw map.
func parseStep(raw map[string]any) (*Step, error) {
	step := &Step{Params: make(map[string]any)}

	if v, ok := raw["name"].(string); ok {
		step.Name = v
	}
	if v, ok := raw["ignore_errors"].(bool); ok {
		step.IgnoreErrors = v
	}
	if v, ok := raw["retryable"].(bool); ok {
		step.Retryable = &v
	}
	if v, ok := raw["wait"].(bool); ok {
		step.Wait = v
	}
	if v, ok := raw["timeout"]; ok {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		step.Timeout = d
	}

	// The command kind is the one key that is not a directive.
	for key, value := range raw {
		if knownStepFields[key] {
			continue
		}
		if step.Kind != "" {
			a, b := step.Kind, key
			if b < a {
				a, b = b, a
			}
			return nil, fmt.Errorf("multiple commands specified: %s and %s", a, b)
		}
		step.Kind = key

		switch params := value.(type) {
		case map[string]any:
			step.Params = params
		case nil:
		case string:
			step.Params = expandShorthand(key, params)
		default:
			step.Params = expandShorthand(key, fmt.Sprint(params))
		}
	}

	if step.Kind == "" {
		return nil, fmt.Errorf("no command specified")
	}
	return step, nil
}

// expandShorthand turns a short-form string into parameters. Kinds with an
// operand take the whole string as the operand; other kinds take
// space-separated key=value pairs.
func expandShorthand(kind, raw string) map[string]any {
	if spec, ok := command.Lookup(kind); ok && spec.Operand != "" {
		return map[string]any{spec.Operand: raw}
	}
	if !strings.Contains(raw, "=") {
		return map[string]any{command.DefaultParam: raw}
	}

	params := make(map[string]any)
	for _, part := range strings.Fields(raw) {
		if idx := strings.Index(part, "="); idx > 0 {
			params[part[:idx]] = strings.Trim(part[idx+1:], "\"'")
		}
	}
	return params
}

// parseDuration accepts "30s"-style strings and whole seconds.
func parseDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case int:
		return time.Duration(d) * time.Second, nil
	case string:
		if n, err := strconv.Atoi(d); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(d)
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}

// ResolveKind checks that the step's command kind is registered.
func ResolveKind(step *Step) error {
	if step.Kind == "" {
		return fmt.Errorf("no command specified")
	}
	if _, ok := command.Lookup(step.Kind); !ok {
		return fmt.Errorf("unknown command '%s' (available: %s)",
			step.Kind, strings.Join(command.Kinds(), ", "))
	}
	return nil
}
