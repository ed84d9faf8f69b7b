package batch

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// varPattern matches {{ variable }} syntax.
var varPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Scope returns the variables visible to steps: vars plus env.* from the
// process environment.
func Scope(vars map[string]any) map[string]any {
	scope := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		scope[k] = v
	}
	scope["env"] = envMap()
	return scope
}

// Interpolate recursively replaces {{ var }} references in params.
// A string that is a single reference keeps the variable's type.
func Interpolate(params map[string]any, vars map[string]any) (map[string]any, error) {
	scope := Scope(vars)
	result := make(map[string]any, len(params))
	for k, v := range params {
		interpolated, err := interpolateValue(v, scope)
		if err != nil {
			return nil, fmt.Errorf("parameter '%s': %w", k, err)
		}
		result[k] = interpolated
	}
	return result, nil
}

func interpolateValue(v any, scope map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return interpolateString(val, scope)

	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			interpolated, err := interpolateValue(item, scope)
			if err != nil {
				return nil, err
			}
			result[i] = interpolated
		}
		return result, nil

	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			interpolated, err := interpolateValue(item, scope)
			if err != nil {
				return nil, err
			}
			result[k] = interpolated
		}
		return result, nil

	default:
		return v, nil
	}
}

func interpolateString(s string, scope map[string]any) (any, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if !strings.Contains(inner, "{{") {
			return resolveVariable(inner, scope)
		}
	}

	var firstErr error
	result := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := varPattern.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		val, err := resolveVariable(inner[1], scope)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		if val == nil {
			return ""
		}
		return fmt.Sprintf("%v", val)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// resolveVariable resolves "name", "a.b.c" or "name | filter(arg)".
func resolveVariable(expr string, scope map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)
	if idx := strings.Index(expr, "|"); idx > 0 {
		name := strings.TrimSpace(expr[:idx])
		filter := strings.TrimSpace(expr[idx+1:])
		return applyFilter(lookupVariable(name, scope), filter)
	}
	val := lookupVariable(expr, scope)
	if val == nil {
		return nil, fmt.Errorf("undefined variable '%s'", expr)
	}
	return val, nil
}

func lookupVariable(name string, scope map[string]any) any {
	if val, ok := scope[name]; ok {
		return val
	}
	if !strings.Contains(name, ".") {
		return nil
	}

	var current any = scope
	for _, part := range strings.Split(name, ".") {
		switch c := current.(type) {
		case map[string]any:
			current = c[part]
		case map[string]string:
			v, ok := c[part]
			if !ok {
				return nil
			}
			current = v
		default:
			return nil
		}
		if current == nil {
			return nil
		}
	}
	return current
}

func applyFilter(val any, filter string) (any, error) {
	name := filter
	var arg string
	if idx := strings.Index(filter, "("); idx > 0 {
		name = strings.TrimSpace(filter[:idx])
		argPart := filter[idx+1:]
		if end := strings.LastIndex(argPart, ")"); end >= 0 {
			arg = strings.Trim(strings.TrimSpace(argPart[:end]), "'\"")
		}
	}

	switch name {
	case "default":
		if val == nil || val == "" {
			return arg, nil
		}
		return val, nil

	case "lower":
		if s, ok := val.(string); ok {
			return strings.ToLower(s), nil
		}
		return val, nil

	case "upper":
		if s, ok := val.(string); ok {
			return strings.ToUpper(s), nil
		}
		return val, nil

	case "trim":
		if s, ok := val.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return val, nil

	case "bool":
		return isTruthy(val), nil

	case "string":
		if val == nil {
			return "", nil
		}
		return fmt.Sprintf("%v", val), nil

	case "join":
		sep := arg
		if sep == "" {
			sep = ","
		}
		switch v := val.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			return strings.Join(parts, sep), nil
		case []string:
			return strings.Join(v, sep), nil
		}
		return val, nil

	default:
		return nil, fmt.Errorf("unknown filter: %s", name)
	}
}

// isTruthy returns whether a value is considered truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}

	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "False" && val != "no"
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// envMap returns environment variables as a map.
func envMap() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		if idx := strings.Index(e, "="); idx > 0 {
			env[e[:idx]] = e[idx+1:]
		}
	}
	return env
}
