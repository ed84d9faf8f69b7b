// Package command defines administration commands: an immutable kind tag
// plus a flat parameter bag, with per-transport runner overrides.
package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

// Transport is a way of delivering a command to a server.
type Transport int

const (
	// TransportHTTP is the legacy __asadmin interface.
	TransportHTTP Transport = iota + 1
	// TransportREST is the REST command interface.
	TransportREST
	// TransportLocal spawns the administration CLI on this machine.
	TransportLocal
)

// String returns the transport name.
func (t Transport) String() string {
	switch t {
	case TransportHTTP:
		return "http"
	case TransportREST:
		return "rest"
	case TransportLocal:
		return "local"
	default:
		return fmt.Sprintf("Transport(%d)", int(t))
	}
}

// ResultKind is the shape of the value a command produces.
type ResultKind int

const (
	// ResultString is a plain message.
	ResultString ResultKind = iota
	// ResultMap is a set of key/value properties.
	ResultMap
	// ResultList is an ordered list of names.
	ResultList
	// ResultProcess is a handle to a spawned process.
	ResultProcess
)

// String returns the result kind name.
func (k ResultKind) String() string {
	switch k {
	case ResultString:
		return "string"
	case ResultMap:
		return "map"
	case ResultList:
		return "list"
	case ResultProcess:
		return "process"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Override selects a dedicated runner and/or an alternate wire command name
// for one transport. Empty fields mean "use the transport default".
type Override struct {
	// Runner names a runner registered for the transport.
	Runner string

	// Command replaces the wire command name.
	Command string
}

// IsZero reports whether the override changes nothing.
func (o Override) IsZero() bool {
	return o.Runner == "" && o.Command == ""
}

// Params is the flat parameter bag of a command. Values are strings, bools,
// ints, or lists of those.
type Params map[string]any

// Command describes one administration operation. It is immutable after
// construction except for the retry flag a runner raises when the server
// reports it is busy.
type Command struct {
	// Kind is the registered kind tag, e.g. "deploy".
	Kind string

	// Name is the wire command name.
	Name string

	// Params holds the operation-specific parameters.
	Params Params

	// Retryable permits one automatic resubmission after a busy response.
	Retryable bool

	// Result is the shape of the value the command produces.
	Result ResultKind

	// Local marks commands executed by spawning the administration CLI.
	Local bool

	// Mutating commands change server state; REST sends them as POST.
	Mutating bool

	// Overrides holds per-transport runner overrides.
	Overrides map[Transport]Override

	operand string
	renames map[string]string
	query   QueryBuilder
	retry   atomic.Bool
}

// New creates a command of a registered kind.
func New(kind string, params Params) (*Command, error) {
	spec, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown command '%s' (available: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return spec.build(params)
}

// MustNew is New for statically known kinds. It panics on error.
func MustNew(kind string, params Params) *Command {
	c, err := New(kind, params)
	if err != nil {
		panic(err)
	}
	return c
}

// Custom creates an unregistered remote command. The query is built from the
// parameters with the generic builder, and the result is a message string.
func Custom(name string, params Params) *Command {
	return &Command{
		Kind:      name,
		Name:      name,
		Params:    copyParams(params),
		Retryable: true,
		Result:    ResultString,
		query:     GenericQuery,
	}
}

// Override returns the override declared for transport, if any.
func (c *Command) Override(t Transport) (Override, bool) {
	o, ok := c.Overrides[t]
	if !ok || o.IsZero() {
		return Override{}, false
	}
	return o, true
}

// WireName returns the command name sent over transport.
func (c *Command) WireName(t Transport) string {
	if o, ok := c.Override(t); ok && o.Command != "" {
		return o.Command
	}
	return c.Name
}

// Query builds the encoded query string for the command.
func (c *Command) Query() (string, error) {
	if c.query == nil {
		return GenericQuery(c)
	}
	return c.query(c)
}

// RequestRetry marks the command for one resubmission.
func (c *Command) RequestRetry() {
	c.retry.Store(true)
}

// RetryRequested reports whether a runner asked for resubmission.
func (c *Command) RetryRequested() bool {
	return c.retry.Load()
}

// ClearRetry resets the retry flag before a resubmission.
func (c *Command) ClearRetry() {
	c.retry.Store(false)
}

// String returns a short human-readable description of the command.
func (c *Command) String() string {
	if len(c.Params) == 0 {
		return c.Name
	}
	keys := sortedKeys(c.Params)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if isSecret(k) {
			parts = append(parts, k+"=****")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, c.Params[k]))
		if len(parts) >= 3 && len(keys) > 3 {
			parts = append(parts, "...")
			break
		}
	}
	return fmt.Sprintf("%s {%s}", c.Name, strings.Join(parts, ", "))
}

// Helper functions for parameter extraction

// Param returns a string parameter, or "" when absent.
func (c *Command) Param(key string) string {
	return getString(c.Params, key, "")
}

// RequireString returns a non-empty string parameter.
func (c *Command) RequireString(key string) (string, error) {
	s := getString(c.Params, key, "")
	if s == "" {
		return "", runner.Errorf(runner.CodeIllegalNullValue, nil, key, c.Name)
	}
	return s, nil
}

// Bool returns a boolean parameter. Strings "true"/"false" (any case) are
// accepted; anything else is an InvalidBooleanConstant error.
func (c *Command) Bool(key string, def bool) (bool, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return def, runner.Errorf(runner.CodeInvalidBooleanConstant, nil, key, c.Name, b)
	default:
		return def, runner.Errorf(runner.CodeInvalidBooleanConstant, nil, key, c.Name, fmt.Sprint(v))
	}
}

// Strings returns a list parameter. A single string is split on commas.
func (c *Command) Strings(key string) []string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return nil
	}
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if l == "" {
			return nil
		}
		parts := strings.Split(l, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return []string{fmt.Sprint(v)}
	}
}

// StringMap returns a map parameter such as properties or env.
func (c *Command) StringMap(key string) map[string]string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return nil
	}
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, x := range m {
			out[k] = x
		}
	case map[string]any:
		for k, x := range m {
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

func getString(params Params, key, defaultValue string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return defaultValue
	}
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprint(v)
	}
}

func copyParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func sortedKeys(p Params) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isSecret(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "secret")
}
