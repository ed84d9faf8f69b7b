package command

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

// QueryBuilder encodes a command's parameters into a query string.
type QueryBuilder func(c *Command) (string, error)

// Spec describes a command kind.
type Spec struct {
	// Kind is the unique tag, usually equal to Command.
	Kind string

	// Command is the wire command name.
	Command string

	// Description is a one-line summary shown by the CLI.
	Description string

	// Result is the shape of the value the command produces.
	Result ResultKind

	// Local marks commands run through the local administration CLI.
	Local bool

	// Mutating commands change server state.
	Mutating bool

	// NotRetryable disables the automatic resubmission after a busy reply.
	NotRetryable bool

	// HTTP and REST are the per-transport overrides.
	HTTP Override
	REST Override

	// Required lists parameters that must be present and non-empty.
	Required []string

	// Operand names the parameter sent as the primary DEFAULT operand.
	Operand string

	// Renames maps parameter names to their wire names.
	Renames map[string]string

	// Query builds the query string; nil uses GenericQuery.
	Query QueryBuilder
}

func (s Spec) build(params Params) (*Command, error) {
	c := &Command{
		Kind:      s.Kind,
		Name:      s.Command,
		Params:    copyParams(params),
		Retryable: !s.NotRetryable,
		Result:    s.Result,
		Local:     s.Local,
		Mutating:  s.Mutating,
		operand:   s.Operand,
		renames:   s.Renames,
		query:     s.Query,
	}
	if c.Name == "" {
		c.Name = s.Kind
	}
	if !s.HTTP.IsZero() || !s.REST.IsZero() {
		c.Overrides = make(map[Transport]Override, 2)
		if !s.HTTP.IsZero() {
			c.Overrides[TransportHTTP] = s.HTTP
		}
		if !s.REST.IsZero() {
			c.Overrides[TransportREST] = s.REST
		}
	}
	for _, key := range s.Required {
		if getString(c.Params, key, "") == "" {
			return nil, runner.Errorf(runner.CodeIllegalNullValue, nil, key, c.Name)
		}
	}
	return c, nil
}

// registry holds all registered command kinds.
var (
	registry   = make(map[string]Spec)
	registryMu sync.RWMutex
)

// Register adds a command kind to the registry.
// It panics if the kind is already registered.
func Register(s Spec) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if s.Kind == "" {
		panic("command kind must not be empty")
	}
	if _, exists := registry[s.Kind]; exists {
		panic(fmt.Sprintf("command %q is already registered", s.Kind))
	}
	registry[s.Kind] = s
}

// Lookup retrieves a command kind by tag.
func Lookup(kind string) (Spec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[kind]
	return s, ok
}

// Kinds returns the sorted tags of all registered command kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
