package executor

import (
	"errors"
	"fmt"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/asadmin"
	"github.com/eugenetaranov/dasctl/internal/runner/local"
	"github.com/eugenetaranov/dasctl/internal/runner/rest"
	"github.com/eugenetaranov/dasctl/internal/runner/transport"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// Constructor creates the runner for one command against one server.
type Constructor func(desc *server.Descriptor, cmd *command.Command) (runner.Runner, error)

// Table maps transports and override names to runner constructors.
// It is built once by NewTable and only read afterwards, so lookups are
// safe from any goroutine.
type Table struct {
	defaults  map[command.Transport]Constructor
	overrides map[command.Transport]map[string]Constructor
}

// TableOption configures a Table under construction.
type TableOption func(*Table)

// WithDefault replaces the default constructor of a transport.
func WithDefault(t command.Transport, ctor Constructor) TableOption {
	return func(tb *Table) {
		tb.defaults[t] = ctor
	}
}

// WithOverride registers a named override constructor for a transport.
func WithOverride(t command.Transport, name string, ctor Constructor) TableOption {
	return func(tb *Table) {
		if tb.overrides[t] == nil {
			tb.overrides[t] = make(map[string]Constructor)
		}
		tb.overrides[t][name] = ctor
	}
}

// NewTable builds the runner table. Remote runners receive topts.
func NewTable(topts []transport.Option, opts ...TableOption) *Table {
	remote := func(f func(*server.Descriptor, *command.Command, ...transport.Option) (runner.Runner, error)) Constructor {
		return func(desc *server.Descriptor, cmd *command.Command) (runner.Runner, error) {
			return f(desc, cmd, topts...)
		}
	}

	t := &Table{
		defaults: map[command.Transport]Constructor{
			command.TransportHTTP: remote(asadmin.New),
			command.TransportREST: remote(rest.New),
			command.TransportLocal: func(desc *server.Descriptor, cmd *command.Command) (runner.Runner, error) {
				return local.New(desc, cmd)
			},
		},
		overrides: map[command.Transport]map[string]Constructor{
			command.TransportHTTP: {
				command.RunnerProperty: remote(asadmin.NewProperty),
				command.RunnerLocation: remote(asadmin.NewLocation),
				command.RunnerRestart:  remote(asadmin.NewRestart),
			},
			command.TransportREST: {
				command.RunnerProperty: remote(rest.NewProperty),
				command.RunnerDeploy:   remote(rest.NewDeploy),
				command.RunnerRestart:  remote(rest.NewRestart),
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TransportFor selects the transport for cmd on desc. Local commands always
// use the local transport. Otherwise the declared administration interface
// decides, or the server version when none is declared.
func TransportFor(desc *server.Descriptor, cmd *command.Command) (command.Transport, error) {
	if cmd.Local {
		return command.TransportLocal, nil
	}

	v := desc.Version
	if v != server.VersionUnknown {
		if !v.Known() {
			return 0, runner.Errorf(runner.CodeUnknownVersion, nil, int(v))
		}
		if !v.Supported() {
			return 0, runner.Errorf(runner.CodeUnsupportedVersion, nil, v, server.MinimumSupported)
		}
	}

	switch desc.AdminInterface {
	case server.InterfaceHTTP:
		return command.TransportHTTP, nil
	case server.InterfaceREST:
		return command.TransportREST, nil
	case server.InterfaceUnset:
		switch v.AdminInterface() {
		case server.InterfaceHTTP:
			return command.TransportHTTP, nil
		case server.InterfaceREST:
			return command.TransportREST, nil
		default:
			return 0, runner.Errorf(runner.CodeUnknownVersion, nil, v)
		}
	default:
		return 0, runner.Errorf(runner.CodeUnknownAdminInterface, nil, desc.AdminInterface)
	}
}

// Resolve returns the constructor for cmd on desc and the name of the
// runner it builds. A command override for the selected transport wins
// over the transport default.
func (t *Table) Resolve(desc *server.Descriptor, cmd *command.Command) (Constructor, string, error) {
	tr, err := TransportFor(desc, cmd)
	if err != nil {
		return nil, "", err
	}

	if o, ok := cmd.Overrides[tr]; ok && o.Runner != "" {
		if ctor, ok := t.overrides[tr][o.Runner]; ok {
			return ctor, tr.String() + "/" + o.Runner, nil
		}
	}

	ctor, ok := t.defaults[tr]
	if !ok {
		return nil, tr.String(), runner.Errorf(runner.CodeRunnerInit,
			errors.New("no runner registered for transport"), tr, cmd.Name)
	}
	return ctor, tr.String(), nil
}

// Build resolves and constructs the runner for cmd. Constructor errors and
// panics surface as RunnerInit errors.
func (t *Table) Build(desc *server.Descriptor, cmd *command.Command) (r runner.Runner, err error) {
	ctor, name, err := t.Resolve(desc, cmd)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			r = nil
			err = runner.Errorf(runner.CodeRunnerInit, fmt.Errorf("panic: %v", p), name, cmd.Name)
		}
	}()

	r, err = ctor(desc, cmd)
	if err != nil {
		return nil, runner.Errorf(runner.CodeRunnerInit, err, name, cmd.Name)
	}
	if r == nil {
		return nil, runner.Errorf(runner.CodeRunnerInit, errors.New("constructor returned no runner"), name, cmd.Name)
	}
	return r, nil
}
