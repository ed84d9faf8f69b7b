package asadmin

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/transport"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// valueSuffix marks location attributes such as Base-Root_value.
const valueSuffix = "_value"

// NewProperty creates the runner for get and set. Both return the affected
// properties as a map.
func NewProperty(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("http/"+command.RunnerProperty, desc, cmd, opts...)
	r.decode = func(m *Manifest) (any, error) {
		return runner.KeyValues(lines(m)), nil
	}
	return &propertyRunner{Runner: r}, nil
}

type propertyRunner struct {
	*Runner
}

func (r *propertyRunner) Run(ctx context.Context) (any, error) {
	switch r.cmd.Name {
	case "get", "set":
	default:
		return nil, runner.Errorf(runner.CodeIllegalCommandInstance, nil, r.name, r.cmd.Name)
	}
	return r.Runner.Run(ctx)
}

// NewLocation creates the runner for location. The reply carries the
// directories as main attributes named <Key>_value.
func NewLocation(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("http/"+command.RunnerLocation, desc, cmd, opts...)
	r.decode = func(m *Manifest) (any, error) {
		out := make(map[string]string)
		for k, v := range m.Main {
			if key, ok := strings.CutSuffix(k, valueSuffix); ok {
				out[key] = v
			}
		}
		return out, nil
	}
	return r, nil
}

// NewRestart creates the runner for restart-domain and stop-domain. The DAS
// may drop the connection once it has accepted the request; that counts as
// success.
func NewRestart(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("http/"+command.RunnerRestart, desc, cmd, opts...)
	r.decode = func(m *Manifest) (any, error) {
		return m.Message(), nil
	}
	return &restartRunner{Runner: r}, nil
}

type restartRunner struct {
	*Runner
}

func (r *restartRunner) Run(ctx context.Context) (any, error) {
	v, err := r.Runner.Run(ctx)
	if err != nil && runner.CodeOf(err) == runner.CodeConnectionFailed && transport.IsConnectionDrop(err) {
		logger.FromContext(ctx).Info("Connection closed by server after request",
			zap.String("command", r.cmd.Name),
			zap.String("server", r.desc.GetName()))
		return r.cmd.Name + " accepted by " + r.desc.GetName(), nil
	}
	return v, err
}
