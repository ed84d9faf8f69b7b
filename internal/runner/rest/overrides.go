package rest

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/transport"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// NewProperty creates the runner for get and set.
//
// Property values in REST replies are URL-decoded twice. Releases differ in
// whether they encode once or twice, and decoding twice yields the right
// value for both unless the real value itself contains a valid escape
// sequence such as "%20".
func NewProperty(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("rest/"+command.RunnerProperty, desc, cmd, opts...)
	r.decode = func(rep *Report) (any, error) {
		out := runner.KeyValues(lines(rep))
		for k, v := range out {
			out[k] = DecodeValue(v)
		}
		return out, nil
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

// DecodeValue URL-decodes v twice. A step that fails keeps its input.
func DecodeValue(v string) string {
	for i := 0; i < 2; i++ {
		d, err := url.QueryUnescape(v)
		if err != nil {
			break
		}
		v = d
	}
	return v
}

// NewDeploy creates the runner for deploy and redeploy. With upload=true the
// archive is streamed to the DAS instead of being referenced by path.
func NewDeploy(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("rest/"+command.RunnerDeploy, desc, cmd, opts...)
	r.decode = func(rep *Report) (any, error) {
		return rep.Message, nil
	}
	upload, err := cmd.Bool("upload", false)
	if err != nil {
		return nil, err
	}
	if upload {
		r.upload = "path"
	}
	return &deployRunner{Runner: r}, nil
}

type deployRunner struct {
	*Runner
}

func (r *deployRunner) Run(ctx context.Context) (any, error) {
	switch r.cmd.Name {
	case "deploy", "redeploy":
	default:
		return nil, runner.Errorf(runner.CodeIllegalCommandInstance, nil, r.name, r.cmd.Name)
	}
	return r.Runner.Run(ctx)
}

// NewRestart creates the runner for restart-domain and stop-domain. A
// connection dropped after the request was accepted counts as success.
func NewRestart(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("rest/"+command.RunnerRestart, desc, cmd, opts...)
	r.decode = func(rep *Report) (any, error) {
		return rep.Message, nil
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
