// Package asadmin implements runners for the legacy __asadmin HTTP interface:
// commands go out as GET query strings and replies come back as manifests.
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

// PathPrefix is the URL path of the legacy command interface.
const PathPrefix = "/__asadmin/"

// UserAgent identifies the client to the DAS. Some releases only answer
// __asadmin requests from this agent, so it overrides any agent option.
const UserAgent = "hk2-agent"

// Runner executes one command over the __asadmin interface.
type Runner struct {
	desc   *server.Descriptor
	cmd    *command.Command
	client *transport.Client
	name   string

	// decode turns a successful manifest into the command value.
	decode func(m *Manifest) (any, error)
}

// Ensure Runner implements runner.Runner.
var _ runner.Runner = (*Runner)(nil)

func newRunner(name string, desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) *Runner {
	opts = append(opts[:len(opts):len(opts)], transport.WithUserAgent(UserAgent))
	return &Runner{
		desc:   desc,
		cmd:    cmd,
		client: transport.New(desc, cmd, opts...),
		name:   name,
	}
}

// New creates the generic __asadmin runner.
func New(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("http", desc, cmd, opts...)
	r.decode = r.decodeByKind
	return r, nil
}

// Name returns the runner identifier.
func (r *Runner) Name() string {
	return r.name
}

// Run sends the command and decodes the reply.
func (r *Runner) Run(ctx context.Context) (any, error) {
	if r.cmd.Local || r.cmd.Result == command.ResultProcess {
		return nil, runner.Errorf(runner.CodeIllegalCommandInstance, nil, r.name, r.cmd.Name)
	}
	m, err := r.exchange(ctx)
	if err != nil {
		return nil, err
	}
	return r.decode(m)
}

// exchange sends the request and returns the parsed manifest of a reply
// whose exit code is not FAILURE.
func (r *Runner) exchange(ctx context.Context) (*Manifest, error) {
	query, err := r.cmd.Query()
	if err != nil {
		return nil, err
	}
	wire := r.cmd.WireName(command.TransportHTTP)
	resp, err := r.client.Get(ctx, PathPrefix+wire, query)
	if err != nil {
		return nil, err
	}

	m, err := ParseManifest(resp.Body)
	if err != nil {
		if !resp.OK() {
			return nil, runner.Errorf(runner.CodeCommandFailed, nil, r.cmd.Name, r.desc.GetName(),
				strings.TrimSpace(string(resp.Body)))
		}
		return nil, runner.Errorf(runner.CodeHTTPResponseEncoding, err, r.cmd.Name, r.desc.GetName())
	}

	switch m.ExitCode() {
	case ExitFailure:
		if transport.ContainsBusyPhrase(m.Message()) {
			return nil, r.client.Busy()
		}
		return nil, runner.Errorf(runner.CodeCommandFailed, nil, r.cmd.Name, r.desc.GetName(), m.Message())
	case ExitWarning:
		logger.FromContext(ctx).Warn("Command completed with warning",
			zap.String("command", r.cmd.Name),
			zap.String("server", r.desc.GetName()),
			zap.String("message", m.Message()))
	}
	return m, nil
}

func (r *Runner) decodeByKind(m *Manifest) (any, error) {
	switch r.cmd.Result {
	case command.ResultMap:
		return runner.KeyValues(lines(m)), nil
	case command.ResultList:
		return runner.FirstFields(lines(m)), nil
	default:
		return m.Message(), nil
	}
}

// lines returns the child messages, or the main message lines when the
// reply has no children.
func lines(m *Manifest) []string {
	children := m.Children()
	if len(children) == 0 {
		return runner.MessageLines(m.Message())
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		msg := c.Message()
		if msg == "" {
			msg = c.Name
		}
		out = append(out, runner.MessageLines(msg)...)
	}
	return out
}
