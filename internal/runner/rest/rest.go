// Package rest implements runners for the REST command interface: read-only
// commands go out as GET query strings, mutating ones as multipart POST, and
// replies come back as JSON action reports.
package rest

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/transport"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// PathPrefix is the URL path of the REST command interface.
const PathPrefix = "/command/"

// RequestedBy is sent in X-Requested-By; the DAS rejects POSTs without it.
const RequestedBy = "dasctl"

// Runner executes one command over the REST interface.
type Runner struct {
	desc   *server.Descriptor
	cmd    *command.Command
	client *transport.Client
	name   string

	// upload names the parameter streamed as a file part, if any.
	upload string

	decode func(rep *Report) (any, error)
}

// Ensure Runner implements runner.Runner.
var _ runner.Runner = (*Runner)(nil)

func newRunner(name string, desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) *Runner {
	opts = append([]transport.Option{
		transport.WithHeader("Accept", "application/json"),
		transport.WithHeader("X-Requested-By", RequestedBy),
	}, opts...)
	return &Runner{
		desc:   desc,
		cmd:    cmd,
		client: transport.New(desc, cmd, opts...),
		name:   name,
	}
}

// New creates the generic REST runner.
func New(desc *server.Descriptor, cmd *command.Command, opts ...transport.Option) (runner.Runner, error) {
	r := newRunner("rest", desc, cmd, opts...)
	r.decode = r.decodeByKind
	return r, nil
}

// Name returns the runner identifier.
func (r *Runner) Name() string {
	return r.name
}

// Run sends the command and decodes the action report.
func (r *Runner) Run(ctx context.Context) (any, error) {
	if r.cmd.Local || r.cmd.Result == command.ResultProcess {
		return nil, runner.Errorf(runner.CodeIllegalCommandInstance, nil, r.name, r.cmd.Name)
	}
	rep, err := r.exchange(ctx)
	if err != nil {
		return nil, err
	}
	return r.decode(rep)
}

func (r *Runner) exchange(ctx context.Context) (*Report, error) {
	path := PathPrefix + r.cmd.WireName(command.TransportREST)

	var resp *transport.Response
	if r.cmd.Mutating {
		body, err := r.multipartBody()
		if err != nil {
			return nil, err
		}
		resp, err = r.client.Do(ctx, http.MethodPost, path, "", body)
		if err != nil {
			return nil, err
		}
	} else {
		query, err := r.cmd.Query()
		if err != nil {
			return nil, err
		}
		resp, err = r.client.Get(ctx, path, query)
		if err != nil {
			return nil, err
		}
	}

	rep, err := ParseReport(resp.Body)
	if err != nil {
		if !resp.OK() {
			return nil, runner.Errorf(runner.CodeCommandFailed, nil, r.cmd.Name, r.desc.GetName(),
				fmt.Sprintf("HTTP %d %s", resp.Status, strings.TrimSpace(string(resp.Body))))
		}
		return nil, runner.Errorf(runner.CodeHTTPResponseEncoding, err, r.cmd.Name, r.desc.GetName())
	}

	switch rep.Exit() {
	case ExitFailure:
		if transport.ContainsBusyPhrase(rep.Message) {
			return nil, r.client.Busy()
		}
		return nil, runner.Errorf(runner.CodeCommandFailed, nil, r.cmd.Name, r.desc.GetName(), rep.Message)
	case ExitWarning:
		logger.FromContext(ctx).Warn("Command completed with warning",
			zap.String("command", r.cmd.Name),
			zap.String("server", r.desc.GetName()),
			zap.String("message", rep.Message))
	}
	return rep, nil
}

// multipartBody streams the wire parameters as form fields. The upload
// parameter, when set, is sent as a file part with the file's content.
func (r *Runner) multipartBody() (transport.Body, error) {
	pairs, err := command.QueryPairs(r.cmd)
	if err != nil {
		return nil, err
	}
	var uploadPath string
	if r.upload != "" {
		uploadPath = r.cmd.Param(r.upload)
		if _, err := os.Stat(uploadPath); err != nil {
			return nil, runner.Wrap(err, "cannot upload %s for command %s", uploadPath, r.cmd.Name)
		}
	}

	return func() (io.Reader, string, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeParts(mw, pairs, uploadPath))
		}()
		return pr, mw.FormDataContentType(), nil
	}, nil
}

func writeParts(mw *multipart.Writer, pairs []command.Pair, uploadPath string) error {
	for _, p := range pairs {
		if uploadPath != "" && p.Key == command.DefaultParam {
			if err := writeFile(mw, p.Key, uploadPath); err != nil {
				return err
			}
			continue
		}
		if err := mw.WriteField(p.Key, p.Value); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to stream %s: %w", path, err)
	}
	return nil
}

func (r *Runner) decodeByKind(rep *Report) (any, error) {
	switch r.cmd.Result {
	case command.ResultMap:
		out := runner.KeyValues(lines(rep))
		for k, v := range rep.Properties() {
			out[k] = v
		}
		return out, nil
	case command.ResultList:
		return runner.FirstFields(lines(rep)), nil
	default:
		return rep.Message, nil
	}
}

// lines returns the part messages, or the main message lines when the
// report has no parts.
func lines(rep *Report) []string {
	msgs := rep.Messages()
	if len(msgs) == 0 {
		return runner.MessageLines(rep.Message)
	}
	var out []string
	for _, m := range msgs {
		out = append(out, runner.MessageLines(m)...)
	}
	return out
}
