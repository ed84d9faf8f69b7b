// Package executor selects the runner for each administration command, runs
// commands asynchronously behind futures, and drives batch files.
package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/eugenetaranov/dasctl/internal/batch"
	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/output"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/local"
	"github.com/eugenetaranov/dasctl/internal/server"
	"github.com/eugenetaranov/dasctl/internal/verifier"
)

// BatchRunner runs batch files against one server.
type BatchRunner struct {
	// Engine executes the commands.
	Engine *Engine

	// Output handles formatted output.
	Output *output.Output

	// DryRun only shows the commands without sending them.
	DryRun bool

	// Backoff paces WaitReady for steps with wait set. The zero value uses
	// ReadyBackoff.
	Backoff wait.Backoff
}

// NewBatchRunner creates a batch runner writing to stdout.
func NewBatchRunner(e *Engine) *BatchRunner {
	return &BatchRunner{
		Engine: e,
		Output: output.New(os.Stdout),
	}
}

// RunResult holds the result of a batch run.
type RunResult struct {
	// Success is true if no step failed, ignored failures aside.
	Success bool

	// Stats holds execution statistics.
	Stats *Stats
}

// Stats holds batch statistics.
type Stats struct {
	Steps     int
	OK        int
	Changed   int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the total execution time.
func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// GetOK returns the OK count (implements output.Stats).
func (s *Stats) GetOK() int { return s.OK }

// GetChanged returns the Changed count (implements output.Stats).
func (s *Stats) GetChanged() int { return s.Changed }

// GetFailed returns the Failed count (implements output.Stats).
func (s *Stats) GetFailed() int { return s.Failed }

// GetSkipped returns the Skipped count (implements output.Stats).
func (s *Stats) GetSkipped() int { return s.Skipped }

// GetDuration returns the duration (implements output.Stats).
func (s *Stats) GetDuration() time.Duration { return s.Duration() }

// Run executes the steps of b in order against desc. It stops at the first
// failed step unless the step ignores errors.
func (r *BatchRunner) Run(ctx context.Context, desc *server.Descriptor, b *batch.Batch) (*RunResult, error) {
	stats := &Stats{StartTime: time.Now()}
	result := &RunResult{Success: true, Stats: stats}

	name := b.Name
	if name == "" {
		name = b.Path
	}
	r.Output.BatchStart(name, desc.GetName())

	for _, step := range b.Steps {
		if ctx.Err() != nil {
			result.Success = false
			r.Output.Error("Batch interrupted: %v", ctx.Err())
			break
		}
		stats.Steps++

		status, err := r.runStep(ctx, desc, b, step)
		if err != nil {
			stats.Failed++
			if step.IgnoreErrors {
				r.Output.StepResult(step.String(), "failed (ignored)", err.Error())
				continue
			}
			r.Output.StepResult(step.String(), "failed", err.Error())
			result.Success = false
			break
		}

		switch status {
		case "ok":
			stats.OK++
		case "changed":
			stats.Changed++
		case "skipped":
			stats.Skipped++
		}
	}

	stats.EndTime = time.Now()
	r.Output.BatchEnd(stats)
	return result, nil
}

// runStep executes a single step and prints its result on success.
func (r *BatchRunner) runStep(ctx context.Context, desc *server.Descriptor, b *batch.Batch, step *batch.Step) (string, error) {
	cmd, err := step.Command(b.Vars)
	if err != nil {
		return "", err
	}

	if r.DryRun {
		r.Output.StepResult(step.String(), "skipped (dry run)", cmd.String())
		return "skipped", nil
	}

	opts := []Option{WithContext(ctx), WithListeners(r.Output)}
	if step.Timeout > 0 {
		opts = append(opts, WithTimeout(step.Timeout))
	}
	res, err := Submit[any](r.Engine, desc, cmd, opts...).Get(ctx)
	if err != nil {
		return "", err
	}

	message := runner.Format(res.Value)
	if proc, ok := res.Value.(*runner.Process); ok {
		vctx := ctx
		if step.Timeout > 0 {
			var cancel context.CancelFunc
			vctx, cancel = context.WithTimeout(ctx, step.Timeout)
			defer cancel()
		}
		lines, err := VerifyProcess(vctx, desc, cmd, proc)
		if err != nil {
			return "", err
		}
		message = strings.Join(lines, "\n")
	}

	if step.Wait {
		backoff := r.Backoff
		if backoff.Steps == 0 {
			backoff = ReadyBackoff
		}
		version, err := r.Engine.WaitReady(ctx, desc, backoff)
		if err != nil {
			return "", err
		}
		message = fmt.Sprintf("%s\nserver is ready, version %s", message, version)
	}

	status := "ok"
	if cmd.Mutating || cmd.Local {
		status = "changed"
	}
	r.Output.StepResult(step.String(), status, message)
	return status, nil
}

// VerifyProcess reads the output of a local administration process until it
// exits and checks it against the expected messages of cmd. It returns the
// captured lines. A line matching an error message fails the command and
// becomes the failure message. A non-zero exit without the expected success
// message also fails it.
func VerifyProcess(ctx context.Context, desc *server.Descriptor, cmd *command.Command, proc *runner.Process) ([]string, error) {
	log := logger.FromContext(ctx).With(zap.String("command", cmd.Name), zap.Int("pid", proc.Pid()))
	defer func() { _ = proc.Close() }()

	v := verifier.New(local.StartupContent(desc, cmd), proc.Stdin())
	verdict, err := v.Verify(ctx, proc.Output())
	lines, _ := v.Lines()
	if err != nil {
		if terr := proc.Terminate(); terr != nil {
			log.Warn("Failed to terminate process", zap.Error(terr))
		}
		return lines, err
	}

	werr := proc.Wait()
	log.Debug("Process exited", zap.Int("exit_code", proc.ExitCode()), zap.String("verdict", verdict.String()))

	switch {
	case verdict == verifier.Error:
		return lines, runner.Errorf(runner.CodeCommandFailed, nil, cmd.Name, desc.GetName(), v.ErrorLine())
	case verdict == verifier.Unknown && werr != nil:
		return lines, runner.Errorf(runner.CodeCommandFailed, werr, cmd.Name, desc.GetName(), lastLine(lines))
	}
	return lines, nil
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] != "" {
			return lines[i]
		}
	}
	return "no output"
}
