package executor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// ReadyBackoff is the default polling schedule of WaitReady, about two
// minutes in total.
var ReadyBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   1.5,
	Jitter:   0.1,
	Steps:    20,
	Cap:      10 * time.Second,
}

// WaitReady polls the version command until the DAS answers and returns
// the reported version. Refused connections and busy replies keep polling;
// any other failure stops immediately.
func (e *Engine) WaitReady(ctx context.Context, desc *server.Descriptor, backoff wait.Backoff) (string, error) {
	log := e.log.With(zap.String("server", desc.GetName()))

	var version string
	var last error
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		cmd, err := command.New("version", nil)
		if err != nil {
			return false, err
		}
		res, err := Submit[string](e, desc, cmd, WithContext(ctx), WithTimeout(0)).Get(ctx)
		if err == nil {
			version = res.Value
			return true, nil
		}
		last = err
		switch runner.CodeOf(err) {
		case runner.CodeConnectionFailed, runner.CodeServerBusy:
			log.Debug("Server is not ready yet", zap.Error(err))
			return false, nil
		default:
			return false, err
		}
	})
	if err == nil {
		return version, nil
	}
	if wait.Interrupted(err) {
		if ctx.Err() != nil {
			return "", runner.Errorf(runner.CodeCancelled, ctx.Err(), "version", desc.GetName())
		}
		if last == nil {
			last = errors.New("no attempt was made")
		}
		return "", runner.Wrap(err, "server %s did not become ready: %v", desc.GetName(), last)
	}
	return "", err
}
