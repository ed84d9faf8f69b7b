package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// Engine submits commands to executors and hands back futures.
type Engine struct {
	table    *Table
	executor Executor
	log      *zap.Logger
	timeout  time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDefaultExecutor replaces the engine's serial executor.
func WithDefaultExecutor(ex Executor) EngineOption {
	return func(e *Engine) {
		e.executor = ex
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithDefaultTimeout bounds Future.Get when a submission sets no timeout.
func WithDefaultTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// NewEngine creates an engine over table. Without WithDefaultExecutor all
// submissions share one serial executor, so they run in submission order.
func NewEngine(table *Table, opts ...EngineOption) *Engine {
	e := &Engine{table: table, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.executor == nil {
		e.executor = NewSerialExecutor()
	}
	return e
}

// Close shuts down the default executor after queued commands finish.
func (e *Engine) Close() {
	e.executor.Close()
}

// Table returns the runner table.
func (e *Engine) Table() *Table {
	return e.table
}

// Option configures one submission.
type Option func(*submission)

type submission struct {
	ctx       context.Context
	executor  Executor
	timeout   time.Duration
	listeners []runner.Listener
}

// WithContext sets the parent context of the task. Cancelling it cancels
// the command.
func WithContext(ctx context.Context) Option {
	return func(s *submission) {
		s.ctx = ctx
	}
}

// WithExecutor runs the command on ex instead of the engine default.
func WithExecutor(ex Executor) Option {
	return func(s *submission) {
		s.executor = ex
	}
}

// WithTimeout bounds Future.Get. Expiry does not stop the command.
func WithTimeout(d time.Duration) Option {
	return func(s *submission) {
		s.timeout = d
	}
}

// WithListeners registers listeners notified on every state change.
func WithListeners(ls ...runner.Listener) Option {
	return func(s *submission) {
		s.listeners = append(s.listeners, ls...)
	}
}

// Submit queues cmd for desc and returns a future for its value. T must
// match the command's result kind: string, map[string]string, []string or
// *runner.Process. Use any to accept every kind.
func Submit[T any](e *Engine, desc *server.Descriptor, cmd *command.Command, opts ...Option) *Future[T] {
	s := &submission{
		ctx:      context.Background(),
		executor: e.executor,
		timeout:  e.timeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	id := uuid.NewString()
	log := e.log.With(
		zap.String("task", id),
		zap.String("command", cmd.Name),
		zap.String("server", desc.GetName()),
	)

	f := &Future[T]{
		id:        id,
		engine:    e,
		desc:      desc,
		cmd:       cmd,
		ctx:       logger.NewContext(ctx, log),
		cancel:    cancel,
		timeout:   s.timeout,
		listeners: s.listeners,
		log:       log,
		done:      make(chan struct{}),
	}

	log.Debug("Submitting command")
	f.notify(runner.StateReady, runner.EventSubmit)
	if err := s.executor.Execute(f.execute); err != nil {
		f.finish(nil, err, 0, time.Time{})
	}
	return f
}

// Future is the handle of a submitted command.
type Future[T any] struct {
	id     string
	engine *Engine
	desc   *server.Descriptor
	cmd    *command.Command

	ctx       context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	listeners []runner.Listener
	log       *zap.Logger

	mu     sync.Mutex
	state  runner.State
	proc   *runner.Process
	result *runner.Result[T]
	done   chan struct{}

	// Listener calls are serialized through pending; the goroutine that
	// finds dispatching false drains it.
	notifyMu    sync.Mutex
	pending     []notification
	dispatching bool
	ended       bool
}

type notification struct {
	state runner.State
	event runner.Event
	args  []string
}

// ID returns the task identifier.
func (f *Future[T]) ID() string {
	return f.id
}

// Command returns the submitted command.
func (f *Future[T]) Command() *command.Command {
	return f.cmd
}

// State returns the current task state.
func (f *Future[T]) State() runner.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result, bounded by ctx and by the submission timeout.
// A failed command returns its result together with the error.
func (f *Future[T]) Get(ctx context.Context) (*runner.Result[T], error) {
	return f.wait(ctx, f.timeout)
}

// GetTimeout waits at most d for the result. Expiry returns a Timeout error
// and leaves the command running.
func (f *Future[T]) GetTimeout(d time.Duration) (*runner.Result[T], error) {
	return f.wait(context.Background(), d)
}

func (f *Future[T]) wait(ctx context.Context, d time.Duration) (*runner.Result[T], error) {
	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		r := f.result
		return r, r.Err
	case <-expired:
		return nil, runner.Errorf(runner.CodeTimeout, nil, f.cmd.Name, f.desc.GetName(), d)
	case <-ctx.Done():
		return nil, runner.Errorf(runner.CodeCancelled, ctx.Err(), f.cmd.Name, f.desc.GetName())
	}
}

// Cancel stops the command. A queued command never runs, a running one sees
// its context cancelled, and a spawned process is killed. Cancel reports
// whether it changed anything.
func (f *Future[T]) Cancel() bool {
	f.cancel()

	f.mu.Lock()
	proc := f.proc
	f.mu.Unlock()

	killed := false
	if proc != nil {
		if err := proc.Terminate(); err != nil {
			f.log.Warn("Failed to terminate process", zap.Int("pid", proc.Pid()), zap.Error(err))
		} else {
			killed = true
		}
	}

	cancelled := f.finish(nil, runner.Errorf(runner.CodeCancelled, context.Canceled, f.cmd.Name, f.desc.GetName()), 0, time.Time{})
	return cancelled || killed
}

// execute runs on an executor worker.
func (f *Future[T]) execute() {
	if f.ctx.Err() != nil {
		f.finish(nil, runner.Errorf(runner.CodeCancelled, f.ctx.Err(), f.cmd.Name, f.desc.GetName()), 0, time.Time{})
		return
	}

	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return
	}
	f.state = runner.StateRunning
	f.mu.Unlock()
	f.notify(runner.StateRunning, runner.EventRunning)

	start := time.Now()
	attempts := 0
	var value any
	var err error
	for {
		attempts++
		value, err = f.attempt()
		if attempts > 1 || !f.cmd.Retryable || !f.cmd.RetryRequested() || f.ctx.Err() != nil {
			break
		}
		f.cmd.ClearRetry()
		f.log.Info("Server is busy, resubmitting command", zap.Error(err))
		f.notify(runner.StateRunning, runner.EventRetry)
	}
	f.cmd.ClearRetry()

	if f.ctx.Err() != nil {
		// Cancelled while the runner returned; do not leak a process.
		if p, ok := value.(*runner.Process); ok {
			_ = p.Terminate()
		}
		if runner.CodeOf(err) != runner.CodeCancelled {
			err = runner.Errorf(runner.CodeCancelled, f.ctx.Err(), f.cmd.Name, f.desc.GetName())
		}
	}
	f.finish(value, err, attempts, start)
}

// attempt builds a fresh runner and runs it once.
func (f *Future[T]) attempt() (value any, err error) {
	r, err := f.engine.table.Build(f.desc, f.cmd)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = runner.Errorf(runner.CodeGeneric, nil,
				fmt.Sprintf("runner %s panicked on command %s: %v", r.Name(), f.cmd.Name, p))
		}
	}()

	f.log.Debug("Running command", zap.String("runner", r.Name()))
	value, err = r.Run(f.ctx)
	if err != nil {
		return nil, runner.Wrap(err, "command %s on %s failed", f.cmd.Name, f.desc.GetName())
	}
	if p, ok := value.(*runner.Process); ok {
		f.mu.Lock()
		f.proc = p
		f.mu.Unlock()
	}
	return value, nil
}

// finish stores the result once. Later calls are ignored and return false.
func (f *Future[T]) finish(value any, err error, attempts int, start time.Time) bool {
	res := &runner.Result[T]{ID: f.id, Attempts: attempts}
	if !start.IsZero() {
		res.Duration = time.Since(start)
	}
	if err == nil {
		v, cerr := runner.Convert[T](value)
		if cerr != nil {
			err = cerr
		} else {
			res.Value = v
		}
	}
	if err != nil {
		res.State = runner.StateFailed
		res.Err = err
	} else {
		res.State = runner.StateCompleted
	}

	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return false
	}
	f.state = res.State
	f.result = res
	f.mu.Unlock()
	f.cancel()

	if err != nil {
		f.log.Debug("Command failed", zap.Int("attempts", attempts), zap.Error(err))
		f.notify(runner.StateFailed, runner.EventFor(err), err.Error())
	} else {
		f.log.Debug("Command completed", zap.Int("attempts", attempts), zap.Duration("duration", res.Duration))
		f.notify(runner.StateCompleted, runner.EventCompleted)
	}
	close(f.done)
	return true
}

// notify queues a state change for the listeners. Changes are delivered one
// at a time in the order they were queued, never concurrently. Nothing is
// delivered after a terminal state. A listener that triggers another change,
// for example by cancelling the future, has it delivered once it returns.
// Listeners must not wait for their own future.
func (f *Future[T]) notify(state runner.State, event runner.Event, msg ...string) {
	f.notifyMu.Lock()
	if f.ended {
		f.notifyMu.Unlock()
		return
	}
	f.ended = state.Terminal()
	f.pending = append(f.pending, notification{
		state: state,
		event: event,
		args:  append([]string{f.cmd.Name, f.desc.GetName()}, msg...),
	})
	if f.dispatching {
		f.notifyMu.Unlock()
		return
	}
	f.dispatching = true
	for len(f.pending) > 0 {
		n := f.pending[0]
		f.pending = f.pending[1:]
		f.notifyMu.Unlock()
		f.deliver(n)
		f.notifyMu.Lock()
	}
	f.dispatching = false
	f.notifyMu.Unlock()
}

// deliver calls every listener in order. A panicking listener is logged and
// skipped.
func (f *Future[T]) deliver(n notification) {
	state, event, args := n.state, n.event, n.args
	for _, l := range f.listeners {
		func() {
			defer func() {
				if p := recover(); p != nil {
					f.log.Warn("Listener panicked",
						zap.String("state", state.String()),
						zap.String("event", event.String()),
						zap.Any("panic", p))
				}
			}()
			l.StateChanged(state, event, args...)
		}()
	}
}
