package runner

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a handle to a spawned administration subprocess. Stdout and
// stderr are merged into Output.
type Process struct {
	cmd    *exec.Cmd
	output io.ReadCloser
	stdin  io.WriteCloser

	done    chan struct{}
	waitErr error
	once    sync.Once
}

// NewProcess wraps a started command. output is the read end of the merged
// stdout/stderr pipe; stdin may be nil.
func NewProcess(cmd *exec.Cmd, output io.ReadCloser, stdin io.WriteCloser) *Process {
	p := &Process{
		cmd:    cmd,
		output: output,
		stdin:  stdin,
		done:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p
}

// Output returns the merged stdout/stderr stream.
func (p *Process) Output() io.Reader {
	return p.output
}

// Stdin returns the process standard input, or nil.
func (p *Process) Stdin() io.Writer {
	if p.stdin == nil {
		return nil
	}
	return p.stdin
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Args returns the argument vector the process was started with.
func (p *Process) Args() []string {
	return p.cmd.Args
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its exit status.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// ExitCode returns the exit code, or -1 while the process runs.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Terminate kills the process if it is still running and releases the pipes.
func (p *Process) Terminate() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
		default:
			if p.cmd.Process != nil {
				if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
					err = kerr
				}
			}
		}
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
	})
	return err
}

// Close releases the output pipe. The process keeps running.
func (p *Process) Close() error {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	return p.output.Close()
}
