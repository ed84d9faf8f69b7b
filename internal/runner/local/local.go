// Package local runs administration commands by spawning the server's
// administration CLI on this machine.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/go-ini/ini"
	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/server"
	"github.com/eugenetaranov/dasctl/pkg/jvm"
)

// Administration CLI entry point inside the server installation.
const (
	AdminJar  = "modules/admin-cli.jar"
	MainClass = "com.sun.enterprise.admin.cli.AdminMain"
)

// EnvJava names the Java home in asenv.conf and in the child environment.
const EnvJava = "AS_JAVA"

// asenvPath is the server environment file relative to the server root.
var asenvPath = filepath.Join("config", "asenv.conf")

// Runner spawns the administration CLI for one local command.
type Runner struct {
	desc *server.Descriptor
	cmd  *command.Command

	getenv func(string) string
	probe  func(ctx context.Context, home string) (*jvm.Info, error)
}

// Option configures the local runner.
type Option func(*Runner)

// WithGetenv replaces os.Getenv for Java home lookup.
func WithGetenv(getenv func(string) string) Option {
	return func(r *Runner) {
		r.getenv = getenv
	}
}

// WithProbe replaces the Java VM version probe.
func WithProbe(probe func(ctx context.Context, home string) (*jvm.Info, error)) Option {
	return func(r *Runner) {
		r.probe = probe
	}
}

// Ensure Runner implements runner.Runner.
var _ runner.Runner = (*Runner)(nil)

// New creates a local runner.
func New(desc *server.Descriptor, cmd *command.Command, opts ...Option) (runner.Runner, error) {
	r := &Runner{
		desc:   desc,
		cmd:    cmd,
		getenv: os.Getenv,
		probe:  jvm.Probe,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns the runner identifier.
func (r *Runner) Name() string {
	return "local"
}

// Run starts the administration CLI and returns a *runner.Process without
// waiting for it to exit.
func (r *Runner) Run(ctx context.Context) (any, error) {
	log := logger.FromContext(ctx).With(
		zap.String("command", r.cmd.Name),
		zap.String("server", r.desc.GetName()),
	)

	if !r.cmd.Local {
		return nil, runner.Errorf(runner.CodeIllegalCommandInstance, nil, r.Name(), r.cmd.Name)
	}
	if r.desc.ServerRoot == "" {
		return nil, runner.Errorf(runner.CodeIllegalNullValue, nil, "server-root", r.cmd.Name)
	}

	home, err := r.JavaHome()
	if err != nil {
		return nil, err
	}
	r.checkVersion(ctx, log, home)

	args, err := r.Args()
	if err != nil {
		return nil, err
	}
	env, err := r.Env(home)
	if err != nil {
		return nil, err
	}

	java := jvm.Executable(home)
	execCmd := exec.Command(java, args...)
	execCmd.Env = env
	execCmd.Dir = r.WorkDir()

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, runner.Errorf(runner.CodeJavaVMExecFailed, err, java, r.cmd.Name)
	}
	execCmd.Stdout = pw
	execCmd.Stderr = pw
	stdin, err := execCmd.StdinPipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, runner.Errorf(runner.CodeJavaVMExecFailed, err, java, r.cmd.Name)
	}

	log.Debug("Starting administration CLI", zap.Strings("args", execCmd.Args), zap.String("dir", execCmd.Dir))
	if err := execCmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, runner.Errorf(runner.CodeJavaVMExecFailed, err, java, r.cmd.Name)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	log.Info("Administration CLI started", zap.Int("pid", execCmd.Process.Pid))
	return runner.NewProcess(execCmd, pr, stdin), nil
}

// JavaHome resolves the Java VM: the java-home parameter, the descriptor,
// AS_JAVA in asenv.conf, then $JAVA_HOME. The first candidate that is set
// must contain a java launcher.
func (r *Runner) JavaHome() (string, error) {
	candidates := []struct {
		source string
		home   string
	}{
		{"parameter java-home", r.cmd.Param("java-home")},
		{"server java home", r.desc.JavaHome},
		{asenvPath, asenvJava(r.desc.ServerRoot)},
		{"JAVA_HOME", r.getenv("JAVA_HOME")},
	}
	for _, c := range candidates {
		if c.home == "" {
			continue
		}
		if !jvm.Exists(c.home) {
			return "", runner.Errorf(runner.CodeNoJavaVM, nil, r.cmd.Name,
				fmt.Sprintf("%s points to %s, which has no bin/java", c.source, c.home))
		}
		return c.home, nil
	}
	return "", runner.Errorf(runner.CodeNoJavaVM, nil, r.cmd.Name, "set java-home, AS_JAVA or JAVA_HOME")
}

// asenvJava reads AS_JAVA from the server's asenv.conf.
func asenvJava(root string) string {
	if root == "" {
		return ""
	}
	cfg, err := ini.Load(filepath.Join(root, asenvPath))
	if err != nil {
		return ""
	}
	return cfg.Section("").Key(EnvJava).String()
}

// MinimumJava returns the oldest Java release v runs on.
func MinimumJava(v server.Version) semver.Version {
	switch {
	case v == server.VersionUnknown:
		return semver.Version{Major: 1, Minor: 8}
	case v < server.GF4:
		return semver.Version{Major: 1, Minor: 6}
	case v < server.GF5:
		return semver.Version{Major: 1, Minor: 7}
	case v < server.GF7:
		return semver.Version{Major: 1, Minor: 8}
	default:
		return semver.Version{Major: 11}
	}
}

// checkVersion logs a warning when the VM is older than the server needs.
// The command runs regardless.
func (r *Runner) checkVersion(ctx context.Context, log *zap.Logger, home string) {
	info, err := r.probe(ctx, home)
	if err != nil {
		log.Warn("Cannot determine Java version", zap.String("java_home", home), zap.Error(err))
		return
	}
	minimum := MinimumJava(r.desc.Version)
	if !info.AtLeast(minimum) {
		log.Warn("Java version is older than the server requires",
			zap.String("java_home", home),
			zap.String("version", info.Version.String()),
			zap.String("minimum", minimum.String()))
	}
}

// Args builds the java argument vector: VM options, the admin CLI class
// path and main class, the command name, --key=value options, and the
// operand last.
func (r *Runner) Args() ([]string, error) {
	args := append([]string{}, r.cmd.Strings("vm-options")...)
	args = append(args, "-cp", filepath.Join(r.desc.ServerRoot, filepath.FromSlash(AdminJar)), MainClass)
	args = append(args, r.cmd.WireName(command.TransportLocal))

	pairs, err := command.WirePairs(r.cmd)
	if err != nil {
		return nil, err
	}
	var operand string
	hasDomainDir := false
	for _, p := range pairs {
		if p.Key == command.DefaultParam {
			operand = p.Value
			continue
		}
		if p.Key == "domaindir" {
			hasDomainDir = true
		}
		args = append(args, "--"+p.Key+"="+p.Value)
	}

	if strings.HasSuffix(r.cmd.Name, "-domain") || r.cmd.Name == "list-domains" {
		if !hasDomainDir && r.desc.DomainsFolder != "" {
			args = append(args, "--domaindir="+r.desc.DomainsFolder)
		}
		if operand == "" && r.cmd.Name != "list-domains" {
			operand = r.desc.GetDomain()
		}
	}
	if operand != "" {
		args = append(args, operand)
	}
	return args, nil
}

// Env returns the child environment: this process's environment, AS_JAVA,
// and the command's env parameter.
func (r *Runner) Env(home string) ([]string, error) {
	env := append(os.Environ(), EnvJava+"="+home)
	extra := r.cmd.StringMap("env")
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k == "" || strings.Contains(k, "=") {
			return nil, runner.Errorf(runner.CodeInvalidComponentItem, nil, k, "env", r.cmd.Name)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env, nil
}

// WorkDir returns the workdir parameter, else the domain directory when it
// exists, else "" for the current directory.
func (r *Runner) WorkDir() string {
	if dir := r.cmd.Param("workdir"); dir != "" {
		return dir
	}
	if dir := r.desc.DomainDir(); dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir
		}
	}
	return ""
}
