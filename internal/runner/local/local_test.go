package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/blang/semver/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/server"
	"github.com/eugenetaranov/dasctl/internal/verifier"
	"github.com/eugenetaranov/dasctl/pkg/jvm"
)

// fakeJava creates a Java home whose launcher runs script with /bin/sh.
func fakeJava(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake launcher requires a POSIX shell")
	}
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", "java"), []byte("#!/bin/sh\n"+script), 0755))
	return home
}

func staticProbe(version string) func(context.Context, string) (*jvm.Info, error) {
	return func(_ context.Context, home string) (*jvm.Info, error) {
		return &jvm.Info{Home: home, Version: semver.MustParse(version)}, nil
	}
}

func noEnv(string) string { return "" }

func newTestRunner(t *testing.T, desc *server.Descriptor, cmd *command.Command, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithGetenv(noEnv), WithProbe(staticProbe("11.0.2"))}, opts...)
	r, err := New(desc, cmd, opts...)
	require.NoError(t, err)
	return r.(*Runner)
}

func TestJavaHomeOrder(t *testing.T) {
	paramHome := fakeJava(t, "")
	descHome := fakeJava(t, "")
	asenvHome := fakeJava(t, "")
	envHome := fakeJava(t, "")

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0755))
	asenv := "AS_IMQ_LIB=\"../../mq/lib\"\nAS_JAVA=\"" + asenvHome + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "asenv.conf"), []byte(asenv), 0644))

	getenv := func(k string) string {
		if k == "JAVA_HOME" {
			return envHome
		}
		return ""
	}

	tests := []struct {
		name   string
		params command.Params
		desc   server.Descriptor
		want   string
	}{
		{"parameter", command.Params{"java-home": paramHome}, server.Descriptor{ServerRoot: root, JavaHome: descHome}, paramHome},
		{"descriptor", nil, server.Descriptor{ServerRoot: root, JavaHome: descHome}, descHome},
		{"asenv.conf", nil, server.Descriptor{ServerRoot: root}, asenvHome},
		{"environment", nil, server.Descriptor{ServerRoot: t.TempDir()}, envHome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := tt.desc
			r := newTestRunner(t, &desc, command.MustNew("list-domains", tt.params), WithGetenv(getenv))
			home, err := r.JavaHome()
			require.NoError(t, err)
			assert.Equal(t, tt.want, home)
		})
	}
}

func TestNoJavaVM(t *testing.T) {
	desc := &server.Descriptor{Name: "local", ServerRoot: t.TempDir()}

	r := newTestRunner(t, desc, command.MustNew("list-domains", nil))
	_, err := r.Run(context.Background())
	assert.True(t, errors.Is(err, runner.ErrNoJavaVM))

	desc.JavaHome = t.TempDir()
	r = newTestRunner(t, desc, command.MustNew("list-domains", nil))
	_, err = r.JavaHome()
	assert.True(t, errors.Is(err, runner.ErrNoJavaVM))
	assert.Contains(t, err.Error(), desc.JavaHome)
}

func TestArgs(t *testing.T) {
	desc := &server.Descriptor{ServerRoot: "/opt/glassfish", DomainsFolder: "/srv/domains", Domain: "prod"}

	tests := []struct {
		name string
		cmd  *command.Command
		want []string
	}{
		{
			name: "start default domain",
			cmd:  command.MustNew("start-domain", command.Params{"vm-options": []string{"-Xmx512m"}, "debug": true}),
			want: []string{"-Xmx512m", "-cp", "/opt/glassfish/modules/admin-cli.jar", MainClass,
				"start-domain", "--debug=true", "--domaindir=/srv/domains", "prod"},
		},
		{
			name: "create named domain",
			cmd:  command.MustNew("create-domain", command.Params{"domain": "test", "adminport": 5858, "domaindir": "/tmp/d"}),
			want: []string{"-cp", "/opt/glassfish/modules/admin-cli.jar", MainClass,
				"create-domain", "--adminport=5858", "--domaindir=/tmp/d", "test"},
		},
		{
			name: "list domains",
			cmd:  command.MustNew("list-domains", nil),
			want: []string{"-cp", "/opt/glassfish/modules/admin-cli.jar", MainClass,
				"list-domains", "--domaindir=/srv/domains"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS == "windows" {
				t.Skip("paths use forward slashes")
			}
			r := newTestRunner(t, desc, tt.cmd)
			args, err := r.Args()
			require.NoError(t, err)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestEnv(t *testing.T) {
	r := newTestRunner(t, &server.Descriptor{}, command.MustNew("list-domains", command.Params{
		"env": map[string]any{"B": "2", "A": 1},
	}))
	env, err := r.Env("/opt/jdk")
	require.NoError(t, err)

	n := len(env)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, []string{"AS_JAVA=/opt/jdk", "A=1", "B=2"}, env[n-3:])

	r = newTestRunner(t, &server.Descriptor{}, command.MustNew("list-domains", command.Params{
		"env": map[string]string{"BAD=KEY": "x"},
	}))
	_, err = r.Env("/opt/jdk")
	assert.True(t, errors.Is(err, runner.ErrInvalidComponentItem))
}

func TestWorkDir(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "domain1"), 0755))
	desc := &server.Descriptor{DomainsFolder: folder}

	r := newTestRunner(t, desc, command.MustNew("list-domains", nil))
	assert.Equal(t, filepath.Join(folder, "domain1"), r.WorkDir())

	r = newTestRunner(t, desc, command.MustNew("list-domains", command.Params{"workdir": "/tmp"}))
	assert.Equal(t, "/tmp", r.WorkDir())

	desc.Domain = "missing"
	r = newTestRunner(t, desc, command.MustNew("list-domains", nil))
	assert.Equal(t, "", r.WorkDir())
}

func TestRunRejectsRemoteCommand(t *testing.T) {
	r := newTestRunner(t, &server.Descriptor{ServerRoot: "/opt/glassfish"}, command.MustNew("version", nil))
	_, err := r.Run(context.Background())
	assert.True(t, errors.Is(err, runner.ErrIllegalCommandInstance))
}

func TestRunNeedsServerRoot(t *testing.T) {
	r := newTestRunner(t, &server.Descriptor{}, command.MustNew("list-domains", nil))
	_, err := r.Run(context.Background())
	assert.True(t, errors.Is(err, runner.ErrIllegalNullValue))
}

func TestRunStartsProcess(t *testing.T) {
	home := fakeJava(t, `echo "args: $*"
echo "java: $AS_JAVA" >&2
echo "Command list-domains executed successfully."
`)
	desc := &server.Descriptor{Name: "local", ServerRoot: t.TempDir(), JavaHome: home}
	cmd := command.MustNew("list-domains", nil)
	r := newTestRunner(t, desc, cmd)

	v, err := r.Run(context.Background())
	require.NoError(t, err)
	proc, ok := v.(*runner.Process)
	require.True(t, ok)
	defer proc.Close()
	assert.Greater(t, proc.Pid(), 0)

	vf := verifier.New(StartupContent(desc, cmd), proc.Stdin())
	verdict, err := vf.Verify(context.Background(), proc.Output())
	require.NoError(t, err)
	assert.Equal(t, verifier.Success, verdict)
	require.NoError(t, proc.Wait())
	assert.Equal(t, 0, proc.ExitCode())

	transcript, err := vf.Transcript()
	require.NoError(t, err)
	assert.Contains(t, transcript, "list-domains")
	assert.Contains(t, transcript, "java: "+home)
}

func TestRunExecFailed(t *testing.T) {
	home := fakeJava(t, "")
	// A launcher that is not executable passes the existence check but fails to start.
	require.NoError(t, os.Chmod(filepath.Join(home, "bin", "java"), 0644))

	desc := &server.Descriptor{ServerRoot: t.TempDir(), JavaHome: home}
	r := newTestRunner(t, desc, command.MustNew("list-domains", nil))
	_, err := r.Run(context.Background())
	assert.True(t, errors.Is(err, runner.ErrJavaVMExecFailed))
}

func TestOldJavaOnlyWarns(t *testing.T) {
	home := fakeJava(t, "exit 0\n")
	core, logs := observer.New(zap.WarnLevel)
	ctx := logger.NewContext(context.Background(), zap.New(core))

	desc := &server.Descriptor{ServerRoot: t.TempDir(), JavaHome: home, Version: server.GF7}
	r := newTestRunner(t, desc, command.MustNew("list-domains", nil), WithProbe(staticProbe("1.8.0")))
	v, err := r.Run(ctx)
	require.NoError(t, err)
	proc := v.(*runner.Process)
	defer proc.Close()
	_ = proc.Wait()

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.True(t, strings.Contains(entry.Message, "older"))
	assert.Equal(t, "11.0.0", entry.ContextMap()["minimum"])
}

func TestMinimumJava(t *testing.T) {
	tests := []struct {
		version server.Version
		feature uint64
	}{
		{server.GF3_1_2, 6},
		{server.GF4_1, 7},
		{server.GF5_1, 8},
		{server.GF6_2, 8},
		{server.GF7, 11},
		{server.VersionUnknown, 8},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			assert.Equal(t, tt.feature, jvm.Feature(MinimumJava(tt.version)))
		})
	}
}

func TestStartupContent(t *testing.T) {
	desc := &server.Descriptor{AdminUser: "root", AdminPassword: "pw"}

	c := StartupContent(desc, command.MustNew("create-domain", command.Params{"domain": "d"}))
	require.Equal(t, 4, c.Len())
	assert.Equal(t, "root\n", c.Tokens()[0].Input)
	assert.Equal(t, "pw\n", c.Tokens()[1].Input)
	assert.Equal(t, []string{"Command create-domain executed successfully"}, c.Tokens()[3].Success)

	c = StartupContent(desc, command.MustNew("start-domain", nil))
	require.Equal(t, 1, c.Len())
	assert.Contains(t, c.Tokens()[0].Error, "There is a process already using the admin port")
}
