package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/transport"
	"github.com/eugenetaranov/dasctl/internal/server"
)

func TestTransportFor(t *testing.T) {
	remote := command.MustNew("version", nil)
	localCmd := command.MustNew("list-domains", nil)

	tests := []struct {
		name    string
		desc    server.Descriptor
		cmd     *command.Command
		want    command.Transport
		wantErr error
	}{
		{"declared http", server.Descriptor{AdminInterface: server.InterfaceHTTP}, remote, command.TransportHTTP, nil},
		{"declared rest", server.Descriptor{AdminInterface: server.InterfaceREST}, remote, command.TransportREST, nil},
		{"declared rest wins over version", server.Descriptor{AdminInterface: server.InterfaceREST, Version: server.GF3_1_2}, remote, command.TransportREST, nil},
		{"version 3 routes to http", server.Descriptor{Version: server.GF3_1_2_2}, remote, command.TransportHTTP, nil},
		{"version 4 routes to rest", server.Descriptor{Version: server.GF4}, remote, command.TransportREST, nil},
		{"version 7 routes to rest", server.Descriptor{Version: server.GF7}, remote, command.TransportREST, nil},
		{"local command", server.Descriptor{AdminInterface: server.InterfaceREST}, localCmd, command.TransportLocal, nil},
		{"local ignores version", server.Descriptor{Version: server.GF2}, localCmd, command.TransportLocal, nil},
		{"no interface no version", server.Descriptor{}, remote, 0, runner.ErrUnknownVersion},
		{"unrecognized version", server.Descriptor{Version: server.Version(999)}, remote, 0, runner.ErrUnknownVersion},
		{"too old", server.Descriptor{Version: server.GF2_1_1}, remote, 0, runner.ErrUnsupportedVersion},
		{"too old with interface", server.Descriptor{AdminInterface: server.InterfaceHTTP, Version: server.GF1}, remote, 0, runner.ErrUnsupportedVersion},
		{"bad interface", server.Descriptor{AdminInterface: server.AdminInterface(9)}, remote, 0, runner.ErrUnknownAdminInterface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TransportFor(&tt.desc, tt.cmd)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnsupportedVersionMessage(t *testing.T) {
	_, err := TransportFor(&server.Descriptor{Version: server.GF2_1}, command.MustNew("version", nil))
	assert.EqualError(t, err, "server version 2.1 is not supported, minimum is 3")
}

func TestResolve(t *testing.T) {
	table := NewTable(nil)
	httpDesc := &server.Descriptor{AdminInterface: server.InterfaceHTTP}
	restDesc := &server.Descriptor{AdminInterface: server.InterfaceREST}

	tests := []struct {
		kind   string
		params command.Params
		desc   *server.Descriptor
		want   string
	}{
		{"version", nil, httpDesc, "http"},
		{"version", nil, restDesc, "rest"},
		{"get-property", command.Params{"pattern": "*"}, httpDesc, "http/property"},
		{"get-property", command.Params{"pattern": "*"}, restDesc, "rest/property"},
		{"location", nil, httpDesc, "http/location"},
		{"location", nil, restDesc, "rest"},
		{"list-web-services", nil, restDesc, "rest"},
		{"deploy", command.Params{"path": "/a.war"}, httpDesc, "http"},
		{"deploy", command.Params{"path": "/a.war"}, restDesc, "rest/deploy"},
		{"restart-domain", nil, httpDesc, "http/restart"},
		{"stop-domain", nil, restDesc, "rest/restart"},
		{"start-domain", nil, restDesc, "local"},
	}

	for _, tt := range tests {
		t.Run(tt.kind+" "+tt.desc.AdminInterface.String(), func(t *testing.T) {
			cmd := command.MustNew(tt.kind, tt.params)
			ctor, name, err := table.Resolve(tt.desc, cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)

			r, err := ctor(tt.desc, cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Name())
		})
	}
}

func TestResolveUnknownOverrideFallsBack(t *testing.T) {
	cmd := command.Custom("frobnicate", nil)
	cmd.Overrides = map[command.Transport]command.Override{command.TransportREST: {Runner: "nope"}}

	_, name, err := NewTable(nil).Resolve(&server.Descriptor{AdminInterface: server.InterfaceREST}, cmd)
	require.NoError(t, err)
	assert.Equal(t, "rest", name)
}

func TestBuildRunnerInit(t *testing.T) {
	desc := &server.Descriptor{AdminInterface: server.InterfaceREST}
	cause := errors.New("missing certificate")

	tests := []struct {
		name      string
		ctor      Constructor
		wantCause string
	}{
		{
			name: "constructor error",
			ctor: func(*server.Descriptor, *command.Command) (runner.Runner, error) {
				return nil, cause
			},
			wantCause: "missing certificate",
		},
		{
			name: "constructor panic",
			ctor: func(*server.Descriptor, *command.Command) (runner.Runner, error) {
				panic("boom")
			},
			wantCause: "panic: boom",
		},
		{
			name: "nil runner",
			ctor: func(*server.Descriptor, *command.Command) (runner.Runner, error) {
				return nil, nil
			},
			wantCause: "constructor returned no runner",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewTable(nil, WithDefault(command.TransportREST, tt.ctor))
			r, err := table.Build(desc, command.MustNew("version", nil))
			assert.Nil(t, r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, runner.ErrRunnerInit))
			assert.Contains(t, err.Error(), "cannot create rest runner for command version")
			assert.Contains(t, err.Error(), tt.wantCause)
		})
	}
}

func TestBuildKeepsSelectionErrors(t *testing.T) {
	_, err := NewTable(nil).Build(&server.Descriptor{}, command.MustNew("version", nil))
	assert.True(t, errors.Is(err, runner.ErrUnknownVersion))
}

func TestWithOverride(t *testing.T) {
	called := false
	table := NewTable(nil, WithOverride(command.TransportHTTP, "custom", func(*server.Descriptor, *command.Command) (runner.Runner, error) {
		called = true
		return &fakeRunner{name: "custom", run: func(context.Context) (any, error) { return "ok", nil }}, nil
	}))
	cmd := command.Custom("x", nil)
	cmd.Overrides = map[command.Transport]command.Override{command.TransportHTTP: {Runner: "custom"}}

	r, err := table.Build(&server.Descriptor{AdminInterface: server.InterfaceHTTP}, cmd)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "custom", r.Name())
}

func TestTableUserAgent(t *testing.T) {
	var mu sync.Mutex
	agents := make(map[string]string)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents[r.URL.Path] = r.UserAgent()
		mu.Unlock()
		if strings.HasPrefix(r.URL.Path, "/__asadmin/") {
			_, _ = io.WriteString(w, "exit-code: SUCCESS\nmessage: 7.0.14\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"7.0.14","command":"version","exit_code":"SUCCESS"}`)
	}))
	defer ts.Close()

	table := NewTable([]transport.Option{transport.WithUserAgent("dasctl/dev")})

	tests := []struct {
		name      string
		iface     server.AdminInterface
		kind      string
		wantAgent string
	}{
		{"http default", server.InterfaceHTTP, "version", "hk2-agent"},
		{"http override", server.InterfaceHTTP, "location", "hk2-agent"},
		{"rest default", server.InterfaceREST, "version", "dasctl/dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mu.Lock()
			clear(agents)
			mu.Unlock()

			desc := restDescriptor(t, ts)
			desc.AdminInterface = tt.iface
			r, err := table.Build(desc, command.MustNew(tt.kind, nil))
			require.NoError(t, err)
			// Only the request headers matter here.
			_, _ = r.Run(context.Background())

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, agents, 1)
			for _, agent := range agents {
				assert.Equal(t, tt.wantAgent, agent)
			}
		})
	}
}
