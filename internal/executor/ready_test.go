package executor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/server"
)

var fastBackoff = wait.Backoff{Duration: 5 * time.Millisecond, Factor: 1, Steps: 10}

func restDescriptor(t *testing.T, ts *httptest.Server) *server.Descriptor {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return &server.Descriptor{Name: "das1", Host: host, AdminPort: p, AdminInterface: server.InterfaceREST}
}

// startingServer answers 503 to the first busy requests, then reports
// version 7.0.14.
func startingServer(t *testing.T, busy int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if requests.Add(1) <= busy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"Server is starting","exit_code":"FAILURE"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"7.0.14","command":"version","exit_code":"SUCCESS"}`))
	}))
	t.Cleanup(ts.Close)
	return ts, &requests
}

func TestWaitReady(t *testing.T) {
	tests := []struct {
		name string
		busy int32
	}{
		{"ready at once", 0},
		{"busy within one retry", 1},
		{"busy across polls", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, requests := startingServer(t, tt.busy)
			e := NewEngine(NewTable(nil))
			defer e.Close()

			version, err := e.WaitReady(context.Background(), restDescriptor(t, ts), fastBackoff)
			require.NoError(t, err)
			assert.Equal(t, "7.0.14", version)
			assert.Equal(t, tt.busy+1, requests.Load())
		})
	}
}

func TestWaitReadyConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	desc := restDescriptor(t, ts)
	ts.Close()

	e := NewEngine(NewTable(nil))
	defer e.Close()

	_, err := e.WaitReady(context.Background(), desc, wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server das1 did not become ready")
	assert.Contains(t, err.Error(), "cannot connect to das1")
}

func TestWaitReadyStopsOnAuthFailure(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	e := NewEngine(NewTable(nil))
	defer e.Close()

	_, err := e.WaitReady(context.Background(), restDescriptor(t, ts), fastBackoff)
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrAuthFailed))
	// One challenge and one answer, then no further polls.
	assert.Equal(t, int32(2), requests.Load())
}

func TestWaitReadyCancelled(t *testing.T) {
	ts, _ := startingServer(t, 1000)
	e := NewEngine(NewTable(nil))
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.WaitReady(ctx, restDescriptor(t, ts), wait.Backoff{Duration: 10 * time.Millisecond, Factor: 1, Steps: 1000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrCancelled))
}
