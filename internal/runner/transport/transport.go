// Package transport sends administration requests to a DAS over HTTP(S) and
// translates every failure into the runner error taxonomy.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/server"
)

// DefaultTimeout bounds connection setup and the whole exchange.
const DefaultTimeout = 3 * time.Minute

// Phrases a DAS uses while it cannot process commands yet, matched
// case-insensitively against the response body.
var busyPhrases = []string{
	"please wait",
	"not yet ready",
	"server is starting",
	"server is not ready",
}

// Body produces a request body and its content type. It is called once per
// attempt so the body can be sent again after an authentication challenge.
type Body func() (io.Reader, string, error)

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client talks to the administration listener of one server on behalf of one
// command.
type Client struct {
	desc    *server.Descriptor
	cmd     *command.Command
	client  *http.Client
	agent   string
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.agent = agent
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// New creates a client for cmd against desc.
func New(desc *server.Descriptor, cmd *command.Command, opts ...Option) *Client {
	c := &Client{
		desc:    desc,
		cmd:     cmd,
		agent:   "dasctl",
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = defaultClient(desc.Secure)
	}
	return c
}

func defaultClient(secure bool) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if secure {
		// The DAS ships a self-signed certificate.
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: tr, Timeout: DefaultTimeout}
}

// Get sends a GET request for path with the encoded query.
func (c *Client) Get(ctx context.Context, path, query string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Do sends a request and reads the whole response. Basic credentials are
// sent up front when a password is configured; otherwise they are sent once
// in answer to a 401 challenge. A second 401 is AuthFailed. A busy reply
// (see IsBusy) raises the command's retry flag and returns ServerBusy
// together with the response.
func (c *Client) Do(ctx context.Context, method, path, query string, body Body) (*Response, error) {
	log := logger.FromContext(ctx).With(
		zap.String("command", c.cmd.Name),
		zap.String("server", c.desc.GetName()),
	)

	auth := c.desc.AdminPassword != ""
	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, path, query, body, auth)
		if err != nil {
			return nil, err
		}
		log.Debug("Admin response", zap.String("method", method), zap.String("path", path),
			zap.Int("status", resp.Status), zap.Int("bytes", len(resp.Body)))

		if resp.Status == http.StatusUnauthorized {
			if !auth && attempt == 0 {
				auth = true
				continue
			}
			return resp, runner.Errorf(runner.CodeAuthFailed, nil, c.desc.GetName(), c.desc.GetAdminUser())
		}
		if IsBusy(resp) {
			log.Info("Server busy, requesting retry")
			return resp, c.Busy()
		}
		return resp, nil
	}
}

func (c *Client) send(ctx context.Context, method, path, query string, body Body, auth bool) (*Response, error) {
	url := c.desc.AdminURL(path)
	if query != "" {
		url += "?" + query
	}

	var reader io.Reader
	var contentType string
	if body != nil {
		var err error
		reader, contentType, err = body()
		if err != nil {
			return nil, runner.Wrap(err, "failed to build request body for %s", c.cmd.Name)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, runner.Errorf(runner.CodeConnectionFailed, err, c.desc.GetName(), c.cmd.Name)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.agent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		req.SetBasicAuth(c.desc.GetAdminUser(), c.desc.AdminPassword)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, runner.Errorf(runner.CodeCancelled, ctx.Err(), c.cmd.Name, c.desc.GetName())
		}
		return nil, runner.Errorf(runner.CodeConnectionFailed, err, c.desc.GetName(), c.cmd.Name)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, runner.Errorf(runner.CodeCancelled, ctx.Err(), c.cmd.Name, c.desc.GetName())
		}
		return nil, runner.Errorf(runner.CodeHTTPResponseIO, err, c.cmd.Name, c.desc.GetName())
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Busy raises the command's retry flag and returns a ServerBusy error. Runners
// call it when a decoded failure reply carries a wait phrase.
func (c *Client) Busy() error {
	c.cmd.RequestRetry()
	return runner.Errorf(runner.CodeServerBusy, nil, c.desc.GetName(), c.cmd.Name)
}

// IsBusy reports whether resp says the server cannot process commands yet:
// a 503, or another non-2xx reply containing a wait phrase. Successful
// replies are never busy, whatever their content.
func IsBusy(resp *Response) bool {
	if resp.Status == http.StatusServiceUnavailable {
		return true
	}
	return !resp.OK() && ContainsBusyPhrase(string(resp.Body))
}

// ContainsBusyPhrase reports whether s contains a known wait phrase.
func ContainsBusyPhrase(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range busyPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsConnectionDrop reports whether err is a connection closed by the server
// after the request was sent, as happens when the DAS stops itself.
func IsConnectionDrop(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		strings.Contains(fmt.Sprint(err), "connection reset by peer")
}

// StaticBody returns a Body that always yields data.
func StaticBody(data []byte, contentType string) Body {
	return func() (io.Reader, string, error) {
		return bytes.NewReader(data), contentType, nil
	}
}
