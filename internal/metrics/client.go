// Package metrics polls the agent's HTTP API and checks responses against a
// JSON schema.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"pktharness/internal/poll"
)

const apiPrefix = "/api/v1/"

// Response is one HTTP exchange with the agent.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// Decode parses the body into the value shape the schema validator expects.
func (r Response) Decode() (any, error) {
	return jsonschema.UnmarshalJSON(bytes.NewReader(r.Body))
}

// Client talks to agent instances on one host.
type Client struct {
	host  string
	wait  time.Duration
	http  *http.Client
	clock poll.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the clock used between attempts.
func WithClock(clock poll.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// New returns a Client for host that waits wait between attempts.
func New(host string, wait time.Duration, opts ...Option) *Client {
	c := &Client{
		host:  host,
		wait:  wait,
		http:  &http.Client{Timeout: 5 * time.Second},
		clock: poll.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the API URL of endpoint on port.
func (c *Client) URL(endpoint string, port int) string {
	host := net.JoinHostPort(c.host, strconv.Itoa(port))
	return "http://" + host + apiPrefix + strings.TrimPrefix(endpoint, "/")
}

// Fetch repeats the request until the agent answers with expected or timeout
// elapses. Connection errors while the agent starts are retried. The last
// response is returned either way; the error is non-nil only when no response
// was ever received or ctx was cancelled.
func (c *Client) Fetch(ctx context.Context, method, endpoint string, port, expected int, timeout time.Duration) (Response, bool, error) {
	url := c.URL(endpoint, port)
	var lastErr error
	var last Response

	probe := poll.WithPolicy(poll.RetryOnMismatch, nil, func(ctx context.Context) (Response, bool, error) {
		resp, err := c.do(ctx, method, url)
		if err != nil {
			if ctx.Err() != nil {
				return last, false, ctx.Err()
			}
			slog.Debug("Agent not answering yet.", "url", url, "err", err)
			lastErr = err
			return last, false, nil
		}
		last = resp
		return resp, resp.Status == expected, nil
	})

	out, err := poll.Until(ctx, poll.Options{Wait: c.wait, Timeout: timeout, Clock: c.clock}, Response{}, probe)
	if err != nil {
		return last, false, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if last.Status == 0 && lastErr != nil {
		return last, false, fmt.Errorf("%s %s: no response after %d attempts: %w", method, url, out.Attempts, lastErr)
	}
	if !out.Succeeded {
		slog.Debug("Unexpected status.", "url", url, "status", last.Status, "expected", expected, "attempts", out.Attempts)
	}
	return last, out.Succeeded, nil
}

// Get is Fetch with GET and a 200 expectation.
func (c *Client) Get(ctx context.Context, endpoint string, port int, timeout time.Duration) (Response, bool, error) {
	return c.Fetch(ctx, http.MethodGet, endpoint, port, http.StatusOK, timeout)
}

// Delete issues DELETE requests until the agent answers with expected.
func (c *Client) Delete(ctx context.Context, endpoint string, port, expected int, timeout time.Duration) (Response, bool, error) {
	return c.Fetch(ctx, http.MethodDelete, endpoint, port, expected, timeout)
}

func (c *Client) do(ctx context.Context, method, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	return Response{Status: resp.StatusCode, Body: body, Header: resp.Header}, nil
}
