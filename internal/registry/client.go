// Package registry talks to the identity and membership registries over
// HTTP. Every call has a timeout and a bounded number of retries; a call
// that still fails is reported as an unavailable collaborator.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/gyeh/brillestotte/internal/apperr"
)

// Options configure a registry client.
type Options struct {
	Timeout      time.Duration
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{
	Timeout:      5 * time.Second,
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions.Timeout
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultOptions.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultOptions.MaxDelay
	}
	return o
}

// errNotFound marks a 404 from the registry. It is never retried.
var errNotFound = errors.New("not found")

// client is the shared JSON-over-HTTP plumbing of both registries.
type client struct {
	name    string
	baseURL string
	http    *fasthttp.Client
	opts    Options
	log     zerolog.Logger
}

func newClient(name, baseURL string, hc *fasthttp.Client, opts Options, log zerolog.Logger) client {
	if hc == nil {
		hc = &fasthttp.Client{
			Name:                name,
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 90 * time.Second,
		}
	}
	return client{
		name:    name,
		baseURL: baseURL,
		http:    hc,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", name).Logger(),
	}
}

// getJSON fetches baseURL+path and decodes the body into out. A 404 returns
// errNotFound. Timeouts, transport errors and 5xx responses are retried;
// after the last attempt they become an apperr.Unavailable.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialDelay
	b.MaxInterval = c.opts.MaxDelay

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.do(ctx, path, out)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, errNotFound) || errors.Is(err, context.Canceled) {
			return struct{}{}, backoff.Permanent(err)
		}
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return struct{}{}, backoff.Permanent(err)
		}
		c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("registry call failed")
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.opts.MaxAttempts))

	if err == nil || errors.Is(err, errNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Unavailable(c.name, fmt.Errorf("GET %s after %d attempt(s): %w", path, attempt, err))
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (c *client) do(ctx context.Context, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return err
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusNotFound:
		return errNotFound
	case code != fasthttp.StatusOK:
		body := resp.Body()
		if len(body) > 200 {
			body = body[:200]
		}
		return &statusError{code: code, body: string(body)}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode %s response: %w", c.name, err))
	}
	return nil
}
