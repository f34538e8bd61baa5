package leader

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// HTTPElector asks a leader-election sidecar who the leader is. The
// sidecar answers {"name": "<holder>"} and this process leads when the
// name equals its own.
type HTTPElector struct {
	url     string
	name    string
	client  *fasthttp.Client
	timeout time.Duration
}

// NewHTTPElector creates an elector polling url. A nil client gets a
// default one.
func NewHTTPElector(url, name string, client *fasthttp.Client, timeout time.Duration) *HTTPElector {
	if client == nil {
		client = &fasthttp.Client{Name: "leader-elector"}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPElector{url: url, name: name, client: client, timeout: timeout}
}

// IsLeader queries the sidecar once.
func (e *HTTPElector) IsLeader(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deadline := time.Now().Add(e.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(e.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := e.client.DoDeadline(req, resp, deadline); err != nil {
		return false, fmt.Errorf("query leader elector: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return false, fmt.Errorf("leader elector returned status %d", resp.StatusCode())
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return false, fmt.Errorf("decode leader elector response: %w", err)
	}
	return body.Name != "" && body.Name == e.name, nil
}
