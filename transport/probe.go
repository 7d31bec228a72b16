package transport

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Probe checks reachability of an HTTP endpoint with a GET. It satisfies
// the client's Connectivity collaborator: a send is aborted up front, with
// no retry attempt consumed, when the probe fails.
type Probe struct {
	url    string
	client *http.Client
}

// NewProbe returns a Probe against url (typically the platform's /healthz).
func NewProbe(url string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Probe{url: url, client: &http.Client{Timeout: timeout}}
}

// Ensure reports whether the endpoint answered 2xx.
func (p *Probe) Ensure(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
