package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of a response body is read. Command
// payloads are small; anything larger is a misbehaving server.
const maxResponseBytes = 1 << 20

// HTTP sends ingestion requests as HTTP POSTs.
//
// The underlying http.Client is shared so TCP/TLS connections are reused
// across attempts and across sends.
type HTTP struct {
	client *http.Client
}

// NewHTTP returns an HTTP transport with the given per-request timeout.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{client: &http.Client{Timeout: timeout}}
}

// Send POSTs req.Body to req.URL with req.Headers set verbatim.
func (t *HTTP) Send(ctx context.Context, req Request) (Response, error) {
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}

	resp, err := t.client.Do(hr)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		// The status line arrived, so classification can proceed even if
		// the body was cut short.
		return Response{Status: resp.StatusCode}, nil
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}
