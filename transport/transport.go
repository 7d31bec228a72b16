// Package transport is the wire boundary between the client and the
// Inventronix ingestion endpoint.
//
// The delivery engine only sees the Transport interface: one request out,
// one status and body back, or a transport error. HTTP is the default
// implementation; NATS request/reply is available for deployments that
// bridge devices onto a message bus.
package transport

import "context"

// Request is one outbound ingestion request. Body is carried verbatim.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the endpoint's answer to a Request.
type Response struct {
	Status int
	Body   []byte
}

// Transport sends one request and returns the endpoint's response.
//
// A non-nil error means the request never produced a status code (DNS,
// connect, timeout); the delivery engine treats that as retryable.
// Implementations must be safe for use from a single goroutine at a time;
// the delivery engine never issues concurrent requests.
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}
