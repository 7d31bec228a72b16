package transport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// statusHeader carries the HTTP-equivalent status code in a NATS reply.
const statusHeader = "Status"

// NATS sends ingestion requests as NATS request/reply exchanges.
//
// The request headers (X-Api-Key, X-Project-Id, …) travel as NATS message
// headers; the payload is the message body. The responder answers with the
// same JSON body an HTTP ingest would return and sets the "Status" header
// to the HTTP-equivalent status code (missing means 200).
type NATS struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATS connects to a NATS server and returns a transport that publishes
// to subject. name shows up in NATS monitoring.
func NewNATS(url, subject, name string, timeout time.Duration) (*NATS, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.PingInterval(5*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1), // reconnect forever
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATS{nc: nc, subject: subject, timeout: timeout}, nil
}

// Send performs one request/reply exchange. Timeouts and missing
// responders surface as transport errors, which the delivery engine
// retries like any network failure.
func (t *NATS) Send(ctx context.Context, req Request) (Response, error) {
	msg := nats.NewMsg(t.subject)
	msg.Data = req.Body
	for k, v := range req.Headers {
		msg.Header.Set(k, v)
	}
	// The responder routes on subject, not URL, but the URL is forwarded
	// so schema_id query parameters survive the bridge.
	msg.Header.Set("X-Ingest-Url", req.URL)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	reply, err := t.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return Response{}, fmt.Errorf("nats request %s: %w", t.subject, err)
	}

	status := 200
	if s := reply.Header.Get(statusHeader); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Response{}, fmt.Errorf("nats reply: bad %s header %q", statusHeader, s)
		}
		status = n
	}
	return Response{Status: status, Body: reply.Data}, nil
}

// Ensure reports whether the NATS connection is currently up, satisfying
// the client's Connectivity collaborator.
func (t *NATS) Ensure(_ context.Context) bool {
	return t.nc.Status() == nats.CONNECTED
}

// Close drains and closes the NATS connection.
func (t *NATS) Close() {
	t.nc.Close()
}
