// Package inventronix is the Inventronix Go client for gateway-class
// devices: it pushes telemetry payloads to the cloud ingestion endpoint
// and dispatches any commands the platform sends back to locally
// registered handlers.
//
// Usage:
//
//	client, err := inventronix.New(inventronix.Config{
//	    ProjectID:      "e139eeb2-...",
//	    APIKey:         "1a6b2728-...",
//	    VerboseLogging: true,
//	})
//
//	// Toggle command: invoked once per dispatch.
//	client.OnCommand("heater_on", func(args map[string]any) {
//	    heater.Set(true)
//	})
//
//	// Pulse command: drives a pin high for 5s, then low. Exactly once.
//	client.OnPulsePin("pump_nutrients", pumpPin, 5*time.Second)
//
//	for {
//	    client.SendPayload(ctx, payload) // commands dispatched on success
//	    client.Loop()                    // fires due pulse deactivations
//	    time.Sleep(10 * time.Second)
//	}
package inventronix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeWritesCode/inventronix-go/core"
	"github.com/JakeWritesCode/inventronix-go/retry"
	"github.com/JakeWritesCode/inventronix-go/spool"
	"github.com/JakeWritesCode/inventronix-go/transport"
)

// Client is the device-side Inventronix client. Create one with New,
// register handlers before the first send, then call SendPayload from the
// host control loop.
//
// SendPayload and Loop are intended for a single control-loop goroutine.
// Pulse state is additionally touched by timer goroutines in PulseTimer
// mode; that shared state is internally synchronized.
type Client struct {
	cfg       Config
	transport transport.Transport
	conn      Connectivity
	clock     Clock
	logger    *slog.Logger
	tokens    *core.TokenSource
	sessionID string

	commands []commandEntry
	pulses   []pulseEntry
	pulseMu  sync.Mutex // guards active/startedAt/activeFor of every pulse entry
}

// New builds a Client. ProjectID and APIKey are required (directly or via
// their environment fallbacks); everything else has working defaults.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if cfg.ProjectID == "" {
		return nil, errors.New("inventronix: ProjectID required (or set INVENTRONIX_PROJECT_ID)")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("inventronix: APIKey required (or set INVENTRONIX_API_KEY)")
	}

	c := &Client{
		cfg:       cfg,
		transport: cfg.Transport,
		conn:      cfg.Connectivity,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		sessionID: uuid.NewString(),
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(cfg.HTTPTimeout)
	}
	if c.conn == nil {
		c.conn = alwaysConnected{}
	}
	if cfg.TokenAuth {
		c.tokens = core.NewTokenSource(cfg.APIKey, cfg.TokenURL)
	}

	c.info("inventronix client initialised",
		"project", cfg.ProjectID, "session", c.sessionID, "endpoint", c.ingestURL())
	return c, nil
}

// sendResult classifies how a delivery ended.
type sendResult int

const (
	sendOK        sendResult = iota
	sendPermanent            // client error: retrying will not help
	sendExhausted            // retryable class, attempt budget spent
)

// SendPayload delivers one telemetry payload, retrying per the backoff
// policy, and dispatches any commands in the response. Returns true on
// success.
//
// This is the only method that blocks the calling goroutine; the block is
// bounded by RetryAttempts × RetryMaxDelay plus transport time. Nothing
// else — including pulse polling — proceeds during that block.
func (c *Client) SendPayload(ctx context.Context, payload []byte) bool {
	if !c.conn.Ensure(ctx) {
		c.info("network unavailable, send aborted")
		c.spoolPayload(ctx, payload)
		return false
	}

	res := c.deliver(ctx, payload)
	switch res {
	case sendOK:
		c.drainSpool(ctx)
		return true
	case sendExhausted:
		// Worth another try later; permanent client errors are not.
		c.spoolPayload(ctx, payload)
	}
	return false
}

// deliver runs the attempt loop around the transport.
func (c *Client) deliver(ctx context.Context, payload []byte) sendResult {
	req := c.buildRequest(ctx, payload)
	maxAttempts := c.cfg.RetryAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.debug("POST", "url", req.URL, "payload", string(payload), "attempt", attempt)

		resp, err := c.transport.Send(ctx, req)
		status := resp.Status
		if err != nil {
			status = 0 // transport-error sentinel: retryable
			c.info("request failed", "err", err, "attempt", attempt)
		} else if len(resp.Body) > 0 && len(resp.Body) < 100 {
			c.info("response", "status", status, "body", string(resp.Body))
		} else {
			c.info("response", "status", status)
		}

		d := retry.Decide(attempt, maxAttempts, status, c.cfg.RetryBaseDelay, c.cfg.RetryMaxDelay)
		switch d.Outcome {
		case retry.Succeed:
			c.logSuccess()
			c.processCommands(resp.Body)
			return sendOK
		case retry.FailPermanently:
			if status >= 400 && status < 500 && status != 429 {
				c.logGuidance(status, resp.Body)
				return sendPermanent
			}
			c.info("max retry attempts reached, giving up", "status", status)
			return sendExhausted
		case retry.RetryAfter:
			c.info("retrying", "after", d.Delay,
				"attempt", fmt.Sprintf("%d/%d", attempt+1, maxAttempts))
			c.clock.Sleep(d.Delay)
		}
	}
	// Unreachable if the policy is correct; fail closed.
	return sendExhausted
}

func (c *Client) buildRequest(ctx context.Context, payload []byte) transport.Request {
	url := c.ingestURL()
	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Api-Key":    c.cfg.APIKey,
		"X-Project-Id": c.cfg.ProjectID,
		"User-Agent":   userAgent,
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			// Non-fatal: the key headers still identify the device, and a
			// server that insists on bearer auth will answer 401.
			c.logger.Warn("token exchange failed, sending without bearer token", "err", err)
		} else {
			headers["Authorization"] = "Bearer " + tok
		}
	}
	return transport.Request{URL: url, Headers: headers, Body: payload}
}

func (c *Client) ingestURL() string {
	url := c.cfg.BaseURL + ingestPath
	if c.cfg.SchemaID != "" {
		url += "?schema_id=" + c.cfg.SchemaID
	}
	return url
}

// ─────────────────────────────────────────────────────────────────────────────
// Offline spool
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) spoolPayload(ctx context.Context, payload []byte) {
	if c.cfg.Spool == nil {
		return
	}
	if err := c.cfg.Spool.Enqueue(ctx, payload); err != nil {
		c.logger.Warn("could not spool undelivered payload", "err", err)
		return
	}
	c.info("payload spooled for later delivery")
}

// drainSpool replays buffered payloads after a successful send. Draining
// stops at the first failure; an exhausted-retries payload goes back in
// the buffer.
func (c *Client) drainSpool(ctx context.Context) {
	if c.cfg.Spool == nil {
		return
	}
	for {
		payload, err := c.cfg.Spool.Dequeue(ctx)
		if errors.Is(err, spool.ErrEmpty) {
			return
		}
		if err != nil {
			c.logger.Warn("spool dequeue failed", "err", err)
			return
		}
		c.info("replaying spooled payload")
		res := c.deliver(ctx, payload)
		if res == sendOK {
			continue
		}
		if res == sendExhausted {
			c.spoolPayload(ctx, payload)
		}
		return
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Outcome logging
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) logSuccess() {
	c.info("payload accepted",
		"dashboard", "https://inventronix.club/iot-relay/projects/"+c.cfg.ProjectID+"/payloads")
}

// logGuidance reports a permanent client error with enough context to fix
// it without a debugger attached to the device.
func (c *Client) logGuidance(status int, body []byte) {
	if !c.cfg.VerboseLogging {
		return
	}
	detail := ""
	if len(body) > 0 && len(body) < 512 {
		detail = string(body)
	}
	switch status {
	case 400:
		c.logger.Error("schema validation failed: payload does not match the server-side schema",
			"response", detail,
			"fix", "https://inventronix.club/iot-relay/projects/"+c.cfg.ProjectID+"/schemas")
	case 401:
		c.logger.Error("authentication failed: ProjectID or APIKey is incorrect",
			"fix", "https://inventronix.club/iot-relay")
	default:
		c.logger.Error("request rejected", "status", status, "response", detail)
	}
}

func (c *Client) info(msg string, args ...any) {
	if c.cfg.VerboseLogging {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) debug(msg string, args ...any) {
	if c.cfg.DebugMode {
		c.logger.Debug(msg, args...)
	}
}
