package inventronix

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JakeWritesCode/inventronix-go/spool"
	"github.com/JakeWritesCode/inventronix-go/transport"
)

// Platform endpoints and request defaults.
const (
	defaultBaseURL = "https://api.inventronix.club"
	ingestPath     = "/v1/iot/ingest"
	userAgent      = "inventronix-go/1.0.0"

	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1000 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
	defaultHTTPTimeout    = 10 * time.Second

	defaultMaxCommands = 16
	defaultMaxPulses   = 16
)

// PulseMode selects how pulse deactivations are driven.
type PulseMode int

const (
	// PulsePoll relies on the host control loop calling Client.Loop()
	// frequently. Deactivation never fires early; it can fire late if the
	// loop stalls.
	PulsePoll PulseMode = iota
	// PulseTimer schedules a one-shot timer per activation. The timer
	// fires on its own goroutine and routes through a single dispatch
	// point keyed by the pulse's table index.
	PulseTimer
)

// Config holds construction options for the device client.
type Config struct {
	// ProjectID identifies the Inventronix project. Defaults to the
	// INVENTRONIX_PROJECT_ID env var.
	ProjectID string

	// APIKey authenticates the device. Defaults to INVENTRONIX_API_KEY.
	APIKey string

	// SchemaID optionally selects a server-side validation schema, sent
	// as a query parameter. Defaults to INVENTRONIX_SCHEMA_ID.
	SchemaID string

	// BaseURL is the ingestion endpoint base. Defaults to
	// INVENTRONIX_API_BASE, then the public platform URL.
	BaseURL string

	// RetryAttempts caps delivery attempts per send. Default 3; values
	// below 1 are clamped to 1.
	RetryAttempts int

	// RetryBaseDelay is the first backoff delay. Doubles per attempt up
	// to RetryMaxDelay. Default 1s.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps a single backoff wait. Default 10s. A send
	// therefore blocks at most RetryAttempts × RetryMaxDelay plus
	// transport time.
	RetryMaxDelay time.Duration

	// HTTPTimeout is the per-request transport timeout. Default 10s.
	HTTPTimeout time.Duration

	// VerboseLogging enables progress logging (registrations, retries,
	// dispatches, success/error guidance). INVENTRONIX_VERBOSE env
	// fallback.
	VerboseLogging bool

	// DebugMode enables request/response detail logging.
	// INVENTRONIX_DEBUG env fallback.
	DebugMode bool

	// Logger receives client log output. Defaults to slog.Default().
	Logger *slog.Logger

	// Transport overrides the wire implementation. Defaults to HTTP
	// against BaseURL. See the transport package for the NATS variant.
	Transport transport.Transport

	// Connectivity is consulted before each send; a false answer fails
	// the send immediately without consuming a retry attempt. Defaults to
	// always-connected (the host OS owns the network).
	Connectivity Connectivity

	// Clock abstracts time for retry waits and pulse scheduling. Tests
	// inject a fake; production uses the system clock.
	Clock Clock

	// Spool, when set, buffers payloads whose delivery failed on
	// connectivity or exhausted retries; the buffer is replayed after the
	// next successful send. See the spool package.
	Spool spool.Spool

	// PulseMode selects poll-driven or timer-driven pulse deactivation.
	PulseMode PulseMode

	// MaxCommands and MaxPulses bound the registries. Registrations
	// beyond capacity are logged and dropped, never fatal. Default 16
	// each.
	MaxCommands int
	MaxPulses   int

	// TokenAuth, when true, exchanges the API key for a bearer token via
	// TokenURL and sends it in the Authorization header alongside the key
	// headers.
	TokenAuth bool

	// TokenURL is the token service base URL. Defaults to
	// INVENTRONIX_TOKEN_URL, then BaseURL.
	TokenURL string
}

func (c *Config) applyDefaults() {
	if c.ProjectID == "" {
		c.ProjectID = os.Getenv("INVENTRONIX_PROJECT_ID")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("INVENTRONIX_API_KEY")
	}
	if c.SchemaID == "" {
		c.SchemaID = os.Getenv("INVENTRONIX_SCHEMA_ID")
	}
	if c.BaseURL == "" {
		c.BaseURL = envOr("INVENTRONIX_API_BASE", defaultBaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if !c.VerboseLogging {
		c.VerboseLogging = envBool("INVENTRONIX_VERBOSE", false)
	}
	if !c.DebugMode {
		c.DebugMode = envBool("INVENTRONIX_DEBUG", false)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.MaxCommands <= 0 {
		c.MaxCommands = defaultMaxCommands
	}
	if c.MaxPulses <= 0 {
		c.MaxPulses = defaultMaxPulses
	}
	if c.TokenURL == "" {
		c.TokenURL = envOr("INVENTRONIX_TOKEN_URL", c.BaseURL)
	}
	c.TokenURL = strings.TrimRight(c.TokenURL, "/")
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}
