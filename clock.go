package inventronix

import (
	"context"
	"time"
)

// Clock abstracts time for the delivery engine and the pulse table so
// tests can drive both without real waiting.
type Clock interface {
	Now() time.Time
	// Sleep blocks the caller. Only the delivery engine's retry waits use
	// it; blocking there is bounded by RetryAttempts × RetryMaxDelay.
	Sleep(d time.Duration)
	// AfterFunc schedules fn to run once after d, on its own goroutine.
	// Used only in PulseTimer mode. No cancellation is exposed: at most
	// one timer per pulse entry is outstanding by construction.
	AfterFunc(d time.Duration, fn func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

func (systemClock) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Connectivity reports whether the network path to the ingestion endpoint
// is usable. Consulted once per send, before the first attempt; a false
// answer fails the send without consuming a retry attempt.
//
// transport.Probe and transport.NATS both satisfy this.
type Connectivity interface {
	Ensure(ctx context.Context) bool
}

// alwaysConnected is the default Connectivity: the host OS owns the
// network, so the client assumes it is up and lets the transport error
// path handle outages.
type alwaysConnected struct{}

func (alwaysConnected) Ensure(context.Context) bool { return true }
