// Package spool buffers telemetry payloads that could not be delivered —
// network down, or retry budget exhausted against a flapping endpoint —
// so they can be replayed after the next successful send.
//
// Memory is the default for single-process devices; Redis suits gateways
// that must survive restarts or share a buffer between processes.
package spool

import (
	"context"
	"errors"
	"sync"
)

// ErrEmpty is returned by Dequeue when nothing is buffered.
var ErrEmpty = errors.New("spool: empty")

// ErrFull is returned by Enqueue when the spool is at capacity. The
// payload is dropped; the spool never grows unbounded.
var ErrFull = errors.New("spool: full")

// Spool is a FIFO buffer of undelivered payloads.
type Spool interface {
	Enqueue(ctx context.Context, payload []byte) error
	// Dequeue removes and returns the oldest payload, or ErrEmpty.
	Dequeue(ctx context.Context) ([]byte, error)
	// Len reports how many payloads are buffered.
	Len(ctx context.Context) (int, error)
}

// Memory is an in-process bounded FIFO spool.
type Memory struct {
	mu      sync.Mutex
	entries [][]byte
	cap     int
}

// NewMemory returns a Memory spool holding at most capacity payloads.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 64
	}
	return &Memory{cap: capacity}
}

func (m *Memory) Enqueue(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.cap {
		return ErrFull
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.entries = append(m.entries, buf)
	return nil
}

func (m *Memory) Dequeue(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil, ErrEmpty
	}
	payload := m.entries[0]
	m.entries = m.entries[1:]
	return payload, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}
