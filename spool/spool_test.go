package spool

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(8)

	for _, p := range []string{"a", "b", "c"} {
		if err := s.Enqueue(ctx, []byte(p)); err != nil {
			t.Fatalf("enqueue %q: %v", p, err)
		}
	}
	if n, _ := s.Len(ctx); n != 3 {
		t.Fatalf("len = %d, want 3", n)
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := s.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if string(got) != want {
			t.Errorf("dequeue = %q, want %q", got, want)
		}
	}
	if _, err := s.Dequeue(ctx); !errors.Is(err, ErrEmpty) {
		t.Errorf("dequeue on empty: %v, want ErrEmpty", err)
	}
}

func TestMemoryBounded(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(2)
	_ = s.Enqueue(ctx, []byte("a"))
	_ = s.Enqueue(ctx, []byte("b"))
	if err := s.Enqueue(ctx, []byte("c")); !errors.Is(err, ErrFull) {
		t.Errorf("enqueue beyond capacity: %v, want ErrFull", err)
	}
	if n, _ := s.Len(ctx); n != 2 {
		t.Errorf("len = %d, want 2", n)
	}
}

func TestMemoryCopiesPayload(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(4)
	buf := []byte("original")
	_ = s.Enqueue(ctx, buf)
	copy(buf, "mutated!")
	got, err := s.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("payload aliased caller buffer: %q", got)
	}
}
