package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/roach88/kelwitness/internal/kel"
)

func TestKeyState_Missing(t *testing.T) {
	s := createTestStore(t)
	c := newChain(t, "missing", 0)

	_, ok, err := s.KeyState(context.Background(), c.ID())
	if err != nil {
		t.Fatalf("KeyState() failed: %v", err)
	}
	if ok {
		t.Error("KeyState() found a state for an unknown identifier")
	}

	log, ok, err := s.KeyLog(context.Background(), c.ID())
	if err != nil || ok || len(log) != 0 {
		t.Errorf("KeyLog() = %d events, %v, %v; want none", len(log), ok, err)
	}
}

func TestKeyLog_OrderedAndByteIdentical(t *testing.T) {
	s := createTestStore(t)
	c := newChain(t, "ordered", 4)
	appendAll(t, s, c.Events()...)

	log, ok, err := s.KeyLog(context.Background(), c.ID())
	if err != nil || !ok {
		t.Fatalf("KeyLog() = %v, %v", ok, err)
	}
	for i, ev := range log {
		if ev.SequenceNumber != int64(i) {
			t.Errorf("log[%d].SequenceNumber = %d", i, ev.SequenceNumber)
		}
	}

	stream, err := kel.EncodeStream(log)
	if err != nil {
		t.Fatalf("EncodeStream() failed: %v", err)
	}
	if !bytes.Equal(stream, c.Stream()) {
		t.Error("stored log does not re-encode to the submitted stream")
	}
}

func TestIdentifiers_Sorted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids, err := s.Identifiers(ctx)
	if err != nil {
		t.Fatalf("Identifiers() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Identifiers() on empty store = %v", ids)
	}

	for _, label := range []string{"x", "y", "z"} {
		appendAll(t, s, newChain(t, label, 1).Events()...)
	}
	ids, err = s.Identifiers(ctx)
	if err != nil {
		t.Fatalf("Identifiers() failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Identifiers() = %d, want 3", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("Identifiers() not sorted: %v", ids)
		}
	}
}
