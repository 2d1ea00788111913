package store

import (
	"context"
	"errors"
	"testing"
)

func TestVerify_StoredStateMatchesReplay(t *testing.T) {
	s := createTestStore(t)
	c := newChain(t, "verify", 3)
	appendAll(t, s, c.Events()...)
	appendAll(t, s, c.Rotate(), c.Interact())

	st, err := s.Verify(context.Background(), c.ID())
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if st.SequenceNumber != 5 {
		t.Errorf("SequenceNumber = %d, want 5", st.SequenceNumber)
	}
}

func TestVerify_DetectsTamperedState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := newChain(t, "tampered", 2)
	appendAll(t, s, c.Events()...)

	st, _, _ := s.KeyState(ctx, c.ID())
	st.SequenceNumber = 1
	text, err := marshalState(st)
	if err != nil {
		t.Fatalf("marshalState() failed: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE key_states SET state = ? WHERE identifier = ?`, text, string(c.ID())); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	_, err = s.Verify(ctx, c.ID())
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Verify() error = %v, want MismatchError", err)
	}
	if mismatch.Replayed.SequenceNumber != 2 {
		t.Errorf("Replayed.SequenceNumber = %d, want 2", mismatch.Replayed.SequenceNumber)
	}

	results, err := s.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll() failed: %v", err)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Errorf("VerifyAll() = %+v, want one failure", results)
	}
}

func TestVerify_NoLog(t *testing.T) {
	s := createTestStore(t)
	c := newChain(t, "nolog", 0)
	if _, err := s.Verify(context.Background(), c.ID()); err == nil {
		t.Error("Verify() on unknown identifier succeeded")
	}
}
