package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/testutil"
)

func TestAppend_InceptionCreatesLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := testutil.NewController(t, "append", 2, 1)
	icp := c.Incept()

	res, err := s.Append(ctx, c.ID(), icp)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if !res.Accepted || res.Existed {
		t.Errorf("Append() = accepted %v existed %v, want true false", res.Accepted, res.Existed)
	}

	res, err = s.Append(ctx, c.ID(), c.Rotate())
	if err != nil {
		t.Fatalf("Append(rotation) failed: %v", err)
	}
	if !res.Accepted || !res.Existed {
		t.Errorf("Append(rotation) = accepted %v existed %v, want true true", res.Accepted, res.Existed)
	}
	if res.State.SequenceNumber != 1 {
		t.Errorf("SequenceNumber = %d, want 1", res.State.SequenceNumber)
	}

	got, ok, err := s.KeyState(ctx, c.ID())
	if err != nil || !ok {
		t.Fatalf("KeyState() = %v, %v", ok, err)
	}
	if !got.Equal(res.State) {
		t.Errorf("stored state %+v != returned state %+v", got, res.State)
	}
}

func TestAppend_DuplicateIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := newChain(t, "dup", 2)
	events := c.Events()
	appendAll(t, s, events...)

	before, _, _ := s.KeyState(ctx, c.ID())

	// Retransmit both the latest and an older event.
	for _, ev := range []kel.SignedEvent{events[2], events[0]} {
		res, err := s.Append(ctx, c.ID(), ev)
		if err != nil {
			t.Fatalf("Append(duplicate seq=%d) failed: %v", ev.SequenceNumber, err)
		}
		if res.Accepted {
			t.Errorf("duplicate seq=%d reported as accepted", ev.SequenceNumber)
		}
		if !res.State.Equal(before) {
			t.Errorf("duplicate changed returned state")
		}
	}

	after, _, _ := s.KeyState(ctx, c.ID())
	if !after.Equal(before) {
		t.Errorf("state changed after duplicates")
	}
	log, _, _ := s.KeyLog(ctx, c.ID())
	if len(log) != 3 {
		t.Errorf("log length = %d, want 3", len(log))
	}
}

func TestAppend_RejectionLeavesStateUnchanged(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := newChain(t, "reject", 1)
	appendAll(t, s, c.Events()...)
	before, _, _ := s.KeyState(ctx, c.ID())

	draft := c.Draft(kel.Interaction)
	draft.SequenceNumber = 5

	_, err := s.Append(ctx, c.ID(), c.Sign(draft))
	if !kel.IsCode(err, kel.ErrCodeOutOfOrder) {
		t.Fatalf("Append() error = %v, want OUT_OF_ORDER", err)
	}

	rot := c.Sign(c.Draft(kel.Rotation), c.Keys(1)...)
	_, err = s.Append(ctx, c.ID(), rot)
	if !kel.IsCode(err, kel.ErrCodeAuthenticationFailure) {
		t.Fatalf("Append() error = %v, want AUTHENTICATION_FAILURE", err)
	}

	after, _, _ := s.KeyState(ctx, c.ID())
	if !after.Equal(before) {
		t.Errorf("rejected event changed state")
	}
	log, _, _ := s.KeyLog(ctx, c.ID())
	if len(log) != 2 {
		t.Errorf("log length = %d, want 2", len(log))
	}
}

func TestAppend_ForkConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := newChain(t, "fork", 0)
	appendAll(t, s, c.Events()...)

	// Two different events claiming sequence 1: the second one loses.
	first := c.Sign(c.Draft(kel.Interaction))
	rival := c.Sign(c.Draft(kel.Rotation))
	appendAll(t, s, first)

	_, err := s.Append(ctx, c.ID(), rival)
	if !kel.IsCode(err, kel.ErrCodeOutOfOrder) {
		t.Fatalf("rival at same sequence: error = %v, want OUT_OF_ORDER", err)
	}

	c.Accept(first)
	stale := c.Draft(kel.Interaction)
	icpDigest, _ := c.Events()[0].Digest()
	stale.PriorDigest = icpDigest
	_, err = s.Append(ctx, c.ID(), c.Sign(stale))
	if !kel.IsCode(err, kel.ErrCodeForkConflict) {
		t.Fatalf("stale prior digest: error = %v, want FORK_CONFLICT", err)
	}
}

func TestAppend_ConcurrentSameIdentifier(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := newChain(t, "race", 0)
	appendAll(t, s, c.Events()...)

	// Many distinct candidates for sequence 1.
	const writers = 16
	candidates := make([]kel.SignedEvent, writers)
	for i := range candidates {
		if i%2 == 0 {
			candidates[i] = c.Sign(c.Draft(kel.Interaction))
		} else {
			draft := c.Draft(kel.Rotation)
			// Valid rotations with distinct bodies, all competing for
			// sequence 1.
			if i > 1 {
				draft.NextKeyCommitment = c.Commitment(i)
			}
			candidates[i] = c.Sign(draft)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for _, ev := range candidates {
		wg.Add(1)
		go func(ev kel.SignedEvent) {
			defer wg.Done()
			res, err := s.Append(ctx, c.ID(), ev)
			var pe *kel.ProcessingError
			if err != nil && !errors.As(err, &pe) {
				t.Errorf("Append() storage error: %v", err)
				return
			}
			if err == nil && res.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(ev)
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}

	log, _, err := s.KeyLog(ctx, c.ID())
	if err != nil {
		t.Fatalf("KeyLog() failed: %v", err)
	}
	seen := map[int64]bool{}
	for _, ev := range log {
		if seen[ev.SequenceNumber] {
			t.Errorf("sequence %d stored twice", ev.SequenceNumber)
		}
		seen[ev.SequenceNumber] = true
	}
	if len(log) != 2 {
		t.Errorf("log length = %d, want 2", len(log))
	}
	if _, err := s.Verify(ctx, c.ID()); err != nil {
		t.Errorf("Verify() after race: %v", err)
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("lock entries leaked: %d", n)
	}
}

func TestAppend_ConcurrentDifferentIdentifiers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const ids = 8
	chains := make([]*testutil.Controller, ids)
	for i := range chains {
		chains[i] = newChain(t, "parallel-"+string(rune('a'+i)), 5)
	}

	var wg sync.WaitGroup
	for _, c := range chains {
		wg.Add(1)
		go func(c *testutil.Controller) {
			defer wg.Done()
			for _, ev := range c.Events() {
				if _, err := s.Append(ctx, c.ID(), ev); err != nil {
					t.Errorf("Append(%s, %d) failed: %v", c.ID(), ev.SequenceNumber, err)
					return
				}
			}
		}(c)
	}
	wg.Wait()

	for _, c := range chains {
		st, ok, err := s.KeyState(ctx, c.ID())
		if err != nil || !ok {
			t.Fatalf("KeyState(%s) = %v, %v", c.ID(), ok, err)
		}
		if st.SequenceNumber != 5 {
			t.Errorf("KeyState(%s).SequenceNumber = %d, want 5", c.ID(), st.SequenceNumber)
		}
	}
}

func TestAppend_CanceledWhileWaitingForLock(t *testing.T) {
	s := createTestStore(t)
	c := newChain(t, "cancel", 0)

	unlock, err := s.locks.lock(context.Background(), string(c.ID()))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Append(ctx, c.ID(), c.Events()[0]); !errors.Is(err, context.Canceled) {
		t.Errorf("Append() error = %v, want context.Canceled", err)
	}
}

func TestPutUnverifiedState_CreatedThenUpdated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := newChain(t, "unverified", 0)
	st, err := kel.NewProcessor().Replay(c.Events())
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}

	created, err := s.PutUnverifiedState(ctx, st)
	if err != nil || !created {
		t.Fatalf("first PutUnverifiedState() = %v, %v; want created", created, err)
	}

	st.SequenceNumber = 9
	created, err = s.PutUnverifiedState(ctx, st)
	if err != nil || created {
		t.Fatalf("second PutUnverifiedState() = %v, %v; want updated", created, err)
	}

	got, ok, err := s.UnverifiedState(ctx, c.ID())
	if err != nil || !ok {
		t.Fatalf("UnverifiedState() = %v, %v", ok, err)
	}
	if got.SequenceNumber != 9 {
		t.Errorf("SequenceNumber = %d, want 9", got.SequenceNumber)
	}

	// Unverified states never appear as verified ones.
	if _, ok, _ := s.KeyState(ctx, c.ID()); ok {
		t.Error("unverified state visible through KeyState()")
	}
}
