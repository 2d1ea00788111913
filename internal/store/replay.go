package store

import (
	"context"
	"fmt"

	"github.com/roach88/kelwitness/internal/kel"
)

// MismatchError reports a cached key state that differs from the fold of
// its log.
type MismatchError struct {
	Identifier kel.Identifier
	Cached     kel.KeyState
	Replayed   kel.KeyState
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("cached key state of %s (sequence %d) differs from replayed log (sequence %d)",
		e.Identifier, e.Cached.SequenceNumber, e.Replayed.SequenceNumber)
}

// Verify replays the stored log of id from empty state and checks that it
// reproduces the cached key state. It returns the replayed state.
func (s *Store) Verify(ctx context.Context, id kel.Identifier) (kel.KeyState, error) {
	events, ok, err := s.KeyLog(ctx, id)
	if err != nil {
		return kel.KeyState{}, fmt.Errorf("verify %s: %w", id, err)
	}
	if !ok {
		return kel.KeyState{}, fmt.Errorf("verify %s: no log", id)
	}

	replayed, err := s.proc.Replay(events)
	if err != nil {
		return kel.KeyState{}, fmt.Errorf("verify %s: %w", id, err)
	}

	cached, ok, err := s.KeyState(ctx, id)
	if err != nil {
		return kel.KeyState{}, fmt.Errorf("verify %s: %w", id, err)
	}
	if !ok || !cached.Equal(replayed) {
		return replayed, &MismatchError{Identifier: id, Cached: cached, Replayed: replayed}
	}
	return replayed, nil
}

// VerifyResult is the outcome of verifying one identifier.
type VerifyResult struct {
	Identifier kel.Identifier
	State      kel.KeyState
	Err        error
}

// VerifyAll verifies every stored identifier. Per-identifier failures are
// reported in the results; the error is only for failing to enumerate.
func (s *Store) VerifyAll(ctx context.Context) ([]VerifyResult, error) {
	ids, err := s.Identifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify all: %w", err)
	}
	results := make([]VerifyResult, 0, len(ids))
	for _, id := range ids {
		st, err := s.Verify(ctx, id)
		results = append(results, VerifyResult{Identifier: id, State: st, Err: err})
	}
	return results, nil
}
