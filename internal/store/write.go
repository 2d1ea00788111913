package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kelwitness/internal/kel"
)

// AppendResult describes the outcome of a successful Append.
type AppendResult struct {
	// State is the identifier's key state after the call.
	State kel.KeyState
	// Accepted is false when the event was already in the log.
	Accepted bool
	// Existed reports whether the identifier had a log before the call.
	Existed bool
}

// Append validates ev against the stored state of id and persists it.
//
// An event whose digest is already in the identifier's log is a
// retransmission: nothing is written and the current state is returned with
// Accepted false. A processing rejection is returned as the
// *kel.ProcessingError from the processor and writes nothing. Any other
// error is a storage failure.
func (s *Store) Append(ctx context.Context, id kel.Identifier, ev kel.SignedEvent) (AppendResult, error) {
	digest, err := ev.Digest()
	if err != nil {
		return AppendResult{}, &kel.ProcessingError{
			Code: kel.ErrCodeMalformed, Identifier: id, Sequence: ev.SequenceNumber, Message: err.Error(),
		}
	}

	unlock, err := s.locks.lock(ctx, string(id))
	if err != nil {
		return AppendResult{}, fmt.Errorf("append event: %w", err)
	}
	defer unlock()

	current, err := s.readState(ctx, s.db, id)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append event: %w", err)
	}
	existed := current != nil

	if existed {
		dup, err := s.hasDigest(ctx, id, digest)
		if err != nil {
			return AppendResult{}, fmt.Errorf("append event: %w", err)
		}
		if dup {
			return AppendResult{State: current.Clone(), Existed: true}, nil
		}
	}

	next, err := s.proc.Process(id, current, ev)
	if err != nil {
		s.logger.Debug("event rejected",
			"identifier", id,
			"sequence", ev.SequenceNumber,
			"error", err)
		return AppendResult{}, err
	}

	if err := s.writeEvent(ctx, id, digest, ev, next); err != nil {
		return AppendResult{}, fmt.Errorf("append event: %w", err)
	}

	s.logger.Debug("event appended",
		"identifier", id,
		"sequence", next.SequenceNumber,
		"event_type", ev.EventType)
	return AppendResult{State: next, Accepted: true, Existed: existed}, nil
}

// writeEvent inserts the event row and upserts the state row atomically.
func (s *Store) writeEvent(ctx context.Context, id kel.Identifier, digest kel.Digest, ev kel.SignedEvent, next kel.KeyState) error {
	eventJSON, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	stateJSON, err := marshalState(next)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (identifier, seq, digest, event_type, event)
		VALUES (?, ?, ?, ?, ?)
	`, string(id), ev.SequenceNumber, string(digest), string(ev.EventType), eventJSON)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO key_states (identifier, seq, last_digest, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			seq = excluded.seq,
			last_digest = excluded.last_digest,
			state = excluded.state
	`, string(id), next.SequenceNumber, string(next.LastDigest), stateJSON)
	if err != nil {
		return fmt.Errorf("write key state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PutUnverifiedState stores st without any log behind it, replacing an
// earlier unverified state for the same identifier. created reports whether
// no unverified state existed before.
func (s *Store) PutUnverifiedState(ctx context.Context, st kel.KeyState) (created bool, err error) {
	stateJSON, err := marshalState(st)
	if err != nil {
		return false, fmt.Errorf("put unverified state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("put unverified state: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM unverified_key_states WHERE identifier = ?`, string(st.Identifier),
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("put unverified state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO unverified_key_states (identifier, state) VALUES (?, ?)
		ON CONFLICT(identifier) DO UPDATE SET state = excluded.state
	`, string(st.Identifier), stateJSON)
	if err != nil {
		return false, fmt.Errorf("put unverified state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put unverified state: commit: %w", err)
	}
	return created, nil
}
