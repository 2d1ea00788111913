package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kelwitness/internal/kel"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// KeyState returns the current key state of id. ok is false when the
// identifier has no log.
func (s *Store) KeyState(ctx context.Context, id kel.Identifier) (state kel.KeyState, ok bool, err error) {
	st, err := s.readState(ctx, s.db, id)
	if err != nil {
		return kel.KeyState{}, false, fmt.Errorf("read key state: %w", err)
	}
	if st == nil {
		return kel.KeyState{}, false, nil
	}
	return *st, true, nil
}

func (s *Store) readState(ctx context.Context, q querier, id kel.Identifier) (*kel.KeyState, error) {
	var text string
	err := q.QueryRowContext(ctx,
		`SELECT state FROM key_states WHERE identifier = ?`, string(id),
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err := unmarshalState(text)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) hasDigest(ctx context.Context, id kel.Identifier, digest kel.Digest) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM events WHERE identifier = ? AND digest = ?`, string(id), string(digest),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query digest: %w", err)
	}
	return true, nil
}

// KeyLog returns the events of id in sequence order. ok is false when the
// identifier has no log.
func (s *Store) KeyLog(ctx context.Context, id kel.Identifier) (events []kel.SignedEvent, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event FROM events
		WHERE identifier = ?
		ORDER BY seq ASC
	`, string(id))
	if err != nil {
		return nil, false, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, false, fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(text)
		if err != nil {
			return nil, false, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate events: %w", err)
	}
	return events, len(events) > 0, nil
}

// Identifiers returns every identifier with a log, in byte order.
func (s *Store) Identifiers(ctx context.Context) ([]kel.Identifier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier FROM key_states ORDER BY identifier COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query identifiers: %w", err)
	}
	defer rows.Close()

	ids := []kel.Identifier{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		ids = append(ids, kel.Identifier(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return ids, nil
}

// UnverifiedState returns the unverified state stored for id, if any.
func (s *Store) UnverifiedState(ctx context.Context, id kel.Identifier) (kel.KeyState, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM unverified_key_states WHERE identifier = ?`, string(id),
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return kel.KeyState{}, false, nil
	}
	if err != nil {
		return kel.KeyState{}, false, fmt.Errorf("read unverified state: %w", err)
	}
	st, err := unmarshalState(text)
	if err != nil {
		return kel.KeyState{}, false, fmt.Errorf("read unverified state: %w", err)
	}
	return st, true, nil
}
