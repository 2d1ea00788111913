package resolve

import (
	"context"
	"fmt"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/registry"
)

// KeyState returns the key state of id, locally or from the witness the
// directory points at.
func (r *Resolver) KeyState(ctx context.Context, rawID string) (kel.KeyState, error) {
	id, err := parseID(rawID)
	if err != nil {
		return kel.KeyState{}, err
	}

	st, ok, err := r.log.KeyState(ctx, id)
	if err != nil {
		return kel.KeyState{}, fmt.Errorf("key state: %w", err)
	}
	if ok {
		return st, nil
	}
	if r.acceptUnverified {
		st, ok, err := r.log.UnverifiedState(ctx, id)
		if err != nil {
			return kel.KeyState{}, fmt.Errorf("key state: %w", err)
		}
		if ok {
			return st, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	addr, ok := r.locate(ctx, string(id))
	if !ok {
		return kel.KeyState{}, ErrNotFound
	}

	if r.cacheRemote {
		events, err := r.fetchLog(ctx, addr, id)
		if err != nil {
			return kel.KeyState{}, err
		}
		return r.cache(ctx, id, events)
	}

	st, err = r.fetch.KeyState(ctx, addr, id)
	if err != nil {
		r.logger.Warn("remote key state fetch failed", "identifier", id, "address", addr, "error", err)
		return kel.KeyState{}, ErrNotFound
	}
	if st.Identifier != id {
		r.logger.Warn("remote key state names another identifier",
			"identifier", id, "address", addr, "got", st.Identifier)
		return kel.KeyState{}, ErrNotFound
	}
	if err := st.WellFormed(); err != nil {
		r.logger.Warn("remote key state malformed", "identifier", id, "address", addr, "error", err)
		return kel.KeyState{}, ErrNotFound
	}
	return st, nil
}

// KeyLog returns the event log of id, locally or from the witness the
// directory points at.
func (r *Resolver) KeyLog(ctx context.Context, rawID string) ([]kel.SignedEvent, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	events, ok, err := r.log.KeyLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("key log: %w", err)
	}
	if ok {
		return events, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	addr, ok := r.locate(ctx, string(id))
	if !ok {
		return nil, ErrNotFound
	}
	events, err = r.fetchLog(ctx, addr, id)
	if err != nil {
		return nil, err
	}
	if r.cacheRemote {
		if _, err := r.cache(ctx, id, events); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// fetchLog fetches a remote log and checks that it folds to a key state
// for id. Every failure is reported as ErrNotFound.
func (r *Resolver) fetchLog(ctx context.Context, addr string, id kel.Identifier) ([]kel.SignedEvent, error) {
	events, err := r.fetch.KeyLog(ctx, addr, id)
	if err != nil {
		r.logger.Warn("remote key log fetch failed", "identifier", id, "address", addr, "error", err)
		return nil, ErrNotFound
	}
	if len(events) == 0 {
		r.logger.Warn("remote key log is empty", "identifier", id, "address", addr)
		return nil, ErrNotFound
	}
	if events[0].Identifier != id {
		r.logger.Warn("remote key log names another identifier",
			"identifier", id, "address", addr, "got", events[0].Identifier)
		return nil, ErrNotFound
	}
	if _, err := r.proc.Replay(events); err != nil {
		r.logger.Warn("remote key log does not verify", "identifier", id, "address", addr, "error", err)
		return nil, ErrNotFound
	}
	return events, nil
}

// cache appends a verified remote log to the local store. The local store
// re-validates every event, so a log that raced with a local write is
// reconciled by the usual rules. Storage failures surface as errors.
func (r *Resolver) cache(ctx context.Context, id kel.Identifier, events []kel.SignedEvent) (kel.KeyState, error) {
	var st kel.KeyState
	for _, ev := range events {
		res, err := r.log.Append(ctx, id, ev)
		if err != nil {
			if _, ok := kel.AsProcessingError(err); ok {
				r.logger.Warn("remote key log conflicts with local log", "identifier", id, "error", err)
				return kel.KeyState{}, ErrNotFound
			}
			return kel.KeyState{}, fmt.Errorf("cache remote log: %w", err)
		}
		st = res.State
	}
	r.logger.Debug("cached remote key log", "identifier", id, "sequence", st.SequenceNumber)
	return st, nil
}

// WitnessAddress returns the address record of wid, locally or from the
// witness the directory points at.
func (r *Resolver) WitnessAddress(ctx context.Context, wid string) (registry.Record, error) {
	if err := registry.ValidateID(wid); err != nil {
		return registry.Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rec, ok, err := r.book.Get(ctx, wid)
	if err != nil {
		return registry.Record{}, fmt.Errorf("witness address: %w", err)
	}
	if ok {
		return rec, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	addr, ok := r.locate(ctx, wid)
	if !ok {
		return registry.Record{}, ErrNotFound
	}
	rec, err = r.fetch.WitnessAddress(ctx, addr, wid)
	if err != nil {
		r.logger.Warn("remote witness address fetch failed", "witness", wid, "address", addr, "error", err)
		return registry.Record{}, ErrNotFound
	}
	if err := rec.Validate(); err != nil {
		r.logger.Warn("remote witness address malformed", "witness", wid, "address", addr, "error", err)
		return registry.Record{}, ErrNotFound
	}
	return rec, nil
}
