package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/registry"
)

// Submit validates and appends a stream of signed events for id, then
// announces this witness for id.
//
// Events are appended in order and the first rejection stops the
// submission; events before it stay persisted. The announcement happens
// whenever the call succeeded or persisted at least one event. A
// rejection is returned as the *kel.ProcessingError from the processor.
func (r *Resolver) Submit(ctx context.Context, rawID string, stream []byte) (Outcome, error) {
	id, err := parseID(rawID)
	if err != nil {
		return 0, err
	}
	events, err := kel.ParseStream(stream)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, ev := range events {
		if ev.Identifier != id {
			return 0, fmt.Errorf("%w: event %d names identifier %q", ErrMalformed, ev.SequenceNumber, ev.Identifier)
		}
	}

	var (
		existed   bool
		persisted bool
		appendErr error
	)
	for i, ev := range events {
		res, err := r.log.Append(ctx, id, ev)
		if err != nil {
			appendErr = err
			break
		}
		if i == 0 {
			existed = res.Existed
		}
		persisted = persisted || res.Accepted
	}

	if appendErr == nil || persisted {
		r.announce(ctx, string(id))
	}
	if appendErr != nil {
		if _, ok := kel.AsProcessingError(appendErr); ok {
			r.logger.Info("event rejected", "identifier", id, "error", appendErr)
			return 0, appendErr
		}
		return 0, fmt.Errorf("submit: %w", appendErr)
	}
	return outcome(existed), nil
}

// PutWitnessAddress stores rec for wid, replacing any earlier record, and
// announces this witness for wid.
func (r *Resolver) PutWitnessAddress(ctx context.Context, wid string, rec registry.Record) (Outcome, error) {
	created, err := r.book.Put(ctx, wid, rec)
	if err != nil {
		if errors.Is(err, registry.ErrInvalid) {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return 0, fmt.Errorf("put witness address: %w", err)
	}
	r.announce(ctx, wid)
	return outcome(!created), nil
}

// PutUnverifiedKeyState stores a key state that arrives without a log and
// announces this witness for its identifier. It returns ErrDisabled
// unless unverified states are accepted.
func (r *Resolver) PutUnverifiedKeyState(ctx context.Context, rawID string, st kel.KeyState) (Outcome, error) {
	if !r.acceptUnverified {
		return 0, ErrDisabled
	}
	id, err := parseID(rawID)
	if err != nil {
		return 0, err
	}
	if st.Identifier == "" {
		st.Identifier = id
	}
	if st.Identifier != id {
		return 0, fmt.Errorf("%w: state names identifier %q", ErrMalformed, st.Identifier)
	}
	if err := st.WellFormed(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	created, err := r.log.PutUnverifiedState(ctx, st)
	if err != nil {
		return 0, fmt.Errorf("put unverified key state: %w", err)
	}
	r.announce(ctx, string(id))
	return outcome(!created), nil
}
