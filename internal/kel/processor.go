package kel

import "crypto/ed25519"

// Verifier checks a signature over msg by the raw public key pub.
type Verifier interface {
	Verify(pub, msg, sig []byte) bool
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(pub, msg, sig []byte) bool

// Verify calls f.
func (f VerifierFunc) Verify(pub, msg, sig []byte) bool { return f(pub, msg, sig) }

// Ed25519Verifier verifies ed25519 signatures.
type Ed25519Verifier struct{}

// Verify implements Verifier.
func (Ed25519Verifier) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// Processor folds signed events into key states. It holds no state of its
// own and is safe for concurrent use.
type Processor struct {
	verifier Verifier
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithVerifier replaces the ed25519 signature check.
func WithVerifier(v Verifier) ProcessorOption {
	return func(p *Processor) {
		p.verifier = v
	}
}

// NewProcessor returns a processor verifying ed25519 signatures unless
// overridden.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{verifier: Ed25519Verifier{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates ev against current, the state of id before the event,
// and returns the state after it. current is nil for an identifier with no
// accepted events. Process never mutates current; on error the caller's
// state is unchanged by definition.
//
// An event whose digest equals current's last digest is a retransmission
// and returns a copy of current without error.
func (p *Processor) Process(id Identifier, current *KeyState, ev SignedEvent) (KeyState, error) {
	if err := checkEvent(id, ev.Event); err != nil {
		return KeyState{}, err
	}

	body, err := ev.Canonical()
	if err != nil {
		return KeyState{}, errorf(ErrCodeMalformed, id, ev.SequenceNumber, "%v", err)
	}
	digest, err := ev.Digest()
	if err != nil {
		return KeyState{}, errorf(ErrCodeMalformed, id, ev.SequenceNumber, "%v", err)
	}

	if current == nil {
		return p.incept(id, ev, body, digest)
	}

	if digest == current.LastDigest {
		return current.Clone(), nil
	}
	if ev.EventType == Inception || ev.SequenceNumber != current.SequenceNumber+1 {
		return KeyState{}, errorf(ErrCodeOutOfOrder, id, ev.SequenceNumber,
			"sequence number %d, want %d", ev.SequenceNumber, current.SequenceNumber+1)
	}
	if ev.PriorDigest != current.LastDigest {
		return KeyState{}, errorf(ErrCodeForkConflict, id, ev.SequenceNumber,
			"prior digest %s does not match last accepted event %s", ev.PriorDigest, current.LastDigest)
	}
	if err := p.authenticate(id, ev, body, current.SigningThreshold, current.SigningKeys); err != nil {
		return KeyState{}, err
	}

	next := current.Clone()
	next.SequenceNumber = ev.SequenceNumber
	next.LastEventType = ev.EventType
	next.LastDigest = digest

	if ev.EventType == Rotation {
		if current.NextKeyCommitment == "" {
			return KeyState{}, errorf(ErrCodeCommitmentMismatch, id, ev.SequenceNumber,
				"identifier is non-transferable")
		}
		commitment, err := Commit(ev.SigningThreshold, ev.SigningKeys)
		if err != nil {
			return KeyState{}, errorf(ErrCodeMalformed, id, ev.SequenceNumber, "%v", err)
		}
		if commitment != current.NextKeyCommitment {
			return KeyState{}, errorf(ErrCodeCommitmentMismatch, id, ev.SequenceNumber,
				"rotated keys commit to %s, want %s", commitment, current.NextKeyCommitment)
		}
		next.SigningThreshold = ev.SigningThreshold
		next.SigningKeys = append([]string(nil), ev.SigningKeys...)
		next.NextKeyCommitment = ev.NextKeyCommitment
	}
	return next, nil
}

func (p *Processor) incept(id Identifier, ev SignedEvent, body []byte, digest Digest) (KeyState, error) {
	if ev.EventType != Inception || ev.SequenceNumber != 0 {
		return KeyState{}, errorf(ErrCodeOutOfOrder, id, ev.SequenceNumber,
			"first event must be an inception at sequence 0, got %s at %d", ev.EventType, ev.SequenceNumber)
	}
	if string(id) != ev.SigningKeys[0] {
		return KeyState{}, errorf(ErrCodeMalformed, id, 0,
			"identifier is not derived from the first signing key")
	}
	if err := p.authenticate(id, ev, body, ev.SigningThreshold, ev.SigningKeys); err != nil {
		return KeyState{}, err
	}
	return KeyState{
		Identifier:        id,
		SequenceNumber:    0,
		LastEventType:     Inception,
		LastDigest:        digest,
		SigningThreshold:  ev.SigningThreshold,
		SigningKeys:       append([]string(nil), ev.SigningKeys...),
		NextKeyCommitment: ev.NextKeyCommitment,
	}, nil
}

// authenticate counts distinct key indices carrying a valid signature over
// body and requires at least threshold of them.
func (p *Processor) authenticate(id Identifier, ev SignedEvent, body []byte, threshold int, keys []string) error {
	seen := make(map[int]bool, len(ev.Signatures))
	valid := 0
	for _, sig := range ev.Signatures {
		if sig.Index < 0 || sig.Index >= len(keys) || seen[sig.Index] {
			continue
		}
		pub, err := DecodeKey(keys[sig.Index])
		if err != nil {
			continue
		}
		raw, err := b64.DecodeString(sig.Signature)
		if err != nil {
			continue
		}
		if p.verifier.Verify(pub, body, raw) {
			seen[sig.Index] = true
			valid++
		}
	}
	if valid < threshold {
		return errorf(ErrCodeAuthenticationFailure, id, ev.SequenceNumber,
			"%d valid signatures, threshold %d", valid, threshold)
	}
	return nil
}

// Replay folds events from an empty state. It is the reference definition
// of an identifier's key state: a stored state must always equal the replay
// of its stored log.
func (p *Processor) Replay(events []SignedEvent) (KeyState, error) {
	if len(events) == 0 {
		return KeyState{}, errorf(ErrCodeMalformed, "", 0, "empty event log")
	}
	id := events[0].Identifier
	var state *KeyState
	for _, ev := range events {
		next, err := p.Process(id, state, ev)
		if err != nil {
			return KeyState{}, err
		}
		state = &next
	}
	return *state, nil
}

// checkEvent enforces structural rules that hold regardless of state.
func checkEvent(id Identifier, ev Event) error {
	seq := ev.SequenceNumber
	if _, err := ParseIdentifier(string(id)); err != nil {
		return errorf(ErrCodeMalformed, id, seq, "%v", err)
	}
	if ev.Identifier != id {
		return errorf(ErrCodeMalformed, id, seq, "event names identifier %s", ev.Identifier)
	}
	if !ev.EventType.Valid() {
		return errorf(ErrCodeMalformed, id, seq, "unknown event type %q", ev.EventType)
	}
	if seq < 0 {
		return errorf(ErrCodeMalformed, id, seq, "negative sequence number")
	}
	switch {
	case seq == 0 && ev.PriorDigest != "":
		return errorf(ErrCodeMalformed, id, seq, "sequence 0 carries a prior digest")
	case seq > 0 && ev.PriorDigest == "":
		return errorf(ErrCodeMalformed, id, seq, "missing prior digest")
	case seq > 0:
		if _, err := ParseDigest(string(ev.PriorDigest)); err != nil {
			return errorf(ErrCodeMalformed, id, seq, "%v", err)
		}
	}

	if ev.EventType.IsEstablishment() {
		return checkKeys(id, seq, ev.SigningThreshold, ev.SigningKeys, ev.NextKeyCommitment)
	}
	if ev.SigningThreshold != 0 || len(ev.SigningKeys) != 0 || ev.NextKeyCommitment != "" {
		return errorf(ErrCodeMalformed, id, seq, "interaction carries key material")
	}
	return nil
}

func checkKeys(id Identifier, seq int64, threshold int, keys []string, commitment Digest) error {
	if len(keys) == 0 {
		return errorf(ErrCodeMalformed, id, seq, "no signing keys")
	}
	if threshold < 1 || threshold > len(keys) {
		return errorf(ErrCodeMalformed, id, seq, "threshold %d outside [1, %d]", threshold, len(keys))
	}
	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		if _, err := DecodeKey(k); err != nil {
			return errorf(ErrCodeMalformed, id, seq, "signing key %d: %v", i, err)
		}
		if seen[k] {
			return errorf(ErrCodeMalformed, id, seq, "duplicate signing key %d", i)
		}
		seen[k] = true
	}
	if commitment != "" {
		if _, err := ParseDigest(string(commitment)); err != nil {
			return errorf(ErrCodeMalformed, id, seq, "next key commitment: %v", err)
		}
	}
	return nil
}
