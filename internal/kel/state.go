package kel

import "slices"

// KeyState is the verified current authority of an identifier: the fold of
// its log up to and including the last accepted event.
type KeyState struct {
	Identifier        Identifier `json:"identifier"`
	SequenceNumber    int64      `json:"sequence_number"`
	LastEventType     EventType  `json:"last_event_type"`
	LastDigest        Digest     `json:"last_digest"`
	SigningThreshold  int        `json:"signing_threshold"`
	SigningKeys       []string   `json:"signing_keys"`
	NextKeyCommitment Digest     `json:"next_key_commitment,omitempty"`
}

// Clone returns a deep copy so callers never share the key slice.
func (s KeyState) Clone() KeyState {
	s.SigningKeys = slices.Clone(s.SigningKeys)
	return s
}

// Equal reports whether two states are identical.
func (s KeyState) Equal(o KeyState) bool {
	return s.Identifier == o.Identifier &&
		s.SequenceNumber == o.SequenceNumber &&
		s.LastEventType == o.LastEventType &&
		s.LastDigest == o.LastDigest &&
		s.SigningThreshold == o.SigningThreshold &&
		slices.Equal(s.SigningKeys, o.SigningKeys) &&
		s.NextKeyCommitment == o.NextKeyCommitment
}

// Transferable reports whether the identifier can still rotate.
func (s KeyState) Transferable() bool {
	return s.NextKeyCommitment != ""
}

// WellFormed checks the structural fields of a state received from outside
// the processor (a peer or an unverified write). It proves nothing about
// the log the state claims to summarise.
func (s KeyState) WellFormed() error {
	if _, err := ParseIdentifier(string(s.Identifier)); err != nil {
		return errorf(ErrCodeMalformed, s.Identifier, s.SequenceNumber, "%v", err)
	}
	if s.SequenceNumber < 0 {
		return errorf(ErrCodeMalformed, s.Identifier, s.SequenceNumber, "negative sequence number")
	}
	if !s.LastEventType.Valid() {
		return errorf(ErrCodeMalformed, s.Identifier, s.SequenceNumber, "unknown event type %q", s.LastEventType)
	}
	if _, err := ParseDigest(string(s.LastDigest)); err != nil {
		return errorf(ErrCodeMalformed, s.Identifier, s.SequenceNumber, "%v", err)
	}
	return checkKeys(s.Identifier, s.SequenceNumber, s.SigningThreshold, s.SigningKeys, s.NextKeyCommitment)
}
