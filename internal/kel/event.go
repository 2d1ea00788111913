package kel

import (
	"fmt"

	"github.com/roach88/kelwitness/internal/canon"
)

// EventType distinguishes establishment events from interactions.
type EventType string

const (
	// Inception creates an identifier and its first key set.
	Inception EventType = "icp"
	// Rotation replaces the signing keys with the pre-committed next set.
	Rotation EventType = "rot"
	// Interaction extends the chain without changing keys.
	Interaction EventType = "ixn"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case Inception, Rotation, Interaction:
		return true
	}
	return false
}

// IsEstablishment reports whether events of this type carry keys.
func (t EventType) IsEstablishment() bool {
	return t == Inception || t == Rotation
}

// Event is the signed body of one KEL entry. Events are immutable once
// accepted.
type Event struct {
	Identifier     Identifier `json:"identifier"`
	SequenceNumber int64      `json:"sequence_number"`
	EventType      EventType  `json:"event_type"`
	// PriorDigest links to the previous event; empty only for inception.
	PriorDigest       Digest   `json:"prior_digest,omitempty"`
	SigningThreshold  int      `json:"signing_threshold,omitempty"`
	SigningKeys       []string `json:"signing_keys,omitempty"`
	NextKeyCommitment Digest   `json:"next_key_commitment,omitempty"`
}

// Signature is an ed25519 signature by the key at Index in the verifying
// key list.
type Signature struct {
	Index     int    `json:"index"`
	Signature string `json:"signature"`
}

// SignedEvent is an event with its attached signatures, the unit carried
// on the wire and stored in the log.
type SignedEvent struct {
	Event
	Signatures []Signature `json:"signatures"`
}

// fields returns the event body as a canonical object. Zero-valued
// optional fields are omitted, mirroring the JSON tags.
func (e Event) fields() map[string]any {
	m := map[string]any{
		"identifier":      string(e.Identifier),
		"sequence_number": e.SequenceNumber,
		"event_type":      string(e.EventType),
	}
	if e.PriorDigest != "" {
		m["prior_digest"] = string(e.PriorDigest)
	}
	if e.SigningThreshold != 0 {
		m["signing_threshold"] = e.SigningThreshold
	}
	if len(e.SigningKeys) > 0 {
		m["signing_keys"] = e.SigningKeys
	}
	if e.NextKeyCommitment != "" {
		m["next_key_commitment"] = string(e.NextKeyCommitment)
	}
	return m
}

// Canonical returns the bytes that are signed and hashed.
func (e Event) Canonical() ([]byte, error) {
	data, err := canon.Marshal(e.fields())
	if err != nil {
		return nil, fmt.Errorf("canonical event: %w", err)
	}
	return data, nil
}

// Digest returns the event's content digest, the value the next event's
// PriorDigest must carry.
func (e Event) Digest() (Digest, error) {
	data, err := e.Canonical()
	if err != nil {
		return "", err
	}
	return digestOf(canon.Sum(canon.DomainEvent, data)), nil
}

// MarshalCanonical encodes the event together with its signatures. This is
// the per-event framing of an event stream.
func (se SignedEvent) MarshalCanonical() ([]byte, error) {
	m := se.Event.fields()
	sigs := make([]any, len(se.Signatures))
	for i, s := range se.Signatures {
		sigs[i] = map[string]any{"index": s.Index, "signature": s.Signature}
	}
	m["signatures"] = sigs
	data, err := canon.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("canonical signed event: %w", err)
	}
	return data, nil
}

// Commit computes the next-key commitment for a key set and threshold.
// A rotation's threshold and keys must reproduce the prior state's
// commitment exactly.
func Commit(threshold int, keys []string) (Digest, error) {
	sum, err := canon.SumValue(canon.DomainNextKeys, map[string]any{
		"signing_threshold": threshold,
		"signing_keys":      keys,
	})
	if err != nil {
		return "", err
	}
	return digestOf(sum), nil
}
