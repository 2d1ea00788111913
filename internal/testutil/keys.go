// Package testutil builds deterministic key material and signed event
// chains for tests.
//
// Every key is derived from a label, so the same test produces
// byte-identical events, digests and golden files on every run.
package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/roach88/kelwitness/internal/kel"
)

// Key derives an ed25519 private key from label.
func Key(label string) ed25519.PrivateKey {
	seed := sha256.Sum256([]byte(label))
	return ed25519.NewKeyFromSeed(seed[:])
}

// Controller plays the role of an identifier's owner: it holds the current
// and pre-committed key generations and emits correctly chained, signed
// events.
//
// Controller is not safe for concurrent use.
type Controller struct {
	t         testing.TB
	label     string
	width     int
	threshold int

	gen    int
	seq    int64
	last   kel.Digest
	events []kel.SignedEvent
}

// NewController returns a controller whose key generations hold width keys
// each and require threshold signatures.
func NewController(t testing.TB, label string, width, threshold int) *Controller {
	t.Helper()
	if width < 1 || threshold < 1 || threshold > width {
		t.Fatalf("testutil: invalid controller shape width=%d threshold=%d", width, threshold)
	}
	return &Controller{t: t, label: label, width: width, threshold: threshold, seq: -1}
}

// Keys returns the private keys of generation gen.
func (c *Controller) Keys(gen int) []ed25519.PrivateKey {
	keys := make([]ed25519.PrivateKey, c.width)
	for i := range keys {
		keys[i] = Key(fmt.Sprintf("%s/%d/%d", c.label, gen, i))
	}
	return keys
}

// Current returns the keys authoritative for the next event.
func (c *Controller) Current() []ed25519.PrivateKey { return c.Keys(c.gen) }

// Threshold returns the signing threshold of every generation.
func (c *Controller) Threshold() int { return c.threshold }

// ID returns the identifier incepted by the first key of generation 0.
func (c *Controller) ID() kel.Identifier {
	return kel.IdentifierFor(c.Keys(0)[0].Public().(ed25519.PublicKey))
}

// Commitment returns the next-key commitment to generation gen.
func (c *Controller) Commitment(gen int) kel.Digest {
	c.t.Helper()
	d, err := kel.Commit(c.threshold, kel.PublicKeys(c.Keys(gen)...))
	if err != nil {
		c.t.Fatalf("testutil: commit: %v", err)
	}
	return d
}

// Draft returns the unsigned body of the next event of type typ without
// recording it. Tests tamper with drafts and sign them with Sign.
func (c *Controller) Draft(typ kel.EventType) kel.Event {
	ev := kel.Event{
		Identifier:     c.ID(),
		SequenceNumber: c.seq + 1,
		EventType:      typ,
		PriorDigest:    c.last,
	}
	switch typ {
	case kel.Inception:
		ev.SigningThreshold = c.threshold
		ev.SigningKeys = kel.PublicKeys(c.Keys(0)...)
		ev.NextKeyCommitment = c.Commitment(1)
	case kel.Rotation:
		ev.SigningThreshold = c.threshold
		ev.SigningKeys = kel.PublicKeys(c.Keys(c.gen + 1)...)
		ev.NextKeyCommitment = c.Commitment(c.gen + 2)
	}
	return ev
}

// Sign signs ev with keys, or with the current generation when keys is
// empty.
func (c *Controller) Sign(ev kel.Event, keys ...ed25519.PrivateKey) kel.SignedEvent {
	c.t.Helper()
	if len(keys) == 0 {
		keys = c.Current()
	}
	se, err := kel.SignEvent(ev, keys...)
	if err != nil {
		c.t.Fatalf("testutil: sign: %v", err)
	}
	return se
}

// Accept records se as the controller's latest event, advancing the key
// generation on rotation.
func (c *Controller) Accept(se kel.SignedEvent) kel.SignedEvent {
	c.t.Helper()
	d, err := se.Digest()
	if err != nil {
		c.t.Fatalf("testutil: digest: %v", err)
	}
	if se.EventType == kel.Rotation {
		c.gen++
	}
	c.seq = se.SequenceNumber
	c.last = d
	c.events = append(c.events, se)
	return se
}

// Incept emits and records the inception event.
func (c *Controller) Incept() kel.SignedEvent {
	return c.Accept(c.Sign(c.Draft(kel.Inception)))
}

// Rotate emits and records a rotation to the pre-committed generation.
func (c *Controller) Rotate() kel.SignedEvent {
	return c.Accept(c.Sign(c.Draft(kel.Rotation)))
}

// Interact emits and records an interaction event.
func (c *Controller) Interact() kel.SignedEvent {
	return c.Accept(c.Sign(c.Draft(kel.Interaction)))
}

// Events returns every recorded event in order.
func (c *Controller) Events() []kel.SignedEvent {
	return append([]kel.SignedEvent(nil), c.events...)
}

// Stream returns the recorded events as an event stream.
func (c *Controller) Stream() []byte {
	c.t.Helper()
	data, err := kel.EncodeStream(c.events)
	if err != nil {
		c.t.Fatalf("testutil: encode stream: %v", err)
	}
	return data
}
