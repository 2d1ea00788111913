package kel_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/testutil"
)

func fixtureEvent() kel.SignedEvent {
	return kel.SignedEvent{
		Event: kel.Event{
			Identifier:        "Dabc",
			SequenceNumber:    1,
			EventType:         kel.Rotation,
			PriorDigest:       "Exyz",
			SigningThreshold:  1,
			SigningKeys:       []string{"Dk1", "Dk2"},
			NextKeyCommitment: "Ec",
		},
		Signatures: []kel.Signature{
			{Index: 0, Signature: "sig0"},
			{Index: 1, Signature: "sig1"},
		},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestEvent_CanonicalGolden(t *testing.T) {
	ev := fixtureEvent()
	g := newGoldie(t)

	body, err := ev.Canonical()
	require.NoError(t, err)
	g.Assert(t, "event_body", body)

	signed, err := ev.MarshalCanonical()
	require.NoError(t, err)
	g.Assert(t, "signed_event", signed)

	ixn := kel.Event{
		Identifier:     "Dabc",
		SequenceNumber: 2,
		EventType:      kel.Interaction,
		PriorDigest:    "Exyz",
	}
	body, err = ixn.Canonical()
	require.NoError(t, err)
	g.Assert(t, "interaction_body", body)
}

func TestEvent_DigestIgnoresSignatures(t *testing.T) {
	ev := fixtureEvent()
	d1, err := ev.Digest()
	require.NoError(t, err)

	ev.Signatures = nil
	d2, err := ev.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	_, err = kel.ParseDigest(string(d1))
	assert.NoError(t, err)
}

func TestEvent_DigestCoversBody(t *testing.T) {
	a := fixtureEvent()
	b := fixtureEvent()
	b.SigningKeys = []string{"Dk2", "Dk1"}

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestCommit_OrderAndThresholdSensitive(t *testing.T) {
	c := testutil.NewController(t, "commit", 2, 1)
	keys := kel.PublicKeys(c.Keys(0)...)

	base, err := kel.Commit(1, keys)
	require.NoError(t, err)
	again, err := kel.Commit(1, keys)
	require.NoError(t, err)
	assert.Equal(t, base, again)

	reordered, err := kel.Commit(1, []string{keys[1], keys[0]})
	require.NoError(t, err)
	assert.NotEqual(t, base, reordered)

	raised, err := kel.Commit(2, keys)
	require.NoError(t, err)
	assert.NotEqual(t, base, raised)
}

func TestIdentifier_Parse(t *testing.T) {
	key := testutil.Key("ident")
	id := kel.IdentifierFor(key.Public().(ed25519.PublicKey))

	parsed, err := kel.ParseIdentifier(string(id))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"", "abc", "E" + string(id)[1:], string(id) + "A", "D" + "!" + string(id)[2:]} {
		_, err := kel.ParseIdentifier(bad)
		assert.Error(t, err, bad)
	}
}

func TestDecodeKey_RoundTrip(t *testing.T) {
	key := testutil.Key("roundtrip")
	pub := key.Public().(ed25519.PublicKey)
	enc := kel.PublicKeys(key)[0]

	dec, err := kel.DecodeKey(enc)
	require.NoError(t, err)
	assert.Equal(t, pub, dec)
}
