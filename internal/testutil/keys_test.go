package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelwitness/internal/kel"
)

func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, Key("a"), Key("a"))
	assert.NotEqual(t, Key("a"), Key("b"))
}

func TestController_ChainFolds(t *testing.T) {
	c := NewController(t, "alice", 3, 2)
	c.Incept()
	c.Interact()
	c.Rotate()
	c.Interact()
	c.Rotate()

	state, err := kel.NewProcessor().Replay(c.Events())
	require.NoError(t, err)
	assert.Equal(t, c.ID(), state.Identifier)
	assert.Equal(t, int64(4), state.SequenceNumber)
	assert.Equal(t, kel.PublicKeys(c.Keys(2)...), state.SigningKeys)
	assert.Equal(t, c.Commitment(3), state.NextKeyCommitment)
}

func TestController_DraftDoesNotAdvance(t *testing.T) {
	c := NewController(t, "bob", 1, 1)
	c.Incept()
	d1 := c.Draft(kel.Interaction)
	d2 := c.Draft(kel.Interaction)
	assert.Equal(t, d1, d2)
	assert.Len(t, c.Events(), 1)
}
