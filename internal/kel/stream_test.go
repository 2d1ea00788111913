package kel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/testutil"
)

func TestStream_EncodeParse(t *testing.T) {
	c := testutil.NewController(t, "stream", 2, 1)
	c.Incept()
	c.Rotate()
	c.Interact()

	data := c.Stream()
	events, err := kel.ParseStream(data)
	require.NoError(t, err)
	require.Len(t, events, 3)

	state, err := kel.NewProcessor().Replay(events)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.SequenceNumber)

	again, err := kel.EncodeStream(events)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestParseStream_ConcatenatedWithoutSeparators(t *testing.T) {
	input := `{"identifier":"Da","sequence_number":0,"event_type":"icp","signatures":[]}` +
		`{"identifier":"Da","sequence_number":1,"event_type":"ixn","prior_digest":"Eb","signatures":[]}`
	events, err := kel.ParseStream([]byte(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, kel.Interaction, events[1].EventType)
	assert.Equal(t, kel.Digest("Eb"), events[1].PriorDigest)
}

func TestParseStream_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "  \n"},
		{"truncated", `{"identifier":"Da"`},
		{"unknown field", `{"identifier":"Da","color":"red"}`},
		{"not an object", `[1,2]`},
		{"trailing garbage", `{"identifier":"Da"} nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kel.ParseStream([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, kel.IsCode(err, kel.ErrCodeMalformed))
		})
	}
}
