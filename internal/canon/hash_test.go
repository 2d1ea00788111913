package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumDeterministic(t *testing.T) {
	a := Sum(DomainEvent, []byte("payload"))
	b := Sum(DomainEvent, []byte("payload"))
	assert.Equal(t, a, b)
}

func TestSumDomainSeparation(t *testing.T) {
	event := Sum(DomainEvent, []byte("payload"))
	keys := Sum(DomainNextKeys, []byte("payload"))
	assert.NotEqual(t, event, keys)
}

func TestSumNullSeparator(t *testing.T) {
	// "ab" + 0x00 + "c" must differ from "a" + 0x00 + "bc".
	assert.NotEqual(t, Sum("ab", []byte("c")), Sum("a", []byte("bc")))
}

func TestSumValueMatchesMarshal(t *testing.T) {
	v := map[string]any{"k": []string{"x"}, "n": 2}
	data, err := Marshal(v)
	require.NoError(t, err)

	got, err := SumValue(DomainNextKeys, v)
	require.NoError(t, err)
	assert.Equal(t, Sum(DomainNextKeys, data), got)
}

func TestSumValueRejectsNonCanonical(t *testing.T) {
	_, err := SumValue(DomainEvent, map[string]any{"f": 0.5})
	assert.Error(t, err)
}
