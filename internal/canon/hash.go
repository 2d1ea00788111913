package canon

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Domain prefixes for digests. The version suffix leaves room for an
// algorithm migration; changing a value invalidates every stored digest in
// that domain.
const (
	DomainEvent    = "kelwitness/event/v1"
	DomainNextKeys = "kelwitness/next-keys/v1"
)

// DigestLen is the size of every digest produced by Sum.
const DigestLen = 32

// Sum computes BLAKE3-256(domain || 0x00 || data). The null separator
// prevents domain/data boundary ambiguity.
func Sum(domain string, data []byte) [DigestLen]byte {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var out [DigestLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SumValue canonically encodes v and hashes it under domain.
func SumValue(domain string, v any) ([DigestLen]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return [DigestLen]byte{}, fmt.Errorf("%s: %w", domain, err)
	}
	return Sum(domain, data), nil
}
