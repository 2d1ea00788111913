package kel

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/roach88/kelwitness/internal/canon"
)

// Derivation codes prefixed to qualified keys and digests.
const (
	codeEd25519 = 'D'
	codeBlake3  = 'E'
)

var b64 = base64.RawURLEncoding

// qualifiedLen is the length of a qualified 32-byte value: one code
// character plus 43 base64url characters.
const qualifiedLen = 1 + 43

// Identifier is a self-certifying name: the qualified encoding of the
// ed25519 key that incepted it.
type Identifier string

// ParseIdentifier validates s as a qualified ed25519 public key.
func ParseIdentifier(s string) (Identifier, error) {
	if _, err := DecodeKey(s); err != nil {
		return "", fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return Identifier(s), nil
}

// IdentifierFor returns the identifier incepted by pub.
func IdentifierFor(pub ed25519.PublicKey) Identifier {
	return Identifier(EncodeKey(pub))
}

func (id Identifier) String() string { return string(id) }

// EncodeKey returns the qualified form of an ed25519 public key.
func EncodeKey(pub ed25519.PublicKey) string {
	return string(codeEd25519) + b64.EncodeToString(pub)
}

// DecodeKey parses a qualified ed25519 public key.
func DecodeKey(s string) (ed25519.PublicKey, error) {
	raw, err := decodeQualified(s, codeEd25519)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

// Digest is a qualified BLAKE3-256 digest.
type Digest string

// ParseDigest validates s as a qualified digest.
func ParseDigest(s string) (Digest, error) {
	if _, err := decodeQualified(s, codeBlake3); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return Digest(s), nil
}

func digestOf(sum [canon.DigestLen]byte) Digest {
	return Digest(string(codeBlake3) + b64.EncodeToString(sum[:]))
}

func decodeQualified(s string, code byte) ([]byte, error) {
	if len(s) != qualifiedLen {
		return nil, fmt.Errorf("length %d, want %d", len(s), qualifiedLen)
	}
	if s[0] != code {
		return nil, fmt.Errorf("derivation code %q, want %q", s[0], code)
	}
	raw, err := b64.DecodeString(s[1:])
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("decoded %d bytes, want 32", len(raw))
	}
	return raw, nil
}
