// Package directory announces and locates which witness holds data for a
// domain key.
//
// The directory itself is an external key/value overlay consumed through
// the Directory interface. Domain keys (identifiers, witness ids) are
// hashed before they reach it, so directory traffic never carries them in
// plaintext.
package directory

import (
	"context"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Key is a directory key: the SHA3-256 digest of a domain key.
type Key [32]byte

// KeyFor derives the directory key of a domain key.
func KeyFor(domainKey string) Key {
	return Key(sha3.Sum256([]byte(domainKey)))
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ParseKey decodes the hex form produced by String.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse directory key: %w", err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("parse directory key: %d bytes, want %d", len(raw), len(k))
	}
	copy(k[:], raw)
	return k, nil
}

// Directory is a distributed put/get store. Get reports ok false when no
// value is known for the key.
type Directory interface {
	Put(ctx context.Context, key Key, value string) error
	Get(ctx context.Context, key Key) (value string, ok bool, err error)
}

// Client maps domain keys to directory keys. It adds no retries and no
// caching.
type Client struct {
	dir Directory
}

// NewClient wraps dir.
func NewClient(dir Directory) *Client {
	return &Client{dir: dir}
}

// Announce records that address holds data for domainKey.
func (c *Client) Announce(ctx context.Context, domainKey, address string) error {
	if err := c.dir.Put(ctx, KeyFor(domainKey), address); err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	return nil
}

// Locate returns the address last announced for domainKey.
func (c *Client) Locate(ctx context.Context, domainKey string) (address string, ok bool, err error) {
	address, ok, err = c.dir.Get(ctx, KeyFor(domainKey))
	if err != nil {
		return "", false, fmt.Errorf("locate: %w", err)
	}
	return address, ok, nil
}
