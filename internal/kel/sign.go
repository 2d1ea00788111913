package kel

import (
	"crypto/ed25519"
	"fmt"
)

// SignEvent signs ev with keys, attaching one signature per non-nil key at
// that key's position. Passing nil for a position leaves it unsigned, which
// is how partial threshold sets are built.
func SignEvent(ev Event, keys ...ed25519.PrivateKey) (SignedEvent, error) {
	body, err := ev.Canonical()
	if err != nil {
		return SignedEvent{}, fmt.Errorf("sign event: %w", err)
	}
	se := SignedEvent{Event: ev, Signatures: []Signature{}}
	for i, k := range keys {
		if k == nil {
			continue
		}
		se.Signatures = append(se.Signatures, Signature{
			Index:     i,
			Signature: b64.EncodeToString(ed25519.Sign(k, body)),
		})
	}
	return se, nil
}

// PublicKeys returns the qualified public keys of a private key set.
func PublicKeys(keys ...ed25519.PrivateKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = EncodeKey(k.Public().(ed25519.PublicKey))
	}
	return out
}
