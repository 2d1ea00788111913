// Package kel implements key event logs for self-certifying identifiers.
//
// A key event log (KEL) is an append-only, hash-chained sequence of signed
// events. The first event (inception) establishes the identifier's signing
// keys and commits to the digest of the next key set; rotations reveal the
// committed keys, and interactions anchor nothing but the chain itself.
//
// Processor folds events into a KeyState one at a time. It is a pure state
// machine: it never touches storage or the network, so the same log always
// replays to the same state.
//
// Rotation authority is proven by the keys that are current before the
// rotation. The revealed keys must additionally hash to the prior state's
// next-key commitment, so a compromised current key alone cannot install an
// attacker-chosen key set.
package kel
