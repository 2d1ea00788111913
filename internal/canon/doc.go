// Package canon provides the canonical byte encoding and digests that key
// event logs are built on.
//
// Every value that is signed or hashed goes through Marshal, which produces
// RFC 8785 canonical JSON:
//   - object keys sorted by UTF-16 code units
//   - no insignificant whitespace, no HTML escaping
//   - strings NFC normalized
//   - integers only; floats and null are rejected
//
// Digests are BLAKE3-256 with domain separation (see Sum), so the same bytes
// hashed for different purposes never collide.
package canon
