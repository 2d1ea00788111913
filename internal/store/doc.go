// Package store provides SQLite-backed durable storage for key event logs.
//
// Each identifier owns an append-only log of accepted events and one cached
// key state:
//   - events: signed events, gapless by sequence number, unique by digest
//   - key_states: the fold of the log, rewritten with every append
//   - unverified_key_states: opaque states accepted without a log
//
// # Append
//
// Append runs the key-state processor against the stored tail and writes
// the event row and the new state row in one transaction, so after a crash
// either both exist or neither does. A rejected event writes nothing.
//
// Appends to the same identifier are serialized by a per-identifier lock.
// Appends to different identifiers, and all reads, never wait on it.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for the write lock up to 5 seconds
//   - _txlock=immediate: write transactions take the lock up front
package store
