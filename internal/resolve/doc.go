// Package resolve answers lookups for key states, event logs and witness
// addresses, and runs the write path that makes local data discoverable.
//
// # Lookups
//
// Every lookup runs the same steps and stops at the first success:
//
//  1. Local: the event store or the address registry. A hit never touches
//     the network.
//  2. Directory: locate the witness that announced the key.
//  3. Remote: issue the same read against that witness.
//
// Steps 2 and 3 share one timeout. Any failure in them (no announcement,
// directory error, timeout, unreachable or misbehaving peer) ends the
// lookup with ErrNotFound, so a caller cannot tell "never existed" from
// "peer unreachable".
//
// Remote event logs are replayed before use. With CacheRemote set they are
// also appended to the local store, so later lookups stay local.
//
// # Writes
//
// Writes persist locally first and only then announce this witness's
// address for the key. Announcement is best effort: a failure is logged
// and the durable local write stands.
package resolve
