// Package session owns the lifecycle of authenticated sessions.
//
// A session is Active from creation, extended by every Touch (sliding
// expiration), and ends as Expired or Revoked with no way back. Expiration is
// evaluated lazily on access: an expired entry is deleted and reported as
// [ErrNotFound], the same as an identifier that never existed.
//
// Identifiers are 32 random bytes, base64url encoded. They carry no tenant,
// so lookups need no tenant context; callers re-derive tenant and role from
// the stored session.
//
// # Implementations
//
//   - [MemoryRegistry]: single process, mutex-guarded map, optional janitor.
//   - [RedisRegistry]: shared across processes, one key per session with a
//     TTL, compact binary encoding (see [Encode]).
//
// # Staleness
//
// Role, status and capabilities are cached at creation. Disabling a user or
// changing a role does not affect sessions that already exist until they
// expire or are revoked.
//
// # What this package must NOT do
//
//   - Import tipgate or store (no upward imports).
//   - Make authorization decisions beyond existence and expiry.
package session
