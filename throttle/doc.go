// Package throttle implements the global login-failure counter and the
// randomized delay derived from it.
//
// Every failed credential check, across all tenants and roles, increments a
// single [Counter]. [ComputeDelay] maps the current count to a delay that
// grows faster than linearly and is capped at [MaxDelaySeconds]. The counter
// is never reset; it is deterrence against distributed guessing, not a
// per-account lockout.
//
// [LocalCounter] serves a single process. [RedisCounter] lets several
// replicas share one count.
//
// # What this package must NOT do
//
//   - Hold a lock while a caller sleeps.
//   - Reset the counter on success.
package throttle
