// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunLogin, RunReceiptLogin, RunRefresh, RunLogout)
// accepts a typed dependency struct and returns a result the Engine maps to
// its public error taxonomy, metrics and audit events.
//
// # Architecture boundaries
//
// Flows coordinate the tenant provider, credential store, verifier, throttle
// pacer and session registry. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tipgate (to avoid import cycles).
//   - Return errors that tell a caller which part of a credential was wrong.
package flows
