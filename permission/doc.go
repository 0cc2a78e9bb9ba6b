// Package permission defines the closed set of roles and the fixed capability
// bitmask each role carries inside a session.
//
// # Roles
//
// [Role] is a closed enumeration (admin, custodian, receiver, whistleblower).
// Code that branches on role uses exhaustive switches so an unmodeled role
// falls into the default branch and is denied.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. The session
// encoder stores [Mask64] as a raw uint64.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import tipgate, session, or store.
package permission
