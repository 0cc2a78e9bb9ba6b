// Package netpolicy decides whether a login attempt may proceed given the
// client's network origin and the tenant's network configuration.
//
// Staff roles are checked with [Policy.AuthorizeOrigin]: a per-role flag
// decides whether the clear network is acceptable, and an optional IP
// allow-list narrows the accepted client addresses. Loopback clients always
// pass the allow-list. Whistleblowers are checked with
// [Policy.AuthorizeReceipt], which only looks at the whistleblower flag.
//
// Allow-lists are stored as text. [ValidateAllowList] is meant for the write
// path so a malformed list never reaches a login; a list that still fails to
// parse at login time yields [ErrInvalidAllowList].
package netpolicy
