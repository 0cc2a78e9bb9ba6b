// Package tipgate authenticates staff and anonymous whistleblowers of a
// multi-tenant reporting platform and keeps their server-side sessions.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Login pacing
//
// Every login answer waits for the throttle delay derived from the
// process-wide failure counter, plus padding up to a uniform answer time.
// Only failed credential checks advance the counter. Unknown identities and
// wrong secrets take the same path through the password verifier and return
// the same error.
//
// # Architecture boundaries
//
// tipgate is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration lives under internal/flows; storage,
// session, throttle and network-policy packages never import tipgate.
//
// # Sessions
//
// A session caches role, status and capabilities at creation. They are not
// re-read on refresh unless a [SessionRevalidator] is configured.
package tipgate
