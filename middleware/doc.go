// Package middleware adapts tipgate sessions to net/http.
//
// [Guard] reads the X-Session header, renews the session through the
// engine and injects the descriptor into the request context.
// [RequireRoles] and [RequireCapability] gate handlers on the descriptor.
// Errors are written as {"error_code", "error_message"} JSON bodies by
// [WriteError].
//
// This package holds no authentication logic; every decision about a
// session is the engine's.
package middleware
