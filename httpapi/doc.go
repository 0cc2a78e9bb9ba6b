// Package httpapi serves the tipgate authentication endpoints:
//
//	POST   /auth/login
//	POST   /auth/receipt-login
//	GET    /auth/session
//	DELETE /auth/session
//
// The tenant comes from the request body or the X-Tenant-ID header. Whether
// the client reached the service over Tor is derived from the Host (.onion)
// or, behind a trusted proxy, from a configured header.
package httpapi
