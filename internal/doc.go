// Package internal holds helpers private to tipgate: random session
// identifiers, staff auth tokens and whistleblower receipts.
//
// # Sub-packages
//
//   - flows: login, receipt login and session orchestration over narrow deps
//   - config: process configuration for the tipgate binaries
package internal
