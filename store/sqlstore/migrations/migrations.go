// Package migrations embeds the schema shared by the Postgres and SQLite
// dialects.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
