// Package migrations embeds the SQLite schema migrations for the sqlite
// storage backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
