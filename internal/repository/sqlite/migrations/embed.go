package migrations

import "embed"

// FS contains embedded SQLite migrations for the batch registry.
//
//go:embed *.sql
var FS embed.FS
