// Package migrations embeds the ledger schema so the binary carries its own SQL.
package migrations

import "embed"

// FS holds every numbered migration file
//
//go:embed *.sql
var FS embed.FS
