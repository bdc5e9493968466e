// Package migrations embeds the service's SQL schema migrations.
package migrations

import "embed"

// FS holds every *.sql file in this directory. Only *.up.sql files are
// applied at startup; *.down.sql files are for manual rollback.
//
//go:embed *.sql
var FS embed.FS
