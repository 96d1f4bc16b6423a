// Package migrations embeds the SQL schema migrations applied by golang-migrate.
package migrations

import "embed"

// FS holds the versioned up/down SQL files under sql/.
//
//go:embed sql/*.sql
var FS embed.FS
