// Package migrations embeds the SQL schema migrations for Fleet Core.
//
// Migration files follow the naming convention
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql for
// rollback. Importing this package wires the embedded filesystem into
// the database package so migrations ship inside the binary.
package migrations

import (
	"embed"

	"github.com/edgewatch/fleet-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
