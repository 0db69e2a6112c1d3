// Package migrations embeds the SQL schema migration files so they are
// compiled into the binary and applied by database.Migrate at startup.
package migrations

import (
	"embed"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
