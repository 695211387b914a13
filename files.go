package auth

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsDir is the embedded directory holding the migrations of each
// dialect.
const MigrationsDir = "data/sql/migrations"

// DialectMigrations returns the migrations for a single dialect, either
// "sqlite" or "postgres", rooted at the dialect directory.
func DialectMigrations(dialect string) (fs.FS, error) {
	dir := MigrationsDir + "/" + dialect
	if _, err := fs.Stat(migrationsFS, dir); err != nil {
		return nil, err
	}
	return fs.Sub(migrationsFS, dir)
}
