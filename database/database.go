package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	_ "github.com/jackc/pgx/v5/stdlib"

	auth "github.com/goliatone/go-library-auth"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// MemoryDSN is a private in memory sqlite database.
const MemoryDSN = "file::memory:?cache=shared"

// DialectFor picks postgres for postgres URLs and sqlite otherwise.
func DialectFor(url string) Dialect {
	u := strings.ToLower(strings.TrimSpace(url))
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to DATABASE_URL when set, else to the sqlite file at
// sqlitePath.
func Open(url, sqlitePath string) (*bun.DB, Dialect, error) {
	dialect := DialectFor(url)

	switch dialect {
	case DialectPostgres:
		sqldb, err := sql.Open("pgx", url)
		if err != nil {
			return nil, dialect, fmt.Errorf("db open error: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), dialect, nil
	default:
		dsn := strings.TrimPrefix(strings.TrimSpace(url), "sqlite://")
		if dsn == "" {
			dsn = sqlitePath
		}
		if dsn == "" {
			dsn = MemoryDSN
		}

		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, dialect, fmt.Errorf("db open error: %w", err)
		}
		// sqlite serializes writers
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), dialect, nil
	}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations of dialect.
func Migrate(ctx context.Context, db *bun.DB, dialect Dialect) error {
	fsys, err := auth.DialectMigrations(string(dialect))
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", dialect, err)
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	gooseDialect := "sqlite3"
	if dialect == DialectPostgres {
		gooseDialect = "postgres"
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}

	if err := gooseUpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}
