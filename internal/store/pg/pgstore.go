// Package pg is the Postgres backend of the norm repository, reading the
// tables of the legislative records system through pgx.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sapl.leg.br/lexml/internal/migrate"
	"sapl.leg.br/lexml/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

//go:embed seeds/*.sql
var seedFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return sub
}

// Seeds returns the embedded reference data.
func Seeds() fs.FS {
	sub, _ := fs.Sub(seedFiles, "seeds")
	return sub
}

type Store struct {
	*store.SQL
}

// Open connects to Postgres. The pool is sized for a read-mostly
// harvesting workload.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{SQL: store.New(db, store.Postgres, store.WithErrorMapper(mapError))}
}

// Migrator returns a migration manager for the embedded schema.
func (s *Store) Migrator() *migrate.Manager {
	return migrate.NewManager(s.DB(), Migrations(), Seeds())
}

// Migrate applies pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.Migrator().Up(ctx)
}
