// Package sqlite is the embedded backend of the norm repository. It
// installs its own schema on open and suits demos, tests and small
// single-house deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"sapl.leg.br/lexml/internal/migrate"
	"sapl.leg.br/lexml/internal/norma"
	"sapl.leg.br/lexml/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

//go:embed seeds/*.sql
var seedFiles embed.FS

type Store struct {
	*store.SQL
	path string
}

// Open opens (creating if needed) the database at path and applies
// pending migrations. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writes.
	db.SetMaxOpenConns(1)

	s := &Store{
		SQL:  store.New(db, store.SQLite, store.WithErrorMapper(mapError)),
		path: path,
	}
	if err := s.Migrator().Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database location given to Open.
func (s *Store) Path() string { return s.path }

// Migrator returns a migration manager for the embedded schema.
func (s *Store) Migrator() *migrate.Manager {
	migrations, _ := fs.Sub(migrationFiles, "migrations")
	seeds, _ := fs.Sub(seedFiles, "seeds")
	return migrate.NewManager(s.DB(), migrations, seeds, migrate.WithPlaceholder(store.Question))
}

// Seed loads the reference norm types.
func (s *Store) Seed(ctx context.Context) error {
	return s.Migrator().Seed(ctx)
}

func dsn(path string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path != ":memory:" {
		params += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params
}

// mapError turns constraint violations into repository sentinels.
func mapError(err error) error {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	code := sqlErr.Code()
	if code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		strings.Contains(sqlErr.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%w: %s", norma.ErrConflict, sqlErr.Error())
	}
	return fmt.Errorf("%w: %s", norma.ErrInvalidInput, sqlErr.Error())
}
