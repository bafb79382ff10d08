// Package migrations holds the PostgreSQL schema and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Status is the schema version after a migration run.
type Status struct {
	Version uint
	Dirty   bool
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func Up(databaseURL string) (Status, error) {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return Status{}, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Status{}, fmt.Errorf("failed to run migrations: %w", err)
	}
	return version(m)
}

// Down rolls back every migration.
func Down(databaseURL string) (Status, error) {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return Status{}, err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Status{}, fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return version(m)
}

func version(m *migrate.Migrate) (Status, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}
