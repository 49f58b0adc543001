// Package database はPostgreSQL接続とスキーママイグレーションを提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateLogger はmigrate.Loggerをslogに流す。
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Info("migration", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (migrateLogger) Verbose() bool { return false }

// NewMigrator は埋め込みSQLをソースとするmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// RunMigrations は未適用のマイグレーションを適用し、現在のスキーマバージョンを返す。
// 適用済みの場合もエラーにしない。dirtyな状態が残っている場合はエラーを返す。
func RunMigrations(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
