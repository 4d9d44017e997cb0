package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	migrationsTable      = "appointly_migrations"
	migrationsLocksTable = "appointly_migration_locks"
)

func loadMigrations() (*migrate.Migrations, error) {
	migs := migrate.NewMigrations()
	if err := migs.Discover(migrationFiles); err != nil {
		return nil, fmt.Errorf("discover migrations: %w", err)
	}
	return migs, nil
}

func newMigrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	migs, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	m := migrate.NewMigrator(db, migs,
		migrate.WithTableName(migrationsTable),
		migrate.WithLocksTableName(migrationsLocksTable),
	)
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migration tables: %w", err)
	}
	return m, nil
}

// Migrate applies every pending embedded migration as one group. Concurrent
// callers are serialized by the migrator's lock table.
func Migrate(ctx context.Context, db *bun.DB, log *slog.Logger) (err error) {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if unlockErr := m.Unlock(ctx); unlockErr != nil && err == nil {
			err = fmt.Errorf("unlock migrations: %w", unlockErr)
		}
	}()

	group, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.Info("database schema up to date")
		return nil
	}
	for _, mig := range group.Migrations {
		log.Info("migration applied", slog.String("name", mig.String()), slog.Int64("group_id", group.ID))
	}
	return nil
}

// Rollback reverts the most recently applied migration group.
func Rollback(ctx context.Context, db *bun.DB, log *slog.Logger) (err error) {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if unlockErr := m.Unlock(ctx); unlockErr != nil && err == nil {
			err = fmt.Errorf("unlock migrations: %w", unlockErr)
		}
	}()

	group, err := m.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if group.IsZero() {
		log.Info("no migration group to roll back")
		return nil
	}
	log.Info("migration group rolled back", slog.Int64("group_id", group.ID), slog.Int("migrations", len(group.Migrations)))
	return nil
}

// MigrationStatus lists every known migration with whether it is applied.
type MigrationStatus struct {
	Name    string
	Applied bool
}

func Status(ctx context.Context, db *bun.DB) ([]MigrationStatus, error) {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	ms, err := m.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(ms))
	for _, mig := range ms {
		out = append(out, MigrationStatus{Name: mig.String(), Applied: mig.IsApplied()})
	}
	return out, nil
}
