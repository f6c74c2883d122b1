// Package migrate applies the embedded SQL schema.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/billing/internal/platform/db"
)

//go:embed migrations/*.sql
var files embed.FS

// Migrator runs pending migrations and records them in schema_migrations.
type Migrator struct {
	db     db.Beginner
	fsys   fs.FS
	logger *slog.Logger
}

// New returns a Migrator over the embedded migrations.
func New(conn db.Beginner, logger *slog.Logger) *Migrator {
	sub, _ := fs.Sub(files, "migrations")
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: conn, fsys: sub, logger: logger}
}

// Files lists migration files in apply order.
func (m *Migrator) Files() ([]string, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Up applies every migration not yet recorded. Each file runs in its own
// transaction together with its bookkeeping row. It returns the number applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	names, err := m.Files()
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range names {
		content, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return applied, fmt.Errorf("migrate: read %s: %w", name, err)
		}
		ran := false
		err = db.WithTx(ctx, m.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
				filename VARCHAR(255) PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
				return err
			}
			// Serialize concurrent migrators.
			if _, err := tx.Exec(ctx, `LOCK TABLE schema_migrations IN EXCLUSIVE MODE`); err != nil {
				return err
			}
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return nil
			}
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("migrate: apply %s: %w", name, err)
		}
		if ran {
			applied++
			m.logger.Info("migration applied", slog.String("file", name))
		}
	}
	return applied, nil
}
