package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is one embedded SQL file, keyed by the integer prefix parsed
// from its name (e.g. "003_price_snapshots.sql" -> 3).
type migration struct {
	Version  int
	Filename string
}

// parseVersion extracts the zero-padded integer prefix from a migration
// filename stem, e.g. "007_continuous_aggregates.sql" -> 7.
func parseVersion(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, ".sql")
	prefix, _, ok := strings.Cut(stem, "_")
	if !ok {
		return 0, fmt.Errorf("postgres: migration %q has no version prefix", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("postgres: migration %q version prefix: %w", filename, err)
	}
	if v < 1 {
		return 0, fmt.Errorf("postgres: migration %q version must be >= 1, got %d", filename, v)
	}
	return v, nil
}

// listMigrations enumerates the embedded migration files sorted by version.
func listMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: read migrations dir: %w", err)
	}

	var migs []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		v, err := parseVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		migs = append(migs, migration{Version: v, Filename: entry.Name()})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })

	for i, m := range migs {
		if m.Version != i+1 {
			return nil, fmt.Errorf("postgres: migration versions are not dense: expected %d, found %d (%s)",
				i+1, m.Version, m.Filename)
		}
	}
	return migs, nil
}

// pendingMigrations filters out versions already present in applied,
// preserving ascending order.
func pendingMigrations(migs []migration, applied map[int]bool) []migration {
	var pending []migration
	for _, m := range migs {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// RunMigrations brings the database to the latest schema version and
// returns the filenames applied in this run; a no-op run returns an empty
// list. Each migration's DDL runs in its own transaction, but the tracking
// row is inserted on the same connection OUTSIDE that transaction: the
// chain contains statements that implicitly commit (CREATE EXTENSION,
// continuous aggregates), which would otherwise poison the transaction.
// A failed migration leaves no tracking row and is reattempted next run.
// Concurrent runners are not supported; invoke once at startup.
func (c *Client) RunMigrations(ctx context.Context) ([]string, error) {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := c.pool.Exec(ctx, createTracker); err != nil {
		return nil, fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	migs, err := listMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool)
	rows, err := c.pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan applied migration: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read applied migrations: %w", err)
	}

	var appliedNow []string
	for _, m := range pendingMigrations(migs, applied) {
		data, err := migrationsFS.ReadFile("migrations/" + m.Filename)
		if err != nil {
			return nil, fmt.Errorf("postgres: read migration %s: %w", m.Filename, err)
		}

		// Dedicated connection so the DDL transaction and the tracking
		// insert share a session.
		conn, err := c.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("postgres: migration %s: %w", m.Filename, err)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			conn.Release()
			return nil, fmt.Errorf("postgres: begin tx for %s: %w", m.Filename, err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			conn.Release()
			return nil, fmt.Errorf("postgres: exec migration %s: %w", m.Filename, err)
		}
		if err := tx.Commit(ctx); err != nil {
			conn.Release()
			return nil, fmt.Errorf("postgres: commit migration %s: %w", m.Filename, err)
		}

		if _, err := conn.Exec(ctx,
			"INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)",
			m.Version, m.Filename,
		); err != nil {
			conn.Release()
			return nil, fmt.Errorf("postgres: record migration %s: %w", m.Filename, err)
		}
		conn.Release()

		appliedNow = append(appliedNow, m.Filename)
	}

	return appliedNow, nil
}
