// Package migrate applies embedded SQL migrations and seeds in order.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Runner executes SQL files from an fs.FS against a database, keeping
// bookkeeping rows so each file runs once.
type Runner struct {
	db        *sql.DB
	source    fs.FS
	schemaDir string
	seedDir   string
}

// NewRunner constructs a Runner reading schema files from schemaDir and
// seed files from seedDir of source.
func NewRunner(db *sql.DB, source fs.FS, schemaDir, seedDir string) *Runner {
	return &Runner{db: db, source: source, schemaDir: schemaDir, seedDir: seedDir}
}

// Up applies all pending *.up.sql migrations in lexical order.
func (r *Runner) Up(ctx context.Context) error {
	return r.apply(ctx, migrationsTable, r.schemaDir, ".up.sql")
}

// Seed applies all pending seed *.sql files in lexical order.
func (r *Runner) Seed(ctx context.Context) error {
	return r.apply(ctx, seedsTable, r.seedDir, ".sql")
}

// Down rolls back the most recently applied migration using its
// *.down.sql counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTable(ctx, migrationsTable); err != nil {
		return err
	}
	applied, err := r.history(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	downName := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if err := r.execFile(ctx, r.schemaDir, downName); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
	return err
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx, migrationsTable); err != nil {
		return nil, err
	}
	return r.history(ctx, migrationsTable)
}

func (r *Runner) apply(ctx context.Context, table, dir, suffix string) error {
	if err := r.ensureTable(ctx, table); err != nil {
		return err
	}
	applied, err := r.history(ctx, table)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	names, err := r.list(dir, suffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.execFile(ctx, dir, name); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
			name, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) ensureTable(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table))
	return err
}

func (r *Runner) history(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Runner) list(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.source, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// execFile runs all statements of one file inside a transaction.
func (r *Runner) execFile(ctx context.Context, dir, name string) error {
	data, err := fs.ReadFile(r.source, dir+"/"+name)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(string(data), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
