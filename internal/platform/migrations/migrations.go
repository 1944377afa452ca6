// Package migrations applies the embedded Postgres schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var files embed.FS

// Statement is one named migration.
type Statement struct {
	Name string
	SQL  string
}

// Statements returns the migrations in application order.
func Statements() ([]Statement, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]Statement, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := files.ReadFile("sql/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Statement{Name: e.Name(), SQL: string(data)})
	}
	return out, nil
}

// Apply executes every migration in order. Each is idempotent, so Apply is
// safe to run on every start.
func Apply(ctx context.Context, db *sql.DB) error {
	stmts, err := Statements()
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", s.Name, err)
		}
	}
	return nil
}
