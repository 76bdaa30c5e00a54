// Package migrations applies the embedded PostgreSQL and ClickHouse schemas
// and records applied versions in a schema_migrations table.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// schemaFS holds one directory of numbered .sql files per database.
//
//go:embed postgres/*.sql clickhouse/*.sql
var schemaFS embed.FS

const (
	postgresDir   = "postgres"
	clickhouseDir = "clickhouse"
)

// migration is one embedded SQL file. Version is the file name without the
// .sql suffix, e.g. "001_calls".
type migration struct {
	Version string
	SQL     string
}

// load returns the non-empty .sql files under dir sorted by name.
func load(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sql := strings.TrimSpace(string(data))
		if sql == "" {
			continue
		}
		out = append(out, migration{Version: strings.TrimSuffix(name, ".sql"), SQL: sql})
	}
	return out, nil
}

// pending filters out versions already applied.
func pending(all []migration, applied map[string]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}
