package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// IsRemote reports whether path names a libsql server rather than a local
// sqlite file.
func IsRemote(path string) bool {
	for _, prefix := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// OpenDB opens a local sqlite file (created along with its parent
// directories) or, for libsql urls, a remote database.
func OpenDB(path string) (*sql.DB, error) {
	if IsRemote(path) {
		db, err := sql.Open("libsql", path)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		return db, nil
	}

	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, wrapOpenDB(err)
	}

	return db, nil
}

type column struct {
	table string
	name  string
	ddl   string
}

// columns added after the first deployment, older databases get them
// through ALTER TABLE.
var columns = []column{
	{"users", "display_name", "text not null default ''"},
	{"users", "is_demo", "boolean not null default 0"},
	{"users", "fic_active_until", "integer"},
	{"users", "fic_warned", "boolean not null default 0"},
	{"users", "moodle_active", "boolean not null default 1"},
	{"users", "moodle_active_until", "integer"},
	{"users", "moodle_warned", "boolean not null default 0"},
	{"moodle_state", "last_changes", "text not null default ''"},
	{"moodle_state", "last_changes_at", "integer"},
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var (
			cid     int64
			name    string
			typ     string
			notnull int64
			dflt    sql.NullString
			pk      int64
		)
		err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk)
		if err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func wrapMigrate(err error) error {
	return fmt.Errorf("migrate db: %w", err)
}

// Migrate applies schema (which must only use "create ... if not exists")
// and adds the columns older databases are missing.
func Migrate(ctx context.Context, db *sql.DB, schema string) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return wrapMigrate(err)
		}
	}

	existing := map[string]map[string]bool{}
	for _, col := range columns {
		cols, ok := existing[col.table]
		if !ok {
			var err error
			cols, err = tableColumns(ctx, db, col.table)
			if err != nil {
				return wrapMigrate(err)
			}
			existing[col.table] = cols
		}
		if cols[col.name] {
			continue
		}
		_, err := db.ExecContext(ctx, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s %s",
			col.table, col.name, col.ddl,
		))
		if err != nil {
			return wrapMigrate(err)
		}
		cols[col.name] = true
	}
	return nil
}

func wrapOpenAndMigrate(err error) error {
	return fmt.Errorf("open and migrate db: %w", err)
}

func OpenAndMigrateDB(ctx context.Context, schema, path string) (*sql.DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, wrapOpenAndMigrate(err)
	}
	err = Migrate(ctx, db, schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenAndMigrate(err)
	}
	return db, nil
}
