package db

import (
	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Schema creates the users table and one state table per source.
//
//go:embed schema.sql
var Schema string

// Source names a portal. Each source has its own state table and its own
// monitoring lease columns on users.
type Source string

const (
	SourceFic    Source = "fic"
	SourceMoodle Source = "moodle"
)

// Sources lists every source in the order they are checked and shown.
var Sources = []Source{SourceFic, SourceMoodle}

func (s Source) Valid() bool {
	return s == SourceFic || s == SourceMoodle
}
