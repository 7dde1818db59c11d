package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"fic-gradebot/lib/telemetry"
	"fic-gradebot/pkg/migrations"
)

type ServiceParams struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
	// if unspecified, it will use `:memory:`
	DbPath string
}

type ServiceResult struct {
	DB *sql.DB
}

// SetupService prepares telemetry and, when a schema is given, a migrated
// database that is closed on cleanup.
func SetupService(t testing.TB, params ServiceParams) ServiceResult {
	t.Helper()

	cleanup := telemetry.SetupForTesting(fmt.Sprintf("test:%s", params.Name))
	t.Cleanup(cleanup)

	if params.DbSchema == "" {
		return ServiceResult{}
	}

	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	conn, err := migrations.OpenAndMigrateDB(context.Background(), params.DbSchema, dbpath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	return ServiceResult{DB: conn}
}
