package migrations

import (
	"context"
	"testing"

	"fic-gradebot/internal/db"

	"github.com/stretchr/testify/require"
)

const legacySchema = `
create table users (
    user_id integer primary key,
    login_enc blob not null,
    password_enc blob not null,
    fic_active boolean not null default 1,
    created_at integer not null,
    updated_at integer not null
);
create table moodle_state (
    user_id integer primary key,
    last_hash text not null default '',
    last_snapshot text not null default '',
    updated_at integer not null default 0,
    last_error text not null default ''
);
`

func TestMigrateAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	conn, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(legacySchema)
	require.NoError(t, err)
	_, err = conn.Exec(`insert into users (user_id, login_enc, password_enc, created_at, updated_at) values (1, x'00', x'00', 0, 0)`)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, conn, db.Schema))
	// a second run is a no-op
	require.NoError(t, Migrate(ctx, conn, db.Schema))

	user, err := db.New(conn).GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, user.MoodleActive)
	require.False(t, user.IsDemo)
	require.False(t, user.MoodleActiveUntil.Valid)

	cols, err := tableColumns(ctx, conn, "moodle_state")
	require.NoError(t, err)
	require.True(t, cols["last_changes"])
	require.True(t, cols["last_changes_at"])
}

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("libsql://gradebot.turso.io"))
	require.True(t, IsRemote("https://gradebot.turso.io"))
	require.False(t, IsRemote("data/gradebot.db"))
	require.False(t, IsRemote(":memory:"))
}
