package store

import (
	"context"
	"testing"
	"time"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/db"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/keychain"
	"fic-gradebot/lib/testutil"

	"github.com/stretchr/testify/require"
)

var testLeases = Leases{
	Fic:    14 * 24 * time.Hour,
	Moodle: 60 * 24 * time.Hour,
}

func setup(t *testing.T) (Store, *chrono.FakeTime) {
	res := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "store",
		DbSchema: db.Schema,
	})

	key, err := keychain.GenerateKey()
	require.NoError(t, err)
	keys, err := keychain.New(key)
	require.NoError(t, err)

	clock := chrono.NewFakeTime(time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(res.DB, keys, testLeases, clock, &telemetry.Recorder{}), clock
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s, clock := setup(t)

	_, err := s.GetUser(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)

	creds := fetch.Credentials{Username: "jdoe", Password: "hunter2"}
	require.NoError(t, s.AddUser(ctx, 7, creds, "Jane", false))
	require.NoError(t, s.AddUser(ctx, 8, fetch.Credentials{Username: "demo", Password: "demo"}, "Demo Student", true))

	user, err := s.GetUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Jane", user.DisplayName)
	require.True(t, user.Fic.Active)
	require.True(t, user.Moodle.Active)
	require.Equal(t, clock.Now().Add(testLeases.Fic).Unix(), user.Fic.Until.Unix())
	require.Equal(t, clock.Now().Add(testLeases.Moodle).Unix(), user.Moodle.Until.Unix())
	require.True(t, user.Monitored())

	got, err := s.UserCredentials(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, creds, got)

	monitored, err := s.ListMonitored(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, monitored)

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.SetDisplayName(ctx, 7, "Jane D."))
	user, err = s.GetUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Jane D.", user.DisplayName)
}

func TestLeases(t *testing.T) {
	ctx := context.Background()
	s, clock := setup(t)
	require.NoError(t, s.AddUser(ctx, 1, fetch.Credentials{Username: "a", Password: "b"}, "", false))

	require.NoError(t, s.SetWarned(ctx, 1, db.SourceFic, true))
	user, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, user.Fic.Warned)

	clock.Advance(48 * time.Hour)
	require.NoError(t, s.SetActive(ctx, 1, db.SourceFic, true))
	user, err = s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.False(t, user.Fic.Warned)
	require.Equal(t, clock.Now().Add(testLeases.Fic).Unix(), user.Fic.Until.Unix())

	days, ok := user.Fic.DaysLeft(clock.Now().Add(time.Hour))
	require.True(t, ok)
	require.Equal(t, 14, days)

	require.NoError(t, s.SetActive(ctx, 1, db.SourceFic, false))
	require.NoError(t, s.SetActive(ctx, 1, db.SourceMoodle, false))
	user, err = s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.False(t, user.Fic.Active)
	require.True(t, user.Fic.Until.IsZero())
	require.False(t, user.Monitored())

	_, ok = user.Fic.DaysLeft(clock.Now())
	require.False(t, ok)

	monitored, err := s.ListMonitored(ctx)
	require.NoError(t, err)
	require.Empty(t, monitored)

	require.ErrorIs(t, s.SetActive(ctx, 1, "powerschool", true), ErrUnknownSource)
}

func TestEnsureLease(t *testing.T) {
	ctx := context.Background()
	s, clock := setup(t)
	require.NoError(t, s.AddUser(ctx, 1, fetch.Credentials{Username: "a", Password: "b"}, "", false))

	// a row from before leases existed
	require.NoError(t, s.db.SetMoodleActive(ctx, db.SetMoodleActiveParams{
		MoodleActive: true,
		UpdatedAt:    clock.Now().Unix(),
		UserID:       1,
	}))

	user, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, user.Moodle.Until.IsZero())

	user, err = s.EnsureLease(ctx, user)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(testLeases.Moodle).Unix(), user.Moodle.Until.Unix())
}

func TestLeaseExpiry(t *testing.T) {
	now := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		lease   Lease
		expired bool
		days    int
	}{
		{"fresh", Lease{Active: true, Until: now.Add(14 * 24 * time.Hour)}, false, 14},
		{"partial day rounds up", Lease{Active: true, Until: now.Add(25 * time.Hour)}, false, 2},
		{"at expiry", Lease{Active: true, Until: now}, true, 0},
		{"past", Lease{Active: true, Until: now.Add(-time.Hour)}, true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expired, tc.lease.Expired(now))
			days, ok := tc.lease.DaysLeft(now)
			require.True(t, ok)
			require.Equal(t, tc.days, days)
		})
	}

	require.False(t, Lease{Active: true}.Expired(now))
	require.False(t, Lease{Active: false, Until: now.Add(-time.Hour)}.Expired(now))
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	s, clock := setup(t)
	require.NoError(t, s.AddUser(ctx, 1, fetch.Credentials{Username: "a", Password: "b"}, "", false))

	state, err := s.GetState(ctx, 1, db.SourceFic)
	require.NoError(t, err)
	require.Equal(t, State{}, state)

	require.NoError(t, s.SetError(ctx, 1, db.SourceFic, "Invalid login or password."))
	state, err = s.GetState(ctx, 1, db.SourceFic)
	require.NoError(t, err)
	require.Equal(t, "Invalid login or password.", state.LastError)
	require.Empty(t, state.Snapshot)

	require.NoError(t, s.PutSnapshot(ctx, 1, db.SourceFic, `{"FIC 202503":{"CMPT130":"B+"}}`, "abc", nil))
	state, err = s.GetState(ctx, 1, db.SourceFic)
	require.NoError(t, err)
	require.Equal(t, "abc", state.Hash)
	require.Equal(t, `{"FIC 202503":{"CMPT130":"B+"}}`, state.Snapshot)
	require.Empty(t, state.LastError)
	require.Equal(t, clock.Now().Unix(), state.UpdatedAt.Unix())

	require.ErrorIs(t, s.PutSnapshot(ctx, 1, "vcs", "{}", "x", nil), ErrUnknownSource)
}

func TestMoodleRecent(t *testing.T) {
	ctx := context.Background()
	s, clock := setup(t)
	require.NoError(t, s.AddUser(ctx, 1, fetch.Credentials{Username: "a", Password: "b"}, "", false))

	first := []changes.RecentEvent{{ID: "1", CourseID: 10, ItemID: "row_1", Kind: changes.KindNew}}
	require.NoError(t, s.PutSnapshot(ctx, 1, db.SourceMoodle, "{}", "h1", first))

	state, err := s.GetState(ctx, 1, db.SourceMoodle)
	require.NoError(t, err)
	require.Len(t, state.Recent, 1)
	require.Equal(t, clock.Now().Unix(), state.RecentAt.Unix())

	clock.Advance(time.Hour)
	// no events keeps what was recorded
	require.NoError(t, s.PutSnapshot(ctx, 1, db.SourceMoodle, "{}", "h2", nil))
	state, err = s.GetState(ctx, 1, db.SourceMoodle)
	require.NoError(t, err)
	require.Equal(t, "h2", state.Hash)
	require.Len(t, state.Recent, 1)
	require.Equal(t, clock.Now().Add(-time.Hour).Unix(), state.RecentAt.Unix())

	var many []changes.RecentEvent
	for i := 0; i < changes.MaxRecent; i++ {
		many = append(many, changes.RecentEvent{ID: "n", CourseID: 10, ItemID: "row_2"})
	}
	require.NoError(t, s.PutSnapshot(ctx, 1, db.SourceMoodle, "{}", "h3", many))
	state, err = s.GetState(ctx, 1, db.SourceMoodle)
	require.NoError(t, err)
	require.Len(t, state.Recent, changes.MaxRecent)
	require.Equal(t, "n", state.Recent[0].ID)
	require.Equal(t, "n", state.Recent[changes.MaxRecent-1].ID)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)
	require.NoError(t, s.AddUser(ctx, 1, fetch.Credentials{Username: "a", Password: "b"}, "", false))
	require.NoError(t, s.PutSnapshot(ctx, 1, db.SourceFic, "{}", "h", nil))
	require.NoError(t, s.PutSnapshot(ctx, 1, db.SourceMoodle, "{}", "h", nil))

	require.NoError(t, s.DeleteUser(ctx, 1))

	_, err := s.GetUser(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
	state, err := s.GetState(ctx, 1, db.SourceMoodle)
	require.NoError(t, err)
	require.Equal(t, State{}, state)
}
