// Package store keeps users, their sealed credentials and the last
// snapshot of each portal.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"fic-gradebot/internal/components/assert"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/db"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/keychain"
)

const (
	report_db_query      = "db.query"
	report_keychain_open = "keychain.open"
	report_keychain_seal = "keychain.seal"
	report_recent_decode = "recent.decode"
	report_lease_stamped = "lease.stamped"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUnknownSource = errors.New("unknown source")
)

// Leases are how long a source stays enabled after it is switched on.
type Leases struct {
	Fic    time.Duration
	Moodle time.Duration
}

func (l Leases) For(source db.Source) time.Duration {
	if source == db.SourceMoodle {
		return l.Moodle
	}
	return l.Fic
}

// Lease is the notification state of one source of a user.
type Lease struct {
	Active bool
	// Until is zero when the source never got an expiry.
	Until  time.Time
	Warned bool
}

// Expired reports whether an active lease ran out at now.
func (l Lease) Expired(now time.Time) bool {
	return l.Active && !l.Until.IsZero() && !now.Before(l.Until)
}

// DaysLeft is the remaining time rounded up to whole days, ok is false for
// inactive leases or leases without an expiry.
func (l Lease) DaysLeft(now time.Time) (days int, ok bool) {
	if !l.Active || l.Until.IsZero() {
		return 0, false
	}
	left := l.Until.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return int(math.Ceil(left.Hours() / 24)), true
}

type User struct {
	ID          int64
	DisplayName string
	IsDemo      bool
	Fic         Lease
	Moodle      Lease
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u User) Lease(source db.Source) Lease {
	if source == db.SourceMoodle {
		return u.Moodle
	}
	return u.Fic
}

// Monitored reports whether a task should run for the user.
func (u User) Monitored() bool {
	return !u.IsDemo && (u.Fic.Active || u.Moodle.Active)
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}

func toUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func userFromRow(row db.User) User {
	return User{
		ID:          row.UserID,
		DisplayName: row.DisplayName,
		IsDemo:      row.IsDemo,
		Fic: Lease{
			Active: row.FicActive,
			Until:  fromUnix(row.FicActiveUntil),
			Warned: row.FicWarned,
		},
		Moodle: Lease{
			Active: row.MoodleActive,
			Until:  fromUnix(row.MoodleActiveUntil),
			Warned: row.MoodleWarned,
		},
		CreatedAt: time.Unix(row.CreatedAt, 0),
		UpdatedAt: time.Unix(row.UpdatedAt, 0),
	}
}

type Store struct {
	db     *db.Queries
	makeTx db.MakeTx
	keys   keychain.Keychain
	leases Leases
	time   chrono.TimeAPI
	tel    telemetry.API
}

func NewStore(
	conn *sql.DB,
	keys keychain.Keychain,
	leases Leases,
	time chrono.TimeAPI,
	tel telemetry.API,
) Store {
	assert.NotNil(conn, "conn")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	return Store{
		db:     db.New(conn),
		makeTx: db.NewMakeTx(conn),
		keys:   keys,
		leases: leases,
		time:   time,
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

func (s Store) Leases() Leases {
	return s.leases
}

func (s Store) now() int64 {
	return s.time.Now().Unix()
}

// AddUser creates or replaces a user, both sources start enabled with a
// fresh lease.
func (s Store) AddUser(ctx context.Context, userID int64, creds fetch.Credentials, displayName string, demo bool) error {
	login, err := s.keys.Seal(creds.Username)
	if err != nil {
		s.tel.ReportBroken(report_keychain_seal, err, userID)
		return err
	}
	password, err := s.keys.Seal(creds.Password)
	if err != nil {
		s.tel.ReportBroken(report_keychain_seal, err, userID)
		return err
	}

	now := s.time.Now()
	param := db.UpsertUserParams{
		UserID:            userID,
		DisplayName:       displayName,
		IsDemo:            demo,
		LoginEnc:          login,
		PasswordEnc:       password,
		FicActiveUntil:    toUnix(now.Add(s.leases.Fic)),
		MoodleActiveUntil: toUnix(now.Add(s.leases.Moodle)),
		CreatedAt:         now.Unix(),
		UpdatedAt:         now.Unix(),
	}
	err = s.db.UpsertUser(ctx, param)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "UpsertUser", userID)
		return err
	}
	return nil
}

func (s Store) SetDisplayName(ctx context.Context, userID int64, name string) error {
	err := s.db.SetDisplayName(ctx, db.SetDisplayNameParams{
		DisplayName: name,
		UpdatedAt:   s.now(),
		UserID:      userID,
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "SetDisplayName", userID)
	}
	return err
}

func (s Store) GetUser(ctx context.Context, userID int64) (User, error) {
	row, err := s.db.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetUser", userID)
		return User{}, err
	}
	return userFromRow(row), nil
}

func (s Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.ListUsers(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListUsers")
		return nil, err
	}
	out := make([]User, len(rows))
	for i, row := range rows {
		out[i] = userFromRow(row)
	}
	return out, nil
}

// ListMonitored returns the ids of non-demo users with an active source.
func (s Store) ListMonitored(ctx context.Context) ([]int64, error) {
	rows, err := s.db.ListMonitoredUsers(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListMonitoredUsers")
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = row.UserID
	}
	return out, nil
}

// UserCredentials opens the sealed portal login of a user.
func (s Store) UserCredentials(ctx context.Context, userID int64) (fetch.Credentials, error) {
	row, err := s.db.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fetch.Credentials{}, ErrNotFound
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetUser", userID)
		return fetch.Credentials{}, err
	}

	login, err := s.keys.Open(row.LoginEnc)
	if err != nil {
		s.tel.ReportBroken(report_keychain_open, err, userID)
		return fetch.Credentials{}, err
	}
	password, err := s.keys.Open(row.PasswordEnc)
	if err != nil {
		s.tel.ReportBroken(report_keychain_open, err, userID)
		return fetch.Credentials{}, err
	}
	return fetch.Credentials{Username: login, Password: password}, nil
}

// SetActive switches a source on or off. Switching on starts a new lease
// and both directions reset the warned flag.
func (s Store) SetActive(ctx context.Context, userID int64, source db.Source, active bool) error {
	now := s.time.Now()
	until := sql.NullInt64{}
	if active {
		until = toUnix(now.Add(s.leases.For(source)))
	}

	var err error
	switch source {
	case db.SourceFic:
		err = s.db.SetFicActive(ctx, db.SetFicActiveParams{
			FicActive:      active,
			FicActiveUntil: until,
			UpdatedAt:      now.Unix(),
			UserID:         userID,
		})
	case db.SourceMoodle:
		err = s.db.SetMoodleActive(ctx, db.SetMoodleActiveParams{
			MoodleActive:      active,
			MoodleActiveUntil: until,
			UpdatedAt:         now.Unix(),
			UserID:            userID,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "SetActive", userID, source)
	}
	return err
}

func (s Store) SetWarned(ctx context.Context, userID int64, source db.Source, warned bool) error {
	var err error
	switch source {
	case db.SourceFic:
		err = s.db.SetFicWarned(ctx, db.SetFicWarnedParams{
			FicWarned: warned,
			UpdatedAt: s.now(),
			UserID:    userID,
		})
	case db.SourceMoodle:
		err = s.db.SetMoodleWarned(ctx, db.SetMoodleWarnedParams{
			MoodleWarned: warned,
			UpdatedAt:    s.now(),
			UserID:       userID,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "SetWarned", userID, source)
	}
	return err
}

// EnsureLease stamps an expiry on active sources that have none and
// returns the user as stored afterwards.
func (s Store) EnsureLease(ctx context.Context, user User) (User, error) {
	changed := false
	for _, source := range db.Sources {
		lease := user.Lease(source)
		if !lease.Active || !lease.Until.IsZero() {
			continue
		}
		err := s.SetActive(ctx, user.ID, source, true)
		if err != nil {
			return user, err
		}
		s.tel.ReportDebug(report_lease_stamped, user.ID, source)
		changed = true
	}
	if !changed {
		return user, nil
	}
	return s.GetUser(ctx, user.ID)
}

// DeleteUser removes a user and the state of both sources.
func (s Store) DeleteUser(ctx context.Context, userID int64) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return err
	}
	defer discard()

	err = tx.DeleteFicState(ctx, userID)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "DeleteFicState", userID)
		return err
	}
	err = tx.DeleteMoodleState(ctx, userID)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "DeleteMoodleState", userID)
		return err
	}
	err = tx.DeleteUser(ctx, userID)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "DeleteUser", userID)
		return err
	}
	return commit()
}
