package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/db"
)

// State is the baseline of one source: the last canonical snapshot, its
// hash and the last error seen while polling.
type State struct {
	Hash      string
	Snapshot  string
	UpdatedAt time.Time
	LastError string
	// Recent and RecentAt are only kept for Moodle.
	Recent   []changes.RecentEvent
	RecentAt time.Time
}

// GetState returns the zero State when nothing was stored yet.
func (s Store) GetState(ctx context.Context, userID int64, source db.Source) (State, error) {
	switch source {
	case db.SourceFic:
		row, err := s.db.GetFicState(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, nil
		}
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "GetFicState", userID)
			return State{}, err
		}
		return State{
			Hash:      row.LastHash,
			Snapshot:  row.LastSnapshot,
			UpdatedAt: fromUnix(sql.NullInt64{Int64: row.UpdatedAt, Valid: true}),
			LastError: row.LastError,
		}, nil
	case db.SourceMoodle:
		row, err := s.db.GetMoodleState(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, nil
		}
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "GetMoodleState", userID)
			return State{}, err
		}
		recent, err := changes.ParseRecent(row.LastChanges)
		if err != nil {
			s.tel.ReportWarning(report_recent_decode, err, userID)
			recent = []changes.RecentEvent{}
		}
		return State{
			Hash:      row.LastHash,
			Snapshot:  row.LastSnapshot,
			UpdatedAt: fromUnix(sql.NullInt64{Int64: row.UpdatedAt, Valid: true}),
			LastError: row.LastError,
			Recent:    recent,
			RecentAt:  fromUnix(row.LastChangesAt),
		}, nil
	}
	return State{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
}

// PutSnapshot replaces the baseline of a source and clears its error.
// For Moodle, recent events are put in front of the stored ones.
func (s Store) PutSnapshot(
	ctx context.Context,
	userID int64,
	source db.Source,
	canonical, hash string,
	recent []changes.RecentEvent,
) error {
	now := s.time.Now()

	switch source {
	case db.SourceFic:
		param := db.UpsertFicSnapshotParams{
			UserID:       userID,
			LastSnapshot: canonical,
			LastHash:     hash,
			UpdatedAt:    now.Unix(),
		}
		err := s.db.UpsertFicSnapshot(ctx, param)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "UpsertFicSnapshot", userID)
		}
		return err
	case db.SourceMoodle:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return err
	}
	defer discard()

	existing, err := tx.GetMoodleState(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.tel.ReportBroken(report_db_query, err, "GetMoodleState", userID)
		return err
	}

	param := db.UpsertMoodleSnapshotParams{
		UserID:        userID,
		LastSnapshot:  canonical,
		LastHash:      hash,
		UpdatedAt:     now.Unix(),
		LastChanges:   existing.LastChanges,
		LastChangesAt: existing.LastChangesAt,
	}
	if len(recent) > 0 {
		old, err := changes.ParseRecent(existing.LastChanges)
		if err != nil {
			s.tel.ReportWarning(report_recent_decode, err, userID)
			old = nil
		}
		merged, err := json.Marshal(changes.PushRecent(old, recent))
		if err != nil {
			return err
		}
		param.LastChanges = string(merged)
		param.LastChangesAt = toUnix(now)
	}

	err = tx.UpsertMoodleSnapshot(ctx, param)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "UpsertMoodleSnapshot", userID)
		return err
	}
	return commit()
}

// SetError records the user-facing error of the last poll, the baseline
// is left as is.
func (s Store) SetError(ctx context.Context, userID int64, source db.Source, msg string) error {
	var err error
	switch source {
	case db.SourceFic:
		err = s.db.SetFicError(ctx, db.SetFicErrorParams{
			UserID:    userID,
			LastError: msg,
			UpdatedAt: s.now(),
		})
	case db.SourceMoodle:
		err = s.db.SetMoodleError(ctx, db.SetMoodleErrorParams{
			UserID:    userID,
			LastError: msg,
			UpdatedAt: s.now(),
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "SetError", userID, source)
	}
	return err
}
