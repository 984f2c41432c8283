package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openfield/canvass/model"
)

// EnsureStarted creates the (contact, survey) session if it does not
// exist yet. Already-started and already-completed sessions are left
// untouched.
func (s *Store) EnsureStarted(ctx context.Context, contactID, surveyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO survey_sessions (crm_contact_id, survey_id, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT (crm_contact_id, survey_id) DO NOTHING`,
		contactID, surveyID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ensure session started: %w", err)
	}
	return nil
}

// Complete marks the session completed and returns the completion
// timestamp. Completion is terminal: a second call returns
// ErrAlreadyCompleted and leaves the original timestamp in place.
// A session absent at completion time is created on the spot, which
// covers full-batch entry paths that never called EnsureStarted.
func (s *Store) Complete(ctx context.Context, contactID, surveyID string) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var completedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT completed_at FROM survey_sessions
		WHERE crm_contact_id = ? AND survey_id = ?`,
		contactID, surveyID,
	).Scan(&completedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO survey_sessions (crm_contact_id, survey_id, started_at, completed_at)
			VALUES (?, ?, ?, ?)`,
			contactID, surveyID, now, now,
		)
		if err != nil {
			return time.Time{}, fmt.Errorf("create completed session: %w", err)
		}
	case err != nil:
		return time.Time{}, fmt.Errorf("get session: %w", err)
	case completedAt.Valid:
		return time.Time{}, ErrAlreadyCompleted
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE survey_sessions SET completed_at = ?
			WHERE crm_contact_id = ? AND survey_id = ?`,
			now, contactID, surveyID,
		)
		if err != nil {
			return time.Time{}, fmt.Errorf("complete session: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("commit: %w", err)
	}
	return now, nil
}

// Session returns the session row for the pair, nil if absent.
func (s *Store) Session(ctx context.Context, contactID, surveyID string) (*model.Session, error) {
	sess := model.Session{}
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT crm_contact_id, survey_id, started_at, completed_at
		FROM survey_sessions
		WHERE crm_contact_id = ? AND survey_id = ?`,
		contactID, surveyID,
	).Scan(&sess.ContactID, &sess.SurveyID, &sess.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

// SessionStatus reports whether a session exists for the pair and
// whether it has been completed.
func (s *Store) SessionStatus(ctx context.Context, contactID, surveyID string) (exists, completed bool, err error) {
	var completedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT completed_at FROM survey_sessions
		WHERE crm_contact_id = ? AND survey_id = ?`,
		contactID, surveyID,
	).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get session: %w", err)
	}
	return true, completedAt.Valid, nil
}
