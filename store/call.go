package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openfield/canvass/model"
)

// Call outcomes as reported by the dialer.
const (
	ResultConnected = "Connected"
	ResultNoAnswer  = "No Answer"
	ResultVoicemail = "Voicemail"
	ResultDoNotCall = "Do Not Call"
)

// CallRecord is one dial attempt to persist: the log row is always
// written; session and answers only when the agent ran the survey.
type CallRecord struct {
	ContactID string
	ListID    string
	SurveyID  string
	Result    string
	Notes     string
	Answers   map[string]AnswerInput
}

// SaveCall persists a dial attempt as one atomic batch: append the call
// log row, update the contact's per-list status and, when answers were
// collected, upsert the completed session and replace its answer set.
func (s *Store) SaveCall(ctx context.Context, rec CallRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO call_logs (contact_id, list_id, survey_id, result, notes)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ContactID, rec.ListID, nullString(rec.SurveyID), rec.Result, nullString(rec.Notes),
	)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE dial_list_contacts
		SET status = ?, call_result = ?, called_at = ?
		WHERE list_id = ? AND contact_id = ?`,
		listStatusForResult(rec.Result), rec.Result, time.Now().UTC(),
		rec.ListID, rec.ContactID,
	)
	if err != nil {
		return fmt.Errorf("update list contact: %w", err)
	}

	if len(rec.Answers) > 0 && rec.SurveyID != "" {
		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO survey_sessions (crm_contact_id, survey_id, started_at, completed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (crm_contact_id, survey_id)
			DO UPDATE SET completed_at = excluded.completed_at`,
			rec.ContactID, rec.SurveyID, now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		err = replaceAnswers(ctx, tx, rec.ContactID, rec.SurveyID, rec.Answers)
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func listStatusForResult(result string) string {
	switch result {
	case ResultConnected:
		return "completed"
	case ResultNoAnswer:
		return "no_answer"
	case ResultDoNotCall:
		return "dnc"
	default:
		return "attempted"
	}
}

func (s *Store) ListDialLists(ctx context.Context) ([]model.DialList, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, survey_id, active
		FROM dial_lists
		WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list dial lists: %w", err)
	}
	defer rows.Close()

	lists := []model.DialList{}
	for rows.Next() {
		list := model.DialList{}
		var surveyID sql.NullString
		err = rows.Scan(&list.ID, &list.Name, &list.Description, &surveyID, &list.Active)
		if err != nil {
			return nil, fmt.Errorf("list dial lists scan: %w", err)
		}
		if surveyID.Valid {
			list.SurveyID = &surveyID.String
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// ListContacts returns a dial list's members with their calling status,
// in stable membership order.
func (s *Store) ListContacts(ctx context.Context, listID string) ([]model.ListContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id, c.first_name, c.last_name, c.phone, c.email, c.notes,
			lc.status, lc.call_result, lc.called_at
		FROM dial_list_contacts lc
		JOIN contacts c ON (lc.contact_id = c.id)
		WHERE lc.list_id = ?
		ORDER BY lc.id`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []model.ListContact{}
	for rows.Next() {
		lc := model.ListContact{}
		var callResult sql.NullString
		var calledAt sql.NullTime
		err = rows.Scan(
			&lc.ID, &lc.FirstName, &lc.LastName, &lc.Phone, &lc.Email, &lc.Notes,
			&lc.Status, &callResult, &calledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("list contacts scan: %w", err)
		}
		lc.CallResult = callResult.String
		if calledAt.Valid {
			t := calledAt.Time
			lc.CalledAt = &t
		}
		contacts = append(contacts, lc)
	}
	return contacts, rows.Err()
}

// CountCalls tallies call log rows for a contact, optionally scoped to
// one list. Simple operational check, not analytics.
func (s *Store) CountCalls(ctx context.Context, contactID, listID string) (int, error) {
	query := `SELECT COUNT(*) FROM call_logs WHERE contact_id = ?`
	args := []any{contactID}
	if listID != "" {
		query += ` AND list_id = ?`
		args = append(args, listID)
	}

	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}
