package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openfield/canvass/model"
)

// UpsertAnswer stores one answer, last write wins. The session is
// started in the same transaction if this is the contact's first
// interaction with the survey.
func (s *Store) UpsertAnswer(ctx context.Context, contactID, surveyID, questionID string, in AnswerInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey_sessions (crm_contact_id, survey_id, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT (crm_contact_id, survey_id) DO NOTHING`,
		contactID, surveyID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ensure session started: %w", err)
	}

	err = upsertAnswer(ctx, tx, contactID, surveyID, questionID, in)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SubmitFullSurvey replaces the whole answer set for the pair and marks
// the session completed, all in one transaction. Resubmitting against a
// completed session is rejected with ErrAlreadyCompleted unless retake
// is set, in which case prior answers are cleared and completed_at is
// refreshed. The retake path is the only sanctioned exception to
// terminal completion.
func (s *Store) SubmitFullSurvey(ctx context.Context, contactID, surveyID string, answers map[string]AnswerInput, retake bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var completedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT completed_at FROM survey_sessions
		WHERE crm_contact_id = ? AND survey_id = ?`,
		contactID, surveyID,
	).Scan(&completedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get session: %w", err)
	}
	if completedAt.Valid && !retake {
		return ErrAlreadyCompleted
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey_sessions (crm_contact_id, survey_id, started_at, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (crm_contact_id, survey_id)
		DO UPDATE SET completed_at = excluded.completed_at`,
		contactID, surveyID, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	err = replaceAnswers(ctx, tx, contactID, surveyID, answers)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListAnswers returns the pair's answers ordered by the owning
// question's order index. The CRM sync relies on this order to fill the
// fixed response slots, so arrival order must never leak through.
func (s *Store) ListAnswers(ctx context.Context, contactID, surveyID string) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			r.crm_contact_id, r.survey_id, r.question_id,
			q.question_text, q.question_type, q.order_index,
			r.answer_value, r.answer_text, r.original_position
		FROM responses r
		JOIN questions q ON (r.question_id = q.id)
		WHERE r.crm_contact_id = ? AND r.survey_id = ?
		ORDER BY q.order_index`,
		contactID, surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		a := model.Answer{}
		var typeName string
		var otherText sql.NullString
		var position sql.NullInt64
		err = rows.Scan(
			&a.ContactID, &a.SurveyID, &a.QuestionID,
			&a.QuestionText, &typeName, &a.OrderIndex,
			&a.Value, &otherText, &position,
		)
		if err != nil {
			return nil, fmt.Errorf("list answers scan: %w", err)
		}

		a.QuestionType, err = model.ParseQuestionType(typeName)
		if err != nil {
			return nil, fmt.Errorf("answer %s: %w", a.QuestionID, err)
		}
		a.OtherText = otherText.String
		if position.Valid {
			p := int(position.Int64)
			a.OriginalPosition = &p
		}

		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func upsertAnswer(ctx context.Context, tx *sql.Tx, contactID, surveyID, questionID string, in AnswerInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO responses (crm_contact_id, survey_id, question_id, answer_value, answer_text, original_position)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (crm_contact_id, survey_id, question_id)
		DO UPDATE SET
			answer_value = excluded.answer_value,
			answer_text = excluded.answer_text,
			original_position = excluded.original_position,
			updated_at = CURRENT_TIMESTAMP`,
		contactID, surveyID, questionID,
		in.Value, nullString(in.OtherText), nullInt(in.OriginalPosition),
	)
	if err != nil {
		return fmt.Errorf("upsert answer %s: %w", questionID, err)
	}
	return nil
}

// replaceAnswers clears all prior rows for the pair, then bulk-inserts
// the new set. Retake semantics: no stale row may survive.
func replaceAnswers(ctx context.Context, tx *sql.Tx, contactID, surveyID string, answers map[string]AnswerInput) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM responses
		WHERE crm_contact_id = ? AND survey_id = ?`,
		contactID, surveyID,
	)
	if err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO responses (crm_contact_id, survey_id, question_id, answer_value, answer_text, original_position)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare answer insert: %w", err)
	}
	defer stmt.Close()

	for questionID, in := range answers {
		_, err = stmt.ExecContext(ctx,
			contactID, surveyID, questionID,
			in.Value, nullString(in.OtherText), nullInt(in.OriginalPosition),
		)
		if err != nil {
			return fmt.Errorf("insert answer %s: %w", questionID, err)
		}
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
