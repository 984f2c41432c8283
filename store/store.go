// Package store owns all local persistence: survey reference data,
// per-contact sessions, answers and the dialer call log. Every mutating
// operation runs inside a single transaction; a failure anywhere rolls
// back the whole batch.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openfield/canvass/model"
)

// ErrAlreadyCompleted is returned when completion is requested for a
// session that already has a completion timestamp. It is a rejection,
// not a no-op: a second completion would re-trigger a CRM sync against
// already-synced data.
var ErrAlreadyCompleted = errors.New("session already completed")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// AnswerInput is one incoming answer value, before it is keyed to a
// question row.
type AnswerInput struct {
	Value            string
	OtherText        string
	OriginalPosition *int
}

func (s *Store) GetSurvey(ctx context.Context, surveyID string) (*model.Survey, error) {
	survey := model.Survey{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, active
		FROM surveys
		WHERE id = ?`,
		surveyID,
	).Scan(&survey.ID, &survey.Title, &survey.Description, &survey.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, survey_id, question_text, question_type, options, required, order_index
		FROM questions
		WHERE survey_id = ?
		ORDER BY order_index`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("get survey questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		survey.Questions = append(survey.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get survey questions: %w", err)
	}

	return &survey, nil
}

func (s *Store) ListSurveys(ctx context.Context) ([]model.Survey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, active
		FROM surveys
		WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		survey := model.Survey{}
		err = rows.Scan(&survey.ID, &survey.Title, &survey.Description, &survey.Active)
		if err != nil {
			return nil, fmt.Errorf("list surveys scan: %w", err)
		}
		surveys = append(surveys, survey)
	}
	return surveys, rows.Err()
}

// TagRules returns the declarative tag extraction rules configured for
// one survey.
func (s *Store) TagRules(ctx context.Context, surveyID string) ([]model.TagRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT survey_id, question_id, kind, prefix, skip_value
		FROM tag_rules
		WHERE survey_id = ?`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("get tag rules: %w", err)
	}
	defer rows.Close()

	rules := []model.TagRule{}
	for rows.Next() {
		rule := model.TagRule{}
		var kind string
		err = rows.Scan(&rule.SurveyID, &rule.QuestionID, &kind, &rule.Prefix, &rule.SkipValue)
		if err != nil {
			return nil, fmt.Errorf("get tag rules scan: %w", err)
		}
		rule.Kind, err = model.ParseTagRuleKind(kind)
		if err != nil {
			return nil, fmt.Errorf("get tag rules: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.Question, error) {
	q := model.Question{}
	var typeName string
	var options sql.NullString
	err := row.Scan(&q.ID, &q.SurveyID, &q.Text, &typeName, &options, &q.Required, &q.OrderIndex)
	if err != nil {
		return q, fmt.Errorf("scan question: %w", err)
	}

	q.Type, err = model.ParseQuestionType(typeName)
	if err != nil {
		return q, fmt.Errorf("question %s: %w", q.ID, err)
	}

	if options.Valid && options.String != "" {
		err = json.Unmarshal([]byte(options.String), &q.Options)
		if err != nil {
			return q, fmt.Errorf("question %s options: %w", q.ID, err)
		}
	}
	return q, nil
}
