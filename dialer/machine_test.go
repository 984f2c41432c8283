package dialer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfield/canvass/model"
	"github.com/openfield/canvass/store"
)

func surveyQuestions() []model.Question {
	return []model.Question{
		{ID: "q1", Text: "First?", Type: model.SingleChoice, OrderIndex: 1},
		{ID: "q2", Text: "Second?", Type: model.MultiSelectWithOther, OrderIndex: 2},
		{ID: "q3", Text: "Third?", Type: model.SingleChoiceWithOther, OrderIndex: 3},
	}
}

func startedMachine(t *testing.T, questions []model.Question) *Machine {
	t.Helper()
	m := New(questions)
	require.NoError(t, m.Start())
	return m
}

func TestNoAnswerSkipsSurvey(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultNoAnswer))
	assert.Equal(t, StatusCompleted, m.Status())

	rec, err := m.Record("contact-1", "list-1", "survey-1")
	require.NoError(t, err)
	assert.Equal(t, store.ResultNoAnswer, rec.Result)
	assert.Empty(t, rec.Answers, "no survey shown, no answers saved")
}

func TestConnectedWithoutSurveyCompletesDirectly(t *testing.T) {
	m := startedMachine(t, nil)

	require.NoError(t, m.SelectResult(store.ResultConnected))
	assert.Equal(t, StatusCompleted, m.Status())
}

func TestConnectedWalksSurvey(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultConnected))
	assert.Equal(t, StatusInSurvey, m.Status())

	q, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "q1", q.ID)

	require.NoError(t, m.Answer(store.AnswerInput{Value: "A"}))
	require.NoError(t, m.Answer(store.AnswerInput{Value: `["X"]`}))

	q, _ = m.Current()
	assert.Equal(t, "q3", q.ID)

	require.NoError(t, m.Answer(store.AnswerInput{Value: "other", OtherText: "radio"}))
	assert.Equal(t, StatusCompleted, m.Status())

	m.SetNotes("pleasant call")
	rec, err := m.Record("contact-1", "list-1", "survey-1")
	require.NoError(t, err)
	assert.Equal(t, store.ResultConnected, rec.Result)
	assert.Equal(t, "pleasant call", rec.Notes)
	assert.Len(t, rec.Answers, 3)
	assert.Equal(t, "radio", rec.Answers["q3"].OtherText)
}

func TestBackFromFirstQuestionDiscardsAnswers(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultConnected))
	require.NoError(t, m.Answer(store.AnswerInput{Value: "A"}))

	// back to q1, then out of the survey entirely
	require.NoError(t, m.Back())
	q, _ := m.Current()
	assert.Equal(t, "q1", q.ID)

	require.NoError(t, m.Back())
	assert.Equal(t, StatusSelectingResult, m.Status())
	assert.Empty(t, m.Answers(), "abandoned attempt must not keep answers")
}

func TestBackFromCompletedReturnsToLastQuestion(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultConnected))
	require.NoError(t, m.Answer(store.AnswerInput{Value: "A"}))
	require.NoError(t, m.Answer(store.AnswerInput{Value: `["X"]`}))
	require.NoError(t, m.Answer(store.AnswerInput{Value: "B"}))
	require.Equal(t, StatusCompleted, m.Status())

	require.NoError(t, m.Back())
	assert.Equal(t, StatusInSurvey, m.Status())
	q, _ := m.Current()
	assert.Equal(t, "q3", q.ID)
}

func TestBackFromCompletedWithoutSurvey(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultNoAnswer))
	require.NoError(t, m.Back())
	assert.Equal(t, StatusSelectingResult, m.Status())
}

func TestSkipForcesCompletionWithSentinel(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultConnected))
	require.NoError(t, m.Answer(store.AnswerInput{Value: "A"}))

	require.NoError(t, m.Skip())
	assert.Equal(t, StatusCompleted, m.Status())
	assert.Equal(t, ResultSkipped, m.Result())

	rec, err := m.Record("contact-1", "list-1", "survey-1")
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, rec.Result)
	assert.Empty(t, rec.Answers, "skipped survey must not save a partial set")
}

func TestStartResetsTransientState(t *testing.T) {
	m := startedMachine(t, surveyQuestions())

	require.NoError(t, m.SelectResult(store.ResultConnected))
	require.NoError(t, m.Answer(store.AnswerInput{Value: "A"}))
	require.NoError(t, m.Skip()) // completed

	// skip left the sentinel result, so completed backs out through
	// result selection, then to idle
	require.NoError(t, m.Back())
	require.Equal(t, StatusSelectingResult, m.Status())
	require.NoError(t, m.Back())
	require.Equal(t, StatusIdle, m.Status())

	require.NoError(t, m.Start())
	assert.Empty(t, m.Answers())
	assert.Empty(t, m.Result())
}

func TestInvalidTransitions(t *testing.T) {
	m := New(surveyQuestions())

	assert.ErrorIs(t, m.SelectResult(store.ResultConnected), ErrInvalidTransition)
	assert.ErrorIs(t, m.Answer(store.AnswerInput{Value: "A"}), ErrInvalidTransition)
	assert.ErrorIs(t, m.Skip(), ErrInvalidTransition)
	_, err := m.Record("c", "l", "s")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrInvalidTransition)
}
