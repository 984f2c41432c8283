// Package dialer drives an agent through one contact's call:
// result selection, the optional attached survey, and save. One Machine
// per contact; the caller builds a fresh one when advancing the list.
package dialer

import (
	"errors"

	"github.com/openfield/canvass/model"
	"github.com/openfield/canvass/store"
)

type Status int

const (
	StatusIdle Status = iota
	StatusSelectingResult
	StatusInSurvey
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSelectingResult:
		return "selecting_result"
	case StatusInSurvey:
		return "in_survey"
	case StatusCompleted:
		return "completed"
	}
	return "unknown"
}

// ResultSkipped is the sentinel result recorded when the agent bails
// out of a survey mid-way.
const ResultSkipped = "Survey Skipped"

var ErrInvalidTransition = errors.New("invalid call flow transition")

// Machine is the per-contact call flow. The survey branch is reachable
// only when the selected result is Connected and the list has a survey
// with questions attached.
type Machine struct {
	questions []model.Question
	status    Status
	result    string
	notes     string
	answers   map[string]store.AnswerInput
	cursor    int
}

func New(questions []model.Question) *Machine {
	return &Machine{
		questions: questions,
		answers:   map[string]store.AnswerInput{},
	}
}

func (m *Machine) Status() Status { return m.status }
func (m *Machine) Result() string { return m.result }
func (m *Machine) Notes() string  { return m.notes }

// Answers returns the collected answer set. Empty unless the survey
// branch was taken.
func (m *Machine) Answers() map[string]store.AnswerInput { return m.answers }

// Current returns the question under the cursor while in the survey.
func (m *Machine) Current() (model.Question, bool) {
	if m.status != StatusInSurvey || m.cursor >= len(m.questions) {
		return model.Question{}, false
	}
	return m.questions[m.cursor], true
}

// Start begins the call: idle → selecting-result, clearing any
// transient state from a previous attempt at the same contact.
func (m *Machine) Start() error {
	if m.status != StatusIdle {
		return ErrInvalidTransition
	}
	m.status = StatusSelectingResult
	m.result = ""
	m.notes = ""
	m.answers = map[string]store.AnswerInput{}
	m.cursor = 0
	return nil
}

// SelectResult records the call outcome. Connected with an attached
// survey enters the survey; every other outcome completes directly.
func (m *Machine) SelectResult(result string) error {
	if m.status != StatusSelectingResult {
		return ErrInvalidTransition
	}
	m.result = result

	if result == store.ResultConnected && len(m.questions) > 0 {
		m.status = StatusInSurvey
	} else {
		m.status = StatusCompleted
	}
	return nil
}

// Answer records the current question's answer and advances; answering
// the last question completes the flow.
func (m *Machine) Answer(in store.AnswerInput) error {
	q, ok := m.Current()
	if !ok {
		return ErrInvalidTransition
	}
	m.answers[q.ID] = in

	if m.cursor < len(m.questions)-1 {
		m.cursor++
	} else {
		m.status = StatusCompleted
	}
	return nil
}

// Skip abandons the survey: straight to completed with the sentinel
// result, discarding unanswered questions.
func (m *Machine) Skip() error {
	if m.status != StatusInSurvey {
		return ErrInvalidTransition
	}
	m.result = ResultSkipped
	m.status = StatusCompleted
	return nil
}

// Back moves one step backward. Backing out of the first survey
// question returns to result selection and discards the answers
// collected in this attempt; backing out of completed returns to the
// last question shown, or to result selection when none was.
func (m *Machine) Back() error {
	switch m.status {
	case StatusSelectingResult:
		m.status = StatusIdle
		m.result = ""
	case StatusInSurvey:
		if m.cursor > 0 {
			m.cursor--
		} else {
			m.status = StatusSelectingResult
			m.answers = map[string]store.AnswerInput{}
		}
	case StatusCompleted:
		if m.result == store.ResultConnected && len(m.questions) > 0 {
			m.status = StatusInSurvey
			m.cursor = len(m.questions) - 1
		} else {
			m.status = StatusSelectingResult
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}

func (m *Machine) SetNotes(notes string) {
	m.notes = notes
}

// Record assembles the atomic write for the completed call. Answers are
// attached only when the contact actually went through the survey.
func (m *Machine) Record(contactID, listID, surveyID string) (store.CallRecord, error) {
	if m.status != StatusCompleted {
		return store.CallRecord{}, ErrInvalidTransition
	}

	rec := store.CallRecord{
		ContactID: contactID,
		ListID:    listID,
		SurveyID:  surveyID,
		Result:    m.result,
		Notes:     m.notes,
	}
	if m.result == store.ResultConnected && len(m.answers) > 0 {
		rec.Answers = m.answers
	}
	return rec, nil
}
