package model

import (
	"fmt"
	"time"
)

// QuestionType is a closed set: adding a variant means extending the
// constants, ParseQuestionType and every switch over the type.
type QuestionType int

const (
	SingleChoice QuestionType = iota
	SingleChoiceWithOther
	MultiSelectWithOther
	ContactVerification
)

var questionTypeNames = map[QuestionType]string{
	SingleChoice:          "single_choice",
	SingleChoiceWithOther: "single_choice_with_other",
	MultiSelectWithOther:  "multi_select_with_other",
	ContactVerification:   "contact_verification",
}

func (t QuestionType) String() string {
	if name, ok := questionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("QuestionType(%d)", int(t))
}

func ParseQuestionType(s string) (QuestionType, error) {
	for t, name := range questionTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown question type %q", s)
}

func (t QuestionType) MarshalJSON() ([]byte, error) {
	name, ok := questionTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown question type %d", int(t))
	}
	return []byte(`"` + name + `"`), nil
}

func (t *QuestionType) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("question type must be a string")
	}
	parsed, err := ParseQuestionType(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// HasOther reports whether the type carries a free-text "other" value
// alongside the selected option(s).
func (t QuestionType) HasOther() bool {
	switch t {
	case SingleChoiceWithOther, MultiSelectWithOther:
		return true
	case SingleChoice, ContactVerification:
		return false
	}
	return false
}

type Survey struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	Questions   []Question `json:"questions,omitempty"`
}

type Question struct {
	ID         string       `json:"id"`
	SurveyID   string       `json:"survey_id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Options    []string     `json:"options,omitempty"`
	Required   bool         `json:"required"`
	OrderIndex int          `json:"order_index"`
}

type Session struct {
	ContactID   string     `json:"contact_id"`
	SurveyID    string     `json:"survey_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Answer is one stored response, joined with its owning question so
// consumers can order by question position and dispatch on type.
type Answer struct {
	ContactID        string       `json:"contact_id"`
	SurveyID         string       `json:"survey_id"`
	QuestionID       string       `json:"question_id"`
	QuestionText     string       `json:"question_text"`
	QuestionType     QuestionType `json:"question_type"`
	OrderIndex       int          `json:"order_index"`
	Value            string       `json:"value"`
	OtherText        string       `json:"text,omitempty"`
	OriginalPosition *int         `json:"original_position,omitempty"`
}

// ContactHint carries the fields a respondent confirmed in a
// contact-verification answer, used when resolving CRM contacts by email.
type ContactHint struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type DialList struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SurveyID    *string `json:"survey_id,omitempty"`
	Active      bool    `json:"active"`
}

// ListContact is a contact's membership in a dial list, with per-list
// calling status.
type ListContact struct {
	Contact
	Status     string     `json:"status"`
	CallResult string     `json:"call_result,omitempty"`
	CalledAt   *time.Time `json:"called_at,omitempty"`
}

type CallLog struct {
	ID        int64     `json:"id"`
	ContactID string    `json:"contact_id"`
	ListID    string    `json:"list_id"`
	SurveyID  *string   `json:"survey_id,omitempty"`
	Result    string    `json:"result"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TagRuleKind selects how a tag rule turns an answer into CRM tags.
type TagRuleKind int

const (
	// MultiSelectIssues emits one tag per selected element of a
	// JSON-array answer, each prefixed with the rule's prefix.
	MultiSelectIssues TagRuleKind = iota
	// SingleChoiceLabel emits a single prefixed tag naming the chosen
	// option, unless it equals the rule's skip value.
	SingleChoiceLabel
)

var tagRuleKindNames = map[TagRuleKind]string{
	MultiSelectIssues: "multi_select_issues",
	SingleChoiceLabel: "single_choice_label",
}

func (k TagRuleKind) String() string {
	if name, ok := tagRuleKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TagRuleKind(%d)", int(k))
}

func ParseTagRuleKind(s string) (TagRuleKind, error) {
	for k, name := range tagRuleKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown tag rule kind %q", s)
}

// TagRule is a per-survey declarative rule mapping one question's answer
// to CRM tags. Rules live in the tag_rules table so survey content can
// change without touching code.
type TagRule struct {
	SurveyID   string
	QuestionID string
	Kind       TagRuleKind
	Prefix     string
	SkipValue  string
}
