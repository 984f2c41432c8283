package civicrm

import (
	"encoding/json"
	"strings"

	"github.com/openfield/canvass/model"
)

// FormatAnswer renders one stored answer as the single human-readable
// string a response slot holds. A JSON-array value (multi-select) joins
// its elements with ", "; anything else passes through verbatim. Free
// text is appended parenthesized.
func FormatAnswer(a model.Answer) string {
	formatted := a.Value

	var elements []string
	if err := json.Unmarshal([]byte(a.Value), &elements); err == nil {
		formatted = strings.Join(elements, ", ")
	}

	if a.OtherText != "" {
		formatted += " (" + a.OtherText + ")"
	}
	return formatted
}

// ExtractTags applies a survey's declarative tag rules to its answer
// set. Rules are data (tag_rules table), so survey content can change
// without touching this code.
func ExtractTags(answers []model.Answer, rules []model.TagRule) []string {
	byQuestion := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	tags := []string{}
	for _, rule := range rules {
		a, ok := byQuestion[rule.QuestionID]
		if !ok {
			continue
		}

		switch rule.Kind {
		case model.MultiSelectIssues:
			var selected []string
			if err := json.Unmarshal([]byte(a.Value), &selected); err != nil {
				continue
			}
			for _, issue := range selected {
				tags = append(tags, rule.Prefix+issue)
			}
		case model.SingleChoiceLabel:
			skip := rule.SkipValue
			if skip == "" {
				skip = "Undecided"
			}
			if a.Value == "" || a.Value == skip {
				continue
			}
			tags = append(tags, rule.Prefix+a.Value)
		}
	}
	return tags
}
