package civicrm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfield/canvass/log"
	"github.com/openfield/canvass/model"
)

// ErrNoAnswers means there is nothing to sync for the pair.
var ErrNoAnswers = errors.New("no answers found for session")

// AnswerSource is the slice of the local store the syncer reads.
type AnswerSource interface {
	ListAnswers(ctx context.Context, contactID, surveyID string) ([]model.Answer, error)
	TagRules(ctx context.Context, surveyID string) ([]model.TagRule, error)
}

// Syncer pushes one completed session's answers to the CRM. It only
// ever reads local state; whatever happens here, committed answers and
// sessions stay exactly as they were.
type Syncer struct {
	client  *Client
	answers AnswerSource
}

func NewSyncer(client *Client, answers AnswerSource) *Syncer {
	return &Syncer{client: client, answers: answers}
}

// SyncSession loads the session's answers in question order, resolves
// the contact, fills the response slots and pushes a single field
// update, then pushes tags as a second, best-effort call. A tag push
// failure is logged and swallowed once the field update has succeeded;
// any earlier failure is returned to the caller.
func (s *Syncer) SyncSession(ctx context.Context, contactID, surveyID string, hint *model.ContactHint) error {
	answers, err := s.answers.ListAnswers(ctx, contactID, surveyID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	if len(answers) == 0 {
		return fmt.Errorf("%w: contact %s, survey %s", ErrNoAnswers, contactID, surveyID)
	}

	mapping, err := s.client.FieldMapping(ctx)
	if err != nil {
		return err
	}

	crmID, err := s.client.ResolveContact(ctx, ParseContactRef(contactID), hint)
	if err != nil {
		return err
	}

	fields := make(map[string]string)
	for i, a := range answers {
		if i >= MaxResponseSlots {
			break
		}
		if key, ok := mapping[responseSlot(i+1)]; ok {
			fields[key] = FormatAnswer(a)
		}
	}
	if key, ok := mapping[completionDateSlot]; ok {
		fields[key] = time.Now().UTC().Format("2006-01-02")
	}

	err = s.client.UpdateContactFields(ctx, crmID, fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExternalUpdateFailed, err)
	}
	log.Infof("civicrm.sync: updated contact %d with %d response fields", crmID, len(fields))

	rules, err := s.answers.TagRules(ctx, surveyID)
	if err != nil {
		log.Warnf("civicrm.sync.tags: load rules: %s", err)
		return nil
	}
	tags := ExtractTags(answers, rules)
	if len(tags) == 0 {
		return nil
	}
	err = s.client.AddTags(ctx, crmID, tags)
	if err != nil {
		// fields are already on the contact; tags are best-effort
		log.Warnf("civicrm.sync.tags: contact %d: %s", crmID, err)
		return nil
	}
	log.Infof("civicrm.sync: applied %d tags to contact %d", len(tags), crmID)

	return nil
}
