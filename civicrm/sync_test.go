package civicrm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfield/canvass/model"
)

type stubAnswers struct {
	answers []model.Answer
	rules   []model.TagRule
	err     error
}

func (s stubAnswers) ListAnswers(ctx context.Context, contactID, surveyID string) ([]model.Answer, error) {
	return s.answers, s.err
}

func (s stubAnswers) TagRules(ctx context.Context, surveyID string) ([]model.TagRule, error) {
	return s.rules, nil
}

func threeAnswers() []model.Answer {
	return []model.Answer{
		{QuestionID: "q1", OrderIndex: 1, Value: "Alex Moreno"},
		{QuestionID: "q2", OrderIndex: 2, Value: `["Tax","Guns"]`},
		{QuestionID: "q3", OrderIndex: 3, Value: "other", OtherText: "a podcast"},
	}
}

func TestSyncSessionHappyPath(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(10)
	client := crm.client()

	var updated map[string]string
	crm.handle("Contact.create", func(params url.Values) (any, error) {
		updated = map[string]string{}
		for k := range params {
			updated[k] = params.Get(k)
		}
		return map[string]any{"id": 42}, nil
	})
	crm.handle("Tag.get", func(params url.Values) (any, error) {
		return []map[string]any{{"id": 9}}, nil
	})
	crm.handle("EntityTag.create", func(params url.Values) (any, error) {
		return map[string]any{"id": 1}, nil
	})

	syncer := NewSyncer(client, stubAnswers{
		answers: threeAnswers(),
		rules: []model.TagRule{
			{QuestionID: "q2", Kind: model.MultiSelectIssues, Prefix: "Issue: "},
		},
	})

	err := syncer.SyncSession(context.Background(), "42", "convention-2026", nil)
	require.NoError(t, err)

	// slots filled by question order, not arrival order
	assert.Equal(t, "Alex Moreno", updated["custom_101"])
	assert.Equal(t, "Tax, Guns", updated["custom_102"])
	assert.Equal(t, "other (a podcast)", updated["custom_103"])
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), updated["custom_200"])
	assert.Equal(t, "42", updated["id"])

	assert.Equal(t, 2, crm.callCount("EntityTag.create"), "one tag per selected issue")
}

func TestSyncSessionTruncatesToTenSlots(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(10)
	client := crm.client()

	answers := []model.Answer{}
	for i := 1; i <= 12; i++ {
		answers = append(answers, model.Answer{
			QuestionID: fmt.Sprintf("q%d", i),
			OrderIndex: i,
			Value:      fmt.Sprintf("v%d", i),
		})
	}

	var updated url.Values
	crm.handle("Contact.create", func(params url.Values) (any, error) {
		updated = params
		return map[string]any{"id": 42}, nil
	})

	syncer := NewSyncer(client, stubAnswers{answers: answers})
	require.NoError(t, syncer.SyncSession(context.Background(), "42", "s", nil))

	assert.Equal(t, "v10", updated.Get("custom_110"))
	for key := range updated {
		assert.NotEqual(t, "v11", updated.Get(key), "answer beyond slot 10 leaked into %s", key)
	}
}

func TestSyncSessionNoAnswers(t *testing.T) {
	crm := newFakeCRM(t)
	syncer := NewSyncer(crm.client(), stubAnswers{})

	err := syncer.SyncSession(context.Background(), "42", "s", nil)
	assert.ErrorIs(t, err, ErrNoAnswers)
}

func TestSyncSessionFieldMappingFailure(t *testing.T) {
	crm := newFakeCRM(t)
	client := crm.client()
	crm.handle("CustomGroup.get", func(params url.Values) (any, error) {
		return nil, errors.New("backend down")
	})

	syncer := NewSyncer(client, stubAnswers{answers: threeAnswers()})
	err := syncer.SyncSession(context.Background(), "42", "s", nil)
	assert.ErrorIs(t, err, ErrFieldMappingUnavailable)
}

func TestSyncSessionUpdateFailure(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(10)
	client := crm.client()

	crm.handle("Contact.create", func(params url.Values) (any, error) {
		return nil, errors.New("write refused")
	})

	syncer := NewSyncer(client, stubAnswers{answers: threeAnswers()})
	err := syncer.SyncSession(context.Background(), "42", "s", nil)
	assert.ErrorIs(t, err, ErrExternalUpdateFailed)
}

func TestSyncSessionTagFailureSwallowed(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(10)
	client := crm.client()

	crm.handle("Contact.create", func(params url.Values) (any, error) {
		return map[string]any{"id": 42}, nil
	})
	crm.handle("Tag.get", func(params url.Values) (any, error) {
		return nil, errors.New("tags unavailable")
	})

	syncer := NewSyncer(client, stubAnswers{
		answers: threeAnswers(),
		rules: []model.TagRule{
			{QuestionID: "q2", Kind: model.MultiSelectIssues, Prefix: "Issue: "},
		},
	})

	// field update succeeded; the tag failure must not surface
	err := syncer.SyncSession(context.Background(), "42", "s", nil)
	assert.NoError(t, err)
}

func TestSyncSessionResolutionFailure(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(10)
	client := crm.client()

	crm.handle("Contact.get", func(params url.Values) (any, error) {
		return nil, nil
	})

	syncer := NewSyncer(client, stubAnswers{answers: threeAnswers()})
	err := syncer.SyncSession(context.Background(), "not-a-crm-id", "s", nil)
	assert.ErrorIs(t, err, ErrContactNotResolvable)
}
