package civicrm

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMappingBuildsSlots(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(3)
	client := crm.client()

	mapping, err := client.FieldMapping(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "custom_101", mapping["response_1"])
	assert.Equal(t, "custom_103", mapping["response_3"])
	assert.Equal(t, "custom_200", mapping["completion_date"])
	_, ok := mapping["response_4"]
	assert.False(t, ok, "slot without a CRM field must stay unmapped")
}

func TestFieldMappingFetchedOnce(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(2)
	client := crm.client()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FieldMapping(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, crm.callCount("CustomGroup.get"), "concurrent first use must share one fetch")
	assert.Equal(t, 1, crm.callCount("CustomField.get"))
}

func TestFieldMappingFailureLeavesNoPartialCache(t *testing.T) {
	crm := newFakeCRM(t)
	client := crm.client()

	broken := true
	crm.handle("CustomGroup.get", func(params url.Values) (any, error) {
		if broken {
			return nil, errors.New("backend down")
		}
		return []map[string]any{{"id": 5}}, nil
	})
	crm.handle("CustomField.get", func(params url.Values) (any, error) {
		return []map[string]any{{"id": 101, "name": "Response_1"}}, nil
	})

	_, err := client.FieldMapping(context.Background())
	assert.ErrorIs(t, err, ErrFieldMappingUnavailable)

	// nothing cached: the next call retries and succeeds
	broken = false
	mapping, err := client.FieldMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "custom_101", mapping["response_1"])
	assert.Equal(t, 2, crm.callCount("CustomGroup.get"))
}

func TestResetFieldMapping(t *testing.T) {
	crm := newFakeCRM(t)
	crm.withCustomGroup(1)
	client := crm.client()

	_, err := client.FieldMapping(context.Background())
	require.NoError(t, err)

	client.ResetFieldMapping()
	_, err = client.FieldMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, crm.callCount("CustomGroup.get"))
}

func TestCustomGroupMissing(t *testing.T) {
	crm := newFakeCRM(t)
	client := crm.client()

	crm.handle("CustomGroup.get", func(params url.Values) (any, error) {
		return nil, nil
	})

	_, err := client.FieldMapping(context.Background())
	assert.ErrorIs(t, err, ErrFieldMappingUnavailable)
}
