package civicrm

import (
	"context"
	"fmt"
	"strconv"
)

// Abstract answer slots on the contact record. Answers fill
// response_1..response_10 by question order; completion_date is set at
// sync time.
const (
	MaxResponseSlots   = 10
	completionDateSlot = "completion_date"
)

func responseSlot(i int) string {
	return "response_" + strconv.Itoa(i)
}

// FieldMapping returns the slot → custom-field-key mapping, fetching
// the custom group's field definitions on first use. Population is
// singleflight-guarded: concurrent first callers share one fetch. On
// fetch failure nothing is cached and the next call retries, so a
// partially built mapping can never be observed.
func (c *Client) FieldMapping(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	cached := c.fieldMapping
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := c.sf.Do("field-mapping", func() (any, error) {
		fields, err := c.customGroupFields(ctx, c.cfg.CustomGroup)
		if err != nil {
			return nil, err
		}

		mapping := make(map[string]string)
		for i := 1; i <= MaxResponseSlots; i++ {
			if id, ok := fields[fmt.Sprintf("Response_%d", i)]; ok {
				mapping[responseSlot(i)] = "custom_" + strconv.Itoa(id)
			}
		}
		if id, ok := fields["Completion_Date_and_Time"]; ok {
			mapping[completionDateSlot] = "custom_" + strconv.Itoa(id)
		}

		c.mu.Lock()
		c.fieldMapping = mapping
		c.mu.Unlock()
		return mapping, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFieldMappingUnavailable, err)
	}
	return v.(map[string]string), nil
}

// ResetFieldMapping drops the cached mapping. Intended for tests; in
// production the mapping lives for the whole process.
func (c *Client) ResetFieldMapping() {
	c.mu.Lock()
	c.fieldMapping = nil
	c.mu.Unlock()
}

// customGroupFields lists the custom fields of a group, keyed by field
// name, valued by field id.
func (c *Client) customGroupFields(ctx context.Context, groupName string) (map[string]int, error) {
	groupResp, err := c.apiCall(ctx, "CustomGroup", "get", map[string]string{
		"name":       groupName,
		"sequential": "1",
	})
	if err != nil {
		return nil, err
	}
	if len(groupResp.Values) == 0 {
		return nil, fmt.Errorf("custom group %q not found", groupName)
	}
	groupID, err := intFromAny(groupResp.Values[0]["id"])
	if err != nil {
		return nil, fmt.Errorf("custom group id: %w", err)
	}

	fieldsResp, err := c.apiCall(ctx, "CustomField", "get", map[string]string{
		"custom_group_id": strconv.Itoa(groupID),
		"sequential":      "1",
	})
	if err != nil {
		return nil, err
	}

	fields := make(map[string]int, len(fieldsResp.Values))
	for _, value := range fieldsResp.Values {
		name, _ := value["name"].(string)
		if name == "" {
			continue
		}
		id, err := intFromAny(value["id"])
		if err != nil {
			return nil, fmt.Errorf("custom field %q id: %w", name, err)
		}
		fields[name] = id
	}
	return fields, nil
}
