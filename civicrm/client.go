// Package civicrm talks to a CiviCRM instance over its REST API and
// reconciles completed survey sessions into contact custom fields and
// tags. Local persistence never depends on anything in this package
// succeeding.
package civicrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openfield/canvass/model"
)

var (
	ErrContactNotResolvable    = errors.New("contact not resolvable in CRM")
	ErrFieldMappingUnavailable = errors.New("custom field mapping unavailable")
	ErrExternalUpdateFailed    = errors.New("CRM contact update failed")
)

type Config struct {
	Endpoint    string
	SiteKey     string
	APIKey      string
	CustomGroup string
}

func (cfg Config) Configured() bool {
	return cfg.Endpoint != "" && cfg.SiteKey != "" && cfg.APIKey != ""
}

// Client is safe for concurrent use. The field mapping is process-wide
// state populated at most once; see fields.go.
type Client struct {
	cfg  Config
	http *http.Client

	// field mapping cache, see fields.go
	mu           sync.RWMutex
	fieldMapping map[string]string
	sf           singleflight.Group
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse is the uniform CiviCRM v3 envelope.
type apiResponse struct {
	IsError      int              `json:"is_error"`
	ErrorMessage string           `json:"error_message"`
	ID           flexInt          `json:"id"`
	Count        int              `json:"count"`
	Values       []map[string]any `json:"values"`
}

// flexInt tolerates CiviCRM returning ids as numbers or quoted numbers.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("numeric id expected, got %s", data)
	}
	*f = flexInt(n)
	return nil
}

var writeActions = map[string]bool{
	"create":   true,
	"update":   true,
	"delete":   true,
	"replace":  true,
	"setvalue": true,
}

// apiCall performs one entity+action request. All requests carry the
// site key and API key; write actions go over POST.
func (c *Client) apiCall(ctx context.Context, entity, action string, params map[string]string) (*apiResponse, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("civicrm endpoint: %w", err)
	}

	q := u.Query()
	q.Set("key", c.cfg.SiteKey)
	q.Set("api_key", c.cfg.APIKey)
	q.Set("entity", entity)
	q.Set("action", action)
	q.Set("json", "1")
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	method := http.MethodGet
	if writeActions[action] {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("civicrm %s.%s: %w", entity, action, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("civicrm %s.%s: %w", entity, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("civicrm %s.%s: HTTP %d", entity, action, resp.StatusCode)
	}

	body := apiResponse{}
	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return nil, fmt.Errorf("civicrm %s.%s decode: %w", entity, action, err)
	}

	if body.IsError == 1 {
		return nil, fmt.Errorf("civicrm %s.%s: %s", entity, action, body.ErrorMessage)
	}
	return &body, nil
}

// GetContact fetches one contact by its CiviCRM id, nil if absent.
func (c *Client) GetContact(ctx context.Context, contactID int) (map[string]any, error) {
	resp, err := c.apiCall(ctx, "Contact", "get", map[string]string{
		"id":         strconv.Itoa(contactID),
		"sequential": "1",
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return resp.Values[0], nil
}

// FindContactByEmail returns the first contact matching the email.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (int, bool, error) {
	resp, err := c.apiCall(ctx, "Contact", "get", map[string]string{
		"email":      email,
		"sequential": "1",
	})
	if err != nil {
		return 0, false, err
	}
	return firstValueID(resp)
}

// FindContactByExternalID searches the external_identifier attribute.
func (c *Client) FindContactByExternalID(ctx context.Context, externalID string) (int, bool, error) {
	resp, err := c.apiCall(ctx, "Contact", "get", map[string]string{
		"external_identifier": externalID,
		"sequential":          "1",
	})
	if err != nil {
		return 0, false, err
	}
	return firstValueID(resp)
}

// CreateContact creates an Individual from the hint fields and returns
// the new contact id.
func (c *Client) CreateContact(ctx context.Context, hint model.ContactHint) (int, error) {
	params := map[string]string{"contact_type": "Individual"}
	if hint.FirstName != "" {
		params["first_name"] = hint.FirstName
	}
	if hint.LastName != "" {
		params["last_name"] = hint.LastName
	}
	if hint.Email != "" {
		params["email"] = hint.Email
	}

	resp, err := c.apiCall(ctx, "Contact", "create", params)
	if err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("civicrm Contact.create returned no id")
	}
	return int(resp.ID), nil
}

// UpdateContactFields writes a batch of custom field values onto the
// contact in a single call.
func (c *Client) UpdateContactFields(ctx context.Context, contactID int, fields map[string]string) error {
	params := map[string]string{"id": strconv.Itoa(contactID)}
	for k, v := range fields {
		params[k] = v
	}
	_, err := c.apiCall(ctx, "Contact", "create", params)
	return err
}

// AddTags associates each tag with the contact, creating missing tags
// on the fly. One unmappable tag does not stop the rest.
func (c *Client) AddTags(ctx context.Context, contactID int, tags []string) error {
	var firstErr error
	for _, name := range tags {
		err := c.addTag(ctx, contactID, name)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) addTag(ctx context.Context, contactID int, name string) error {
	resp, err := c.apiCall(ctx, "Tag", "get", map[string]string{
		"name":       name,
		"sequential": "1",
	})
	if err != nil {
		return err
	}

	tagID, found, err := firstValueID(resp)
	if err != nil {
		return err
	}
	if !found {
		created, err := c.apiCall(ctx, "Tag", "create", map[string]string{
			"name":     name,
			"used_for": "civicrm_contact",
		})
		if err != nil {
			return err
		}
		if created.ID == 0 {
			return fmt.Errorf("civicrm Tag.create %q returned no id", name)
		}
		tagID = int(created.ID)
	}

	_, err = c.apiCall(ctx, "EntityTag", "create", map[string]string{
		"entity_table": "civicrm_contact",
		"entity_id":    strconv.Itoa(contactID),
		"tag_id":       strconv.Itoa(tagID),
	})
	return err
}

func firstValueID(resp *apiResponse) (int, bool, error) {
	if len(resp.Values) == 0 {
		return 0, false, nil
	}
	id, err := intFromAny(resp.Values[0]["id"])
	if err != nil {
		return 0, false, fmt.Errorf("civicrm value id: %w", err)
	}
	return id, true, nil
}

func intFromAny(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("unexpected id type %T", v)
	}
}
