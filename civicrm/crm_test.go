package civicrm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// fakeCRM emulates the CiviCRM REST endpoint: one URL, dispatched on
// the entity+action query parameters, answering with the v3 envelope.
type fakeCRM struct {
	t *testing.T

	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(params url.Values) (any, error)

	server *httptest.Server
}

func newFakeCRM(t *testing.T) *fakeCRM {
	t.Helper()

	f := &fakeCRM{
		t:        t,
		calls:    map[string]int{},
		handlers: map[string]func(params url.Values) (any, error){},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCRM) client() *Client {
	return NewClient(Config{
		Endpoint:    f.server.URL,
		SiteKey:     "site-key",
		APIKey:      "api-key",
		CustomGroup: "Poll_Responses",
	})
}

// handle registers a responder for "Entity.action". The returned value
// may be a []map[string]any (becomes values) or a map[string]any
// (merged into the envelope, e.g. {"id": 7}).
func (f *fakeCRM) handle(key string, fn func(params url.Values) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = fn
}

func (f *fakeCRM) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeCRM) serve(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if params.Get("key") != "site-key" || params.Get("api_key") != "api-key" {
		http.Error(w, "bad credentials", http.StatusForbidden)
		return
	}

	key := params.Get("entity") + "." + params.Get("action")

	f.mu.Lock()
	f.calls[key]++
	handler := f.handlers[key]
	f.mu.Unlock()

	if handler == nil {
		f.t.Errorf("unexpected CRM call %s", key)
		http.Error(w, "no handler", http.StatusInternalServerError)
		return
	}

	result, err := handler(params)
	envelope := map[string]any{"is_error": 0}
	switch {
	case err != nil:
		envelope["is_error"] = 1
		envelope["error_message"] = err.Error()
	case result == nil:
		envelope["values"] = []any{}
	default:
		switch v := result.(type) {
		case []map[string]any:
			envelope["values"] = v
		case map[string]any:
			for k, val := range v {
				envelope[k] = val
			}
		default:
			f.t.Fatalf("bad fake result type %T for %s", result, key)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		f.t.Errorf("encode envelope: %v", err)
	}
}

// withCustomGroup wires the standard Poll_Responses metadata: group id
// 5, Response_1..n and the completion date field.
func (f *fakeCRM) withCustomGroup(responseSlots int) {
	f.handle("CustomGroup.get", func(params url.Values) (any, error) {
		if params.Get("name") != "Poll_Responses" {
			return nil, nil
		}
		return []map[string]any{{"id": 5, "name": "Poll_Responses"}}, nil
	})
	f.handle("CustomField.get", func(params url.Values) (any, error) {
		if params.Get("custom_group_id") != "5" {
			return nil, nil
		}
		fields := []map[string]any{}
		for i := 1; i <= responseSlots; i++ {
			fields = append(fields, map[string]any{
				"id":   100 + i,
				"name": fmt.Sprintf("Response_%d", i),
			})
		}
		fields = append(fields, map[string]any{"id": 200, "name": "Completion_Date_and_Time"})
		return fields, nil
	})
}
