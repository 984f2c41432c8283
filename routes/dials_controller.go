package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/openfield/canvass/app"
	"github.com/openfield/canvass/httpx"
	"github.com/openfield/canvass/log"
	"github.com/openfield/canvass/store"
)

func ListDialLists(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lists, err := app.ListDialLists(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_dial_lists", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"lists": lists,
		})
	}
}

func ListDialListContacts(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listID := chi.URLParam(r, "listID")

		contacts, err := app.ListContacts(r.Context(), listID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_list_contacts", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"contacts": contacts,
		})
	}
}

// RecordCall persists one dial attempt: call log, list status and, when
// the agent ran the survey, the session and its answers — one
// transaction, all or nothing.
func RecordCall(app app.App) http.HandlerFunc {
	type request struct {
		ContactID string                   `json:"contact_id" validate:"required"`
		ListID    string                   `json:"list_id" validate:"required"`
		SurveyID  string                   `json:"survey_id"`
		Result    string                   `json:"result" validate:"required"`
		Notes     string                   `json:"notes"`
		Answers   map[string]answerPayload `json:"answers"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		req := request{}
		if err := decodeValid(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		rec := store.CallRecord{
			ContactID: req.ContactID,
			ListID:    req.ListID,
			SurveyID:  req.SurveyID,
			Result:    req.Result,
			Notes:     req.Notes,
		}
		if len(req.Answers) > 0 {
			rec.Answers = answerInputs(req.Answers)
		}

		if err := app.SaveCall(r.Context(), rec); err != nil {
			httpx.LogInternalError(w, "db.save_call", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
		})
	}
}
