package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/openfield/canvass/app"
	"github.com/openfield/canvass/civicrm"
	"github.com/openfield/canvass/httpx"
	"github.com/openfield/canvass/log"
)

// ManualResync lets an operator retry a failed sync. Unlike the
// completion endpoint, the sync error is returned here: the operator
// asked for the sync itself, not for a survey completion.
func ManualResync(app app.App) http.HandlerFunc {
	type request struct {
		ContactID string `json:"contact_id" validate:"required"`
		SurveyID  string `json:"survey_id" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		req := request{}
		if err := decodeValid(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		answers, err := app.ListAnswers(r.Context(), req.ContactID, req.SurveyID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_answers", err)
			return
		}
		hint := civicrm.ContactHintFromAnswers(answers)

		err = app.Sync.SyncSession(r.Context(), req.ContactID, req.SurveyID, hint)
		if err != nil {
			log.Errorf("civicrm.resync: contact %s survey %s: %s", req.ContactID, req.SurveyID, err)
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "Synced contact " + req.ContactID + " to CRM",
		})
	}
}

// GetCRMContact is an operator debugging aid: a passthrough lookup of a
// contact record in the CRM by its numeric id.
func GetCRMContact(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contactID, err := strconv.Atoi(chi.URLParam(r, "contactID"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.contact_id")
			return
		}

		contact, err := app.CRM.GetContact(r.Context(), contactID)
		if err != nil {
			httpx.LogInternalError(w, "civicrm.get_contact", err)
			return
		}
		if contact == nil {
			httpx.LogNotFound(w, "civicrm.get_contact", contactID)
			return
		}
		render.JSON(w, r, contact)
	}
}
