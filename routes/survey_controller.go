package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openfield/canvass/app"
	"github.com/openfield/canvass/civicrm"
	"github.com/openfield/canvass/httpx"
	"github.com/openfield/canvass/log"
	"github.com/openfield/canvass/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeValid parses a JSON body and rejects it before any write when
// required fields are missing.
func decodeValid(body io.Reader, v any) error {
	if err := render.DecodeJSON(body, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

type answerPayload struct {
	Value            string `json:"value" validate:"required"`
	Text             string `json:"text"`
	OriginalPosition *int   `json:"original_position"`
}

func (p answerPayload) input() store.AnswerInput {
	return store.AnswerInput{
		Value:            p.Value,
		OtherText:        p.Text,
		OriginalPosition: p.OriginalPosition,
	}
}

func answerInputs(payloads map[string]answerPayload) map[string]store.AnswerInput {
	inputs := make(map[string]store.AnswerInput, len(payloads))
	for questionID, p := range payloads {
		inputs[questionID] = p.input()
	}
	return inputs
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.ListSurveys(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurveyByID(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyID := chi.URLParam(r, "surveyID")

		survey, err := app.GetSurvey(r.Context(), surveyID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}
		if survey == nil {
			httpx.LogNotFound(w, "get_survey", surveyID)
			return
		}
		render.JSON(w, r, survey)
	}
}

// SubmitAnswer stores one answer as the respondent moves through the
// web form. A missing contact id means a fresh anonymous respondent;
// the generated id is echoed back so the client keeps using it.
func SubmitAnswer(app app.App) http.HandlerFunc {
	type request struct {
		ContactID        string `json:"contact_id"`
		QuestionID       string `json:"question_id" validate:"required"`
		Value            string `json:"value" validate:"required"`
		Text             string `json:"text"`
		OriginalPosition *int   `json:"original_position"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		surveyID := chi.URLParam(r, "surveyID")

		req := request{}
		if err := decodeValid(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if req.ContactID == "" {
			req.ContactID = uuid.NewString()
		}

		err := app.UpsertAnswer(r.Context(), req.ContactID, surveyID, req.QuestionID, store.AnswerInput{
			Value:            req.Value,
			OtherText:        req.Text,
			OriginalPosition: req.OriginalPosition,
		})
		if err != nil {
			httpx.LogInternalError(w, "db.upsert_answer", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success":    true,
			"contact_id": req.ContactID,
		})
	}
}

// SubmitFullSurvey replaces the whole answer set in one transaction.
// Resubmission against a completed session needs an explicit retake
// flag; without it the request is rejected.
func SubmitFullSurvey(app app.App) http.HandlerFunc {
	type request struct {
		ContactID string                   `json:"contact_id"`
		Retake    bool                     `json:"retake"`
		Answers   map[string]answerPayload `json:"answers" validate:"required,min=1"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		surveyID := chi.URLParam(r, "surveyID")

		req := request{}
		if err := decodeValid(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if req.ContactID == "" {
			req.ContactID = uuid.NewString()
		}

		err := app.SubmitFullSurvey(r.Context(), req.ContactID, surveyID, answerInputs(req.Answers), req.Retake)
		if errors.Is(err, store.ErrAlreadyCompleted) {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "db.submit_survey",
				"survey already completed; resubmit with retake to replace answers")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.submit_survey", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success":    true,
			"contact_id": req.ContactID,
		})
	}
}

// CompleteSession finalizes the session locally, then syncs to the CRM
// best-effort. Local completion is the source of truth: a sync failure
// comes back as a warning on a successful response, never as an error.
func CompleteSession(app app.App) http.HandlerFunc {
	type request struct {
		ContactID string `json:"contact_id" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		surveyID := chi.URLParam(r, "surveyID")

		req := request{}
		if err := decodeValid(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		_, err := app.Complete(r.Context(), req.ContactID, surveyID)
		if errors.Is(err, store.ErrAlreadyCompleted) {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "db.complete_session",
				"survey already completed")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.complete_session", err)
			return
		}

		response := map[string]any{
			"success": true,
			"message": "Survey completed successfully",
		}
		if syncErr := syncBestEffort(r, app, req.ContactID, surveyID); syncErr != nil {
			log.Errorf("civicrm.sync: contact %s survey %s: %s", req.ContactID, surveyID, syncErr)
			response["warning"] = "Survey saved locally but CRM sync failed. Retry via /api/crm/resync."
		}

		render.JSON(w, r, response)
	}
}

func SessionStatus(app app.App) http.HandlerFunc {
	type request struct {
		ContactID string `json:"contact_id" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		surveyID := chi.URLParam(r, "surveyID")

		req := request{}
		if err := decodeValid(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		exists, completed, err := app.SessionStatus(r.Context(), req.ContactID, surveyID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_session", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"exists":    exists,
			"completed": completed,
		})
	}
}

// syncBestEffort runs the CRM sync for a just-completed session. The
// contact-verification answer, when present, supplies the hint fields
// used for email-based resolution.
func syncBestEffort(r *http.Request, app app.App, contactID, surveyID string) error {
	answers, err := app.ListAnswers(r.Context(), contactID, surveyID)
	if err != nil {
		return err
	}
	hint := civicrm.ContactHintFromAnswers(answers)
	return app.Sync.SyncSession(r.Context(), contactID, surveyID, hint)
}
