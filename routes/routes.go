package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openfield/canvass/app"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Get("/surveys", ListSurveys(app))
	api.Get("/surveys/{surveyID}", GetSurveyByID(app))
	api.Post("/surveys/{surveyID}/answers", SubmitAnswer(app))
	api.Post("/surveys/{surveyID}/submit", SubmitFullSurvey(app))
	api.Post("/surveys/{surveyID}/complete", CompleteSession(app))
	api.Post("/surveys/{surveyID}/session-status", SessionStatus(app))

	api.Get("/dials/lists", ListDialLists(app))
	api.Get("/dials/lists/{listID}/contacts", ListDialListContacts(app))
	api.Post("/dials/call", RecordCall(app))

	api.Post("/crm/resync", ManualResync(app))
	api.Get(`/crm/contact/{contactID:^\d+$}`, GetCRMContact(app))

	return api
}
