package server

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/pingdaily/ping-daily-web/internal/idtoken"
	jsonwriter "github.com/pingdaily/ping-daily-web/internal/json"
	"github.com/pingdaily/ping-daily-web/internal/log"
)

//go:embed templates/home.html
var homePageTemplateHTML string

var homePageTemplate = template.Must(template.New("home").Parse(homePageTemplateHTML))

// HomePageData represents the data for the landing page
type HomePageData struct {
	AppName string
	// User is nil when the browser context has no session
	User *idtoken.Identity
}

// HomeHandler renders the landing page: a sign-in link, or the signed-in
// user with a sign-out button
func (h *AuthHandlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{AppName: h.appName}

	if bc, ok := BrowserContextFromContext(r.Context()); ok {
		sess, err := h.sessions.Restore(r.Context(), bc.ID)
		if err != nil {
			log.LogErrorWithFields("server", "Failed to restore session", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
			jsonwriter.WriteInternalServerError(w, "Internal Server Error")
			return
		}
		if sess != nil {
			data.User = &sess.User
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := homePageTemplate.Execute(w, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render home page", map[string]any{
			"error": err.Error(),
		})
	}
}
