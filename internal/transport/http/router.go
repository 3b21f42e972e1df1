package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"quiz-session-service/internal/auth"
)

// NewRouter mounts the REST API and the websocket endpoint behind verifier.
func NewRouter(api *APIHandler, ws *WSHandler, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)
		r.Get("/ws", ws.ServeWS)
		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", api.createSession)
			r.Get("/", api.listSessions)
			r.Post("/join", api.join)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", api.getSession)
				r.Post("/start", api.start)
				r.Post("/advance", api.advance)
				r.Post("/next-question", api.advance)
				r.Post("/end", api.end)
				r.Post("/answer", api.submitAnswer)
				r.Get("/leaderboard", api.leaderboard)
			})
		})
	})

	return otelhttp.NewHandler(r, "quiz-session-service")
}
