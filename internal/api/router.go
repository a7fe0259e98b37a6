package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(requestLogFormatter{}))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		if apiHandler.devLogin {
			r.Post("/login", apiHandler.LoginHandler)
		}
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/presence", apiHandler.TouchPresenceHandler)

			// Conversation routes
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Post("/conversations", apiHandler.CreateConversationHandler)
			r.Get("/conversations/live", apiHandler.ConversationsLiveHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Get("/conversations/{conversationID}/live", apiHandler.ConversationLiveHandler)

			// Message routes
			r.Post("/conversations/{conversationID}/messages", apiHandler.PostMessageHandler)
		})
	})

	return r
}
