package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"gwi.com/firechat/internal/auth"
	"gwi.com/firechat/internal/core"
)

type APIHandler struct {
	chatService *core.ChatService
	tokens      *auth.Manager
	devLogin    bool
}

func NewAPIHandler(cs *core.ChatService, tokens *auth.Manager, devLogin bool) *APIHandler {
	return &APIHandler{chatService: cs, tokens: tokens, devLogin: devLogin}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for WebSocket upgrades, which cannot carry headers from a
// browser.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		identity, err := h.tokens.ValidateJWT(tokenString)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// currentUser is only called behind JWTAuthMiddleware.
func currentUser(r *http.Request) string {
	id, _ := auth.IdentityFrom(r.Context())
	return id.Email
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps core errors to status codes. Backend failures are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case core.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrNotParticipant):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, core.ErrConversationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Error().Err(err).Str("user", currentUser(r)).Str("path", r.URL.Path).Msg("Failed to " + action)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url"`
}

// LoginHandler is the development sign-in. It trusts the posted email, so it
// is only mounted when DEV_LOGIN is on.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.chatService.SignIn(r.Context(), req.Email, req.PhotoURL); err != nil {
		writeError(w, r, err, "sign in")
		return
	}

	token, err := h.tokens.GenerateJWT(strings.TrimSpace(req.Email))
	if err != nil {
		log.Error().Err(err).Str("user", req.Email).Msg("Error generating JWT")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.chatService.ListConversations(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err, "list conversations")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type CreateConversationRequest struct {
	Recipient string `json:"recipient"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.chatService.CreateConversation(r.Context(), currentUser(r), req.Recipient)
	if err != nil {
		writeError(w, r, err, "create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	details, err := h.chatService.OpenConversation(r.Context(), conversationID, currentUser(r))
	if err != nil {
		writeError(w, r, err, "get conversation")
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.chatService.SendMessage(r.Context(), conversationID, currentUser(r), req.Text)
	if err != nil {
		writeError(w, r, err, "send message")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *APIHandler) TouchPresenceHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.TouchLastSeen(r.Context(), currentUser(r)); err != nil {
		writeError(w, r, err, "update last seen")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
