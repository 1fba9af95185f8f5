package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oferreira/sabia/internal/chat"
	"github.com/oferreira/sabia/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ChatService is the conversation surface the HTTP layer depends on.
type ChatService interface {
	SendMessage(ctx context.Context, req chat.SendRequest) (chat.Reply, error)
	CreateConversation(ownerID string, metadata map[string]string) (store.Conversation, error)
	GetConversation(conversationID, ownerID string) (store.Conversation, error)
	ListConversations(ownerID string, limit, offset int) ([]store.Summary, error)
	DeleteConversation(conversationID, ownerID string) (bool, error)
}

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Chat         ChatService
	Store        *store.Store
	Vectors      VectorCleaner // optional; if nil, vector cleanup is skipped on document delete
	Token        string
	HTTPClient   *http.Client
	DefaultOwner string
}

// VectorCleaner abstracts vector store deletion for the API layer.
type VectorCleaner interface {
	DeleteByDoc(docID string) (int, error)
}

// NewHandler returns the REST API. All routes except /health require the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/conversations", handleCreateConversation(deps))
		r.Get("/conversations", handleListConversations(deps))
		r.Get("/conversations/{id}", handleGetConversation(deps))
		r.Delete("/conversations/{id}", handleDeleteConversation(deps))
		r.Post("/conversations/{id}/messages", handleSendMessage(deps))

		r.Post("/documents", handleCreateDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type createConversationRequest struct {
	OwnerID  string            `json:"owner_id"`
	Metadata map[string]string `json:"metadata"`
}

func handleCreateConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		owner := req.OwnerID
		if owner == "" {
			owner = deps.DefaultOwner
		}

		conv, err := deps.Chat.CreateConversation(owner, req.Metadata)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(conv)
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerParam(r, deps.DefaultOwner)
		limit := parseIntParam(r, "limit", 10, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		summaries, err := deps.Chat.ListConversations(owner, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list conversations: %v", err)
			return
		}

		if summaries == nil {
			summaries = []store.Summary{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		owner := ownerParam(r, deps.DefaultOwner)

		conv, err := deps.Chat.GetConversation(id, owner)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conv)
	}
}

func handleDeleteConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		owner := ownerParam(r, deps.DefaultOwner)

		existed, err := deps.Chat.DeleteConversation(id, owner)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete conversation: %v", err)
			return
		}
		if !existed {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

type sendMessageRequest struct {
	OwnerID      string `json:"owner_id"`
	Content      string `json:"content"`
	SystemPrompt string `json:"system_prompt"`
}

type sendMessageResponse struct {
	UserMessage      store.Message `json:"user_message"`
	AssistantMessage store.Message `json:"assistant_message"`
	Intent           string        `json:"intent"`
	Strategy         string        `json:"strategy"`
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		owner := req.OwnerID
		if owner == "" {
			owner = deps.DefaultOwner
		}

		reply, err := deps.Chat.SendMessage(r.Context(), chat.SendRequest{
			ConversationID: chi.URLParam(r, "id"),
			OwnerID:        owner,
			Content:        req.Content,
			SystemPrompt:   req.SystemPrompt,
		})
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to process message: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sendMessageResponse{
			UserMessage:      reply.UserMessage,
			AssistantMessage: reply.AssistantMessage,
			Intent:           reply.Intent.String(),
			Strategy:         reply.Strategy.String(),
		})
	}
}

func ownerParam(r *http.Request, fallback string) string {
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		return owner
	}
	return fallback
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
