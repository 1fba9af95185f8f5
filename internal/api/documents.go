package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oferreira/sabia/internal/ingest"
	"github.com/oferreira/sabia/internal/store"
)

const maxDocumentBodySize = 10 << 20 // 10MB
const maxURLFetchSize = 5 << 20      // 5MB

type createDocumentRequest struct {
	Source  string   `json:"source"`
	Type    string   `json:"type"` // text, url or file
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url"`
	Name    string   `json:"name"` // file name, used to pick the extractor
	Tags    []string `json:"tags"`
}

func handleCreateDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var req createDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Source == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source is required")
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		var resolvedContent string
		switch {
		case req.Type == "url" && req.URL != "":
			text, title, err := fetchURLContent(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			resolvedContent = text
			if req.Title == "" {
				if title != "" {
					req.Title = title
				} else {
					req.Title = req.URL
				}
			}

		case req.Type == "file" && req.Content != "":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			text, err := ingest.ExtractText(req.Name, decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract text: %v", err)
				return
			}
			resolvedContent = text

		default:
			resolvedContent = req.Content
		}

		docID := uuid.New().String()

		tagsJSON := "[]"
		if req.Tags != nil {
			b, err := json.Marshal(req.Tags)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal tags: %v", err)
				return
			}
			tagsJSON = string(b)
		}

		doc := store.ContextDoc{
			ID:        docID,
			Title:     req.Title,
			Content:   resolvedContent,
			Source:    req.Source,
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveContextDoc(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		if err := enqueueEnrichment(deps.Store, docID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     docID,
			"status": "queued",
		})
	}
}

// fetchURLContent downloads a page and extracts its visible text and title.
func fetchURLContent(ctx context.Context, client *http.Client, url string) (text, title string, err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", errors.New(resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return "", "", err
	}

	text, err = ingest.ExtractHTML(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	title, _ = ingest.HTMLTitle(bytes.NewReader(body))
	return text, title, nil
}

func enqueueEnrichment(st *store.Store, docID string) error {
	payload, err := json.Marshal(ingest.EnrichPayload{DocID: docID})
	if err != nil {
		return err
	}
	return st.EnqueueJob(store.Job{
		ID:          uuid.New().String(),
		Type:        ingest.JobTypeEnrich,
		PayloadJSON: string(payload),
	})
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		docs, err := deps.Store.ListContextDocs(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		if docs == nil {
			docs = []store.ContextDoc{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if deps.Vectors != nil {
			if _, err := deps.Vectors.DeleteByDoc(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete vectors: %v", err)
				return
			}
		}

		err := deps.Store.DeleteContextDoc(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}
