package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oferreira/sabia/internal/chat"
	"github.com/oferreira/sabia/internal/intent"
	"github.com/oferreira/sabia/internal/relevance"
	"github.com/oferreira/sabia/internal/store"
)

const testToken = "test-token"

type mockChat struct {
	sendFn   func(ctx context.Context, req chat.SendRequest) (chat.Reply, error)
	createFn func(ownerID string, metadata map[string]string) (store.Conversation, error)
	getFn    func(conversationID, ownerID string) (store.Conversation, error)
	listFn   func(ownerID string, limit, offset int) ([]store.Summary, error)
	deleteFn func(conversationID, ownerID string) (bool, error)
}

func (m *mockChat) SendMessage(ctx context.Context, req chat.SendRequest) (chat.Reply, error) {
	return m.sendFn(ctx, req)
}

func (m *mockChat) CreateConversation(ownerID string, metadata map[string]string) (store.Conversation, error) {
	return m.createFn(ownerID, metadata)
}

func (m *mockChat) GetConversation(conversationID, ownerID string) (store.Conversation, error) {
	return m.getFn(conversationID, ownerID)
}

func (m *mockChat) ListConversations(ownerID string, limit, offset int) ([]store.Summary, error) {
	return m.listFn(ownerID, limit, offset)
}

func (m *mockChat) DeleteConversation(conversationID, ownerID string) (bool, error) {
	return m.deleteFn(conversationID, ownerID)
}

func newTestServer(t *testing.T, svc ChatService) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := NewHandler(Deps{
		Chat:         svc,
		Store:        st,
		Token:        testToken,
		HTTPClient:   http.DefaultClient,
		DefaultOwner: "local",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, st
}

func doRequest(t *testing.T, method, url string, body any, authed bool) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, &mockChat{})

	resp := doRequest(t, http.MethodGet, srv.URL+"/health", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuth_RejectsMissingAndWrongTokens(t *testing.T) {
	srv, _ := newTestServer(t, &mockChat{})

	resp := doRequest(t, http.MethodGet, srv.URL+"/conversations", nil, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/conversations", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", resp2.StatusCode)
	}
}

func TestCreateConversation(t *testing.T) {
	svc := &mockChat{
		createFn: func(ownerID string, metadata map[string]string) (store.Conversation, error) {
			if ownerID != "ana" {
				t.Errorf("ownerID = %q, want ana", ownerID)
			}
			return store.Conversation{ID: "conv-1", OwnerID: ownerID, Metadata: metadata}, nil
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodPost, srv.URL+"/conversations",
		map[string]any{"owner_id": "ana", "metadata": map[string]string{"title": "Dúvidas"}}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var conv store.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if conv.ID != "conv-1" {
		t.Errorf("conversation id = %q", conv.ID)
	}
}

func TestCreateConversation_DefaultOwner(t *testing.T) {
	svc := &mockChat{
		createFn: func(ownerID string, metadata map[string]string) (store.Conversation, error) {
			if ownerID != "local" {
				t.Errorf("ownerID = %q, want default owner local", ownerID)
			}
			return store.Conversation{ID: "conv-2", OwnerID: ownerID}, nil
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodPost, srv.URL+"/conversations", map[string]any{}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}

func TestSendMessage(t *testing.T) {
	svc := &mockChat{
		sendFn: func(ctx context.Context, req chat.SendRequest) (chat.Reply, error) {
			if req.ConversationID != "conv-1" || req.Content != "como aprovo um documento?" {
				t.Errorf("unexpected request: %+v", req)
			}
			return chat.Reply{
				UserMessage:      store.Message{ID: "m1", Role: store.RoleUser, Content: req.Content},
				AssistantMessage: store.Message{ID: "m2", Role: store.RoleAssistant, Content: "Pelo menu de aprovações."},
				Intent:           intent.SystemKnowledge,
				Strategy:         relevance.StrategyContextBased,
			}, nil
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodPost, srv.URL+"/conversations/conv-1/messages",
		map[string]any{"content": "como aprovo um documento?"}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Strategy != "context_based" {
		t.Errorf("strategy = %q, want context_based", out.Strategy)
	}
	if out.Intent != "SYSTEM_KNOWLEDGE" {
		t.Errorf("intent = %q, want SYSTEM_KNOWLEDGE", out.Intent)
	}
	if out.AssistantMessage.Content != "Pelo menu de aprovações." {
		t.Errorf("assistant content = %q", out.AssistantMessage.Content)
	}
}

func TestSendMessage_EmptyContent(t *testing.T) {
	srv, _ := newTestServer(t, &mockChat{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/conversations/conv-1/messages",
		map[string]any{"content": ""}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendMessage_ConversationNotFound(t *testing.T) {
	svc := &mockChat{
		sendFn: func(ctx context.Context, req chat.SendRequest) (chat.Reply, error) {
			return chat.Reply{}, store.ErrNotFound
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodPost, srv.URL+"/conversations/missing/messages",
		map[string]any{"content": "oi"}, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	svc := &mockChat{
		getFn: func(conversationID, ownerID string) (store.Conversation, error) {
			return store.Conversation{}, store.ErrNotFound
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodGet, srv.URL+"/conversations/missing", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListConversations_PassesPagination(t *testing.T) {
	svc := &mockChat{
		listFn: func(ownerID string, limit, offset int) ([]store.Summary, error) {
			if ownerID != "ana" || limit != 5 || offset != 10 {
				t.Errorf("got owner=%q limit=%d offset=%d", ownerID, limit, offset)
			}
			return nil, nil
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodGet, srv.URL+"/conversations?owner_id=ana&limit=5&offset=10", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := new(bytes.Buffer)
	body.ReadFrom(resp.Body)
	if got := strings.TrimSpace(body.String()); got != "[]" {
		t.Errorf("nil summaries rendered as %q, want []", got)
	}
}

func TestDeleteConversation(t *testing.T) {
	existed := true
	svc := &mockChat{
		deleteFn: func(conversationID, ownerID string) (bool, error) {
			return existed, nil
		},
	}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/conversations/conv-1", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	existed = false
	resp = doRequest(t, http.MethodDelete, srv.URL+"/conversations/conv-1", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateDocument_QueuesEnrichment(t *testing.T) {
	srv, st := newTestServer(t, &mockChat{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/documents", map[string]any{
		"source":  "manual.md",
		"title":   "Manual",
		"content": "O fluxo de aprovação tem três etapas.",
		"tags":    []string{"aprovação"},
	}, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out["status"] != "queued" || out["id"] == "" {
		t.Errorf("response = %v", out)
	}

	doc, err := st.GetContextDoc(out["id"])
	if err != nil {
		t.Fatalf("GetContextDoc: %v", err)
	}
	if doc.Content != "O fluxo de aprovação tem três etapas." {
		t.Errorf("stored content = %q", doc.Content)
	}

	job, err := st.ClaimNextJob([]string{"doc_enrich"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no enrichment job queued")
	}
	if !strings.Contains(job.PayloadJSON, out["id"]) {
		t.Errorf("job payload %q missing doc id", job.PayloadJSON)
	}
}

func TestCreateDocument_Validation(t *testing.T) {
	srv, _ := newTestServer(t, &mockChat{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/documents", map[string]any{
		"content": "sem source",
	}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing source: status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/documents", map[string]any{
		"source": "manual.md",
	}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing content: status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateDocument_FromURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Política de Acesso</title></head><body><p>Somente gestores aprovam.</p></body></html>`)
	}))
	defer page.Close()

	srv, st := newTestServer(t, &mockChat{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/documents", map[string]any{
		"source": page.URL,
		"type":   "url",
		"url":    page.URL,
	}, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	doc, err := st.GetContextDoc(out["id"])
	if err != nil {
		t.Fatalf("GetContextDoc: %v", err)
	}
	if !strings.Contains(doc.Content, "Somente gestores aprovam.") {
		t.Errorf("fetched content = %q", doc.Content)
	}
	if doc.Title != "Política de Acesso" {
		t.Errorf("title = %q, want page title", doc.Title)
	}
}

func TestDeleteDocument(t *testing.T) {
	srv, st := newTestServer(t, &mockChat{})

	doc := store.ContextDoc{ID: "doc-1", Title: "Manual", Content: "x", Source: "manual.md", CreatedAt: time.Now().UTC()}
	if err := st.SaveContextDoc(doc); err != nil {
		t.Fatalf("SaveContextDoc: %v", err)
	}

	resp := doRequest(t, http.MethodDelete, srv.URL+"/documents/doc-1", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/documents/doc-1", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}
