package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oferreira/sabia/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestIngestCommand_Text(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /documents": `{"id":"doc-123","status":"queued"}`,
	})

	client := ts.client()

	req := map[string]any{
		"source":  "cli",
		"type":    "text",
		"content": "O fluxo de aprovação tem três etapas.",
		"tags":    []string{"processos"},
	}

	resp, err := client.post(ctx, "/documents", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["status"] != "queued" {
		t.Errorf("status = %q, want %q", result["status"], "queued")
	}
	if result["id"] != "doc-123" {
		t.Errorf("id = %q, want %q", result["id"], "doc-123")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Path != "/documents" {
		t.Errorf("path = %q, want /documents", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["source"] != "cli" {
		t.Errorf("body.source = %v, want cli", body["source"])
	}
	if body["content"] != "O fluxo de aprovação tem três etapas." {
		t.Errorf("body.content = %v", body["content"])
	}
}

func TestIngestCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ingest"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestAskFlow_CreatesConversationAndSendsMessage(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /conversations":                 `{"id":"conv-1","owner_id":"local"}`,
		"POST /conversations/conv-1/messages": `{"assistant_message":{"role":"assistant","content":"Você cadastra pelo menu Documentos."},"intent":"SYSTEM_KNOWLEDGE","strategy":"context_based"}`,
	})

	client := ts.client()

	resp, err := client.post(ctx, "/conversations", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var conv struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp, &conv); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if conv.ID != "conv-1" {
		t.Fatalf("conversation id = %q, want conv-1", conv.ID)
	}

	resp, err = client.post(ctx, "/conversations/"+conv.ID+"/messages", map[string]any{
		"content": "como cadastro um documento?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reply struct {
		AssistantMessage struct {
			Content string `json:"content"`
		} `json:"assistant_message"`
		Strategy string `json:"strategy"`
	}
	if err := decodeJSON(resp, &reply); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if reply.AssistantMessage.Content != "Você cadastra pelo menu Documentos." {
		t.Errorf("answer = %q", reply.AssistantMessage.Content)
	}
	if reply.Strategy != "context_based" {
		t.Errorf("strategy = %q, want context_based", reply.Strategy)
	}

	if len(ts.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(ts.requests))
	}
	if ts.requests[1].Path != "/conversations/conv-1/messages" {
		t.Errorf("path = %q", ts.requests[1].Path)
	}
}

func TestDocsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /documents": `[{"id":"doc-00000001","title":"Manual do usuário","source":"cli","created_at":"2025-01-01T00:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/documents?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var docs []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := decodeJSON(resp, &docs); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Title != "Manual do usuário" {
		t.Errorf("title = %q", docs[0].Title)
	}
}

func TestConversationsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /conversations": `[{"id":"conv-001","title":"Dúvidas de acesso","updated_at":"2025-01-01T00:00:00Z","message_count":4}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/conversations?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var conversations []struct {
		ID           string `json:"id"`
		MessageCount int    `json:"message_count"`
	}
	if err := decodeJSON(resp, &conversations); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}
	if conversations[0].MessageCount != 4 {
		t.Errorf("message_count = %d, want 4", conversations[0].MessageCount)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDataExportFormat(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /documents":     `[{"id":"doc-1","title":"teste","content":"olá"}]`,
		"GET /conversations": `[]`,
	})

	client := ts.client()

	resp, err := client.get(ctx, "/documents?limit=100&offset=0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var docs []any
	if err := decodeJSON(resp, &docs); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		record := map[string]any{"type": "document", "data": doc}
		if err := enc.Encode(record); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("expected 1 JSONL line, got %d", len(lines))
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("invalid JSONL: %v", err)
	}
	if record["type"] != "document" {
		t.Errorf("type = %v, want document", record["type"])
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	_, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/conversations")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.OpenAI.ChatModel = "gpt-4o-mini"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}

func TestPurgeEndpoint_CollectsFailures(t *testing.T) {
	callCount := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" {
			w.Header().Set("Content-Type", "application/json")
			if callCount == 0 {
				callCount++
				w.Write([]byte(`[{"id":"doc-1"},{"id":"doc-2"}]`))
			} else {
				w.Write([]byte(`[]`))
			}
			return
		}
		if r.Method == "DELETE" {
			if strings.HasSuffix(r.URL.Path, "doc-1") {
				w.WriteHeader(500)
				w.Write([]byte(`{"error":{"message":"internal error"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"deleted"}`))
			return
		}
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "test",
		httpClient: ts.Client(),
	}

	failures, err := purgeEndpoint(ctx, client, "/documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
