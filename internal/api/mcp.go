package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oferreira/sabia/internal/chat"
	"github.com/oferreira/sabia/internal/retrieval"
	"github.com/oferreira/sabia/internal/store"
)

// MCPSearcher abstracts knowledge-base search for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Snippet, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store        *store.Store
	Chat         ChatService
	Searcher     MCPSearcher
	DefaultOwner string
}

// NewMCPServer creates an MCP server exposing the assistant over the Model
// Context Protocol: asking questions, searching the knowledge base, and
// adding documents to it.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sabia",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Sabiá — assistant for the company's document management system, answering from its internal knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the assistant a question inside a conversation. Creates a conversation when none is given."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Existing conversation to continue")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Semantically search the knowledge base and return matching passages with scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpSearchDocs(deps),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Store a document in the knowledge base and queue it for indexing."),
			mcp.WithString("title", mcp.Description("Document title")),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"conversations://recent",
			"Recent Conversations",
			mcp.WithResourceDescription("Summaries of the most recently active conversations"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		conversationID := req.GetString("conversation_id", "")
		if conversationID == "" {
			conv, err := deps.Chat.CreateConversation(deps.DefaultOwner, nil)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to create conversation: %v", err)), nil
			}
			conversationID = conv.ID
		}

		reply, err := deps.Chat.SendMessage(ctx, chat.SendRequest{
			ConversationID: conversationID,
			OwnerID:        deps.DefaultOwner,
			Content:        message,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to process message: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"conversation_id": conversationID,
			"answer":          reply.AssistantMessage.Content,
			"strategy":        reply.Strategy.String(),
			"metadata":        reply.AssistantMessage.Metadata,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		snippets, err := deps.Searcher.Search(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(snippets) == 0 {
			return mcpText("[]"), nil
		}

		type snippetResult struct {
			DocID      string  `json:"doc_id"`
			Source     string  `json:"source"`
			ChunkIndex int     `json:"chunk_index"`
			Text       string  `json:"text"`
			Score      float64 `json:"score"`
		}

		results := make([]snippetResult, len(snippets))
		for i, s := range snippets {
			results[i] = snippetResult{
				DocID:      s.DocID,
				Source:     s.Source,
				ChunkIndex: s.ChunkIndex,
				Text:       s.Text,
				Score:      s.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		docID := uuid.New().String()
		tagsJSON := "[]"
		if len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		doc := store.ContextDoc{
			ID:        docID,
			Title:     title,
			Content:   content,
			Source:    "mcp",
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveContextDoc(doc); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		if err := enqueueEnrichment(deps.Store, docID); err != nil {
			return mcpError(fmt.Sprintf("saved document but failed to queue indexing: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored document %s", docID)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		summaries, err := deps.Chat.ListConversations(deps.DefaultOwner, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}

		type conversationSummary struct {
			ID          string `json:"id"`
			Title       string `json:"title,omitempty"`
			UpdatedAt   string `json:"updated_at"`
			Messages    int    `json:"messages"`
			LastMessage string `json:"last_message,omitempty"`
		}

		out := make([]conversationSummary, len(summaries))
		for i, s := range summaries {
			var last string
			if s.LastMessage != nil {
				last = s.LastMessage.Content
				if utf8.RuneCountInString(last) > 200 {
					runes := []rune(last)
					last = string(runes[:200]) + "..."
				}
			}
			out[i] = conversationSummary{
				ID:          s.ID,
				Title:       s.Title,
				UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
				Messages:    s.MessageCount,
				LastMessage: last,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summaries: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
