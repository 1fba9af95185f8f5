package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oferreira/sabia/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message to the assistant",
	Long: `Send a message to the assistant.

Examples:
  sabia ask "como cadastro um novo documento?"
  sabia ask --conversation 3f2a... "e quem aprova depois?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		conversationID, _ := cmd.Flags().GetString("conversation")
		systemPrompt, _ := cmd.Flags().GetString("system-prompt")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if conversationID == "" {
			resp, err := client.post(ctx, "/conversations", map[string]any{})
			if err != nil {
				return err
			}
			var conv struct {
				ID string `json:"id"`
			}
			if err := decodeJSON(resp, &conv); err != nil {
				return err
			}
			conversationID = conv.ID
		}

		body := map[string]any{"content": message}
		if systemPrompt != "" {
			body["system_prompt"] = systemPrompt
		}
		resp, err := client.post(ctx, "/conversations/"+conversationID+"/messages", body)
		if err != nil {
			return err
		}

		var reply struct {
			AssistantMessage struct {
				Content string `json:"content"`
			} `json:"assistant_message"`
			Intent   string `json:"intent"`
			Strategy string `json:"strategy"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		fmt.Println(reply.AssistantMessage.Content)
		printStatus("Conversation", "%s", conversationID)
		printStatus("Strategy", "%s", reply.Strategy)
		return nil
	},
}

func init() {
	askCmd.Flags().String("conversation", "", "conversation ID to continue (default: start a new one)")
	askCmd.Flags().String("system-prompt", "", "override the system prompt for this turn")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest content into the knowledge base",
	Long: `Ingest content into the knowledge base.

Examples:
  sabia ingest --text "O fluxo de aprovação tem três etapas" --tags processos
  sabia ingest --url https://wiki.example.com/politica-de-acesso --tags politicas
  sabia ingest --file ./manual.pdf --title "Manual do usuário" --tags manuais`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && url == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{
			"source": "cli",
		}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			switch strings.ToLower(filepath.Ext(file)) {
			case ".pdf", ".html", ".htm":
				req["type"] = "file"
				req["content"] = base64.StdEncoding.EncodeToString(data)
				req["name"] = filepath.Base(file)
			default:
				req["type"] = "text"
				req["content"] = string(data)
			}
			if title == "" {
				req["title"] = filepath.Base(file)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/documents", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s", result["id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (.pdf and .html are extracted server-side)")
	ingestCmd.Flags().String("title", "", "title for the document")
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage knowledge base documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge base documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var docs []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Source    string `json:"source"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			title := d.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %-8s  %s\n",
				colorize(colorCyan, d.ID[:8]),
				d.Source,
				title,
			)
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	docsListCmd.Flags().Int("limit", 20, "maximum number of documents to list")
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage conversation history",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/conversations?limit=%d", limit))
		if err != nil {
			return err
		}

		var conversations []struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			UpdatedAt    string `json:"updated_at"`
			MessageCount int    `json:"message_count"`
		}
		if err := decodeJSON(resp, &conversations); err != nil {
			return err
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, c := range conversations {
			title := c.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %s  %3d msgs  %s\n",
				colorize(colorCyan, c.ID[:8]),
				c.UpdatedAt,
				c.MessageCount,
				title,
			)
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single conversation with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations/"+args[0])
		if err != nil {
			return err
		}

		var conversation any
		if err := decodeJSON(resp, &conversation); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conversation)
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored data as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var writer *os.File
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		} else {
			writer = os.Stdout
		}

		enc := json.NewEncoder(writer)

		// Export documents.
		offset := 0
		for {
			resp, err := client.get(ctx, fmt.Sprintf("/documents?limit=100&offset=%d", offset))
			if err != nil {
				return err
			}
			var docs []any
			if err := decodeJSON(resp, &docs); err != nil {
				return err
			}
			if len(docs) == 0 {
				break
			}
			for _, doc := range docs {
				record := map[string]any{"type": "document", "data": doc}
				enc.Encode(record)
			}
			offset += len(docs)
		}

		// Export conversations, including their messages.
		offset = 0
		for {
			resp, err := client.get(ctx, fmt.Sprintf("/conversations?limit=100&offset=%d", offset))
			if err != nil {
				return err
			}
			var summaries []struct {
				ID string `json:"id"`
			}
			if err := decodeJSON(resp, &summaries); err != nil {
				return err
			}
			if len(summaries) == 0 {
				break
			}
			for _, s := range summaries {
				convResp, err := client.get(ctx, "/conversations/"+s.ID)
				if err != nil {
					return err
				}
				var conv any
				if err := decodeJSON(convResp, &conv); err != nil {
					return err
				}
				record := map[string]any{"type": "conversation", "data": conv}
				enc.Encode(record)
			}
			offset += len(summaries)
		}

		if output != "" {
			printSuccess("Data exported to %s", output)
		}
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL stored data. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		printStep("Deleting documents...")
		if failures, err := purgeEndpoint(ctx, client, "/documents"); err != nil {
			return err
		} else if failures > 0 {
			printError("Failed to delete %d documents", failures)
		}

		printStep("Deleting conversations...")
		if failures, err := purgeEndpoint(ctx, client, "/conversations"); err != nil {
			return err
		} else if failures > 0 {
			printError("Failed to delete %d conversations", failures)
		}

		printSuccess("All data purged")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}

// purgeEndpoint deletes every item behind a list endpoint, returning how
// many deletions failed. Stops when a pass makes no progress.
func purgeEndpoint(ctx context.Context, client *apiClient, path string) (int, error) {
	totalFailures := 0
	for {
		resp, err := client.get(ctx, path+"?limit=100")
		if err != nil {
			return totalFailures, err
		}
		var items []struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return totalFailures, err
		}
		if len(items) == 0 {
			return totalFailures, nil
		}

		failures := 0
		for _, item := range items {
			resp, err := client.delete(ctx, path+"/"+item.ID)
			if err != nil {
				return totalFailures + failures, err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				printError("Failed to delete %s: %v", item.ID, err)
				failures++
			}
		}
		totalFailures += failures
		if failures == len(items) {
			return totalFailures, nil
		}
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
