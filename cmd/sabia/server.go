package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/oferreira/sabia/internal/api"
	"github.com/oferreira/sabia/internal/chat"
	"github.com/oferreira/sabia/internal/config"
	"github.com/oferreira/sabia/internal/ingest"
	"github.com/oferreira/sabia/internal/intent"
	"github.com/oferreira/sabia/internal/llm"
	"github.com/oferreira/sabia/internal/relevance"
	"github.com/oferreira/sabia/internal/retrieval"
	"github.com/oferreira/sabia/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sabia server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sabia server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sabia system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sabia.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	switch {
	case strings.EqualFold(s, "debug"):
		return slog.LevelDebug
	case strings.EqualFold(s, "warn"):
		return slog.LevelWarn
	case strings.EqualFold(s, "error"):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "sabia version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	})))

	// Without a configured token, generate an ephemeral one for this run.
	apiToken := cfg.Server.APIToken
	if apiToken == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generating API token: %w", err)
		}
		apiToken = hex.EncodeToString(buf)
		slog.Warn("no API token configured, generated an ephemeral one", "token", apiToken)
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sabia is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sabia is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the conversation pipeline.
	var llmClient *llm.Client
	if cfg.OpenAI.BaseURL != "" {
		llmClient = llm.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel, cfg.OpenAI.BaseURL)
	} else {
		llmClient = llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel)
	}

	classifier := intent.NewClassifier(llmClient)
	evaluator, err := relevance.NewEvaluator(relevance.Thresholds{
		High:    cfg.Relevance.High,
		Medium:  cfg.Relevance.Medium,
		Low:     cfg.Relevance.Low,
		VeryLow: cfg.Relevance.VeryLow,
		Min:     cfg.Relevance.Min,
	}, nil)
	if err != nil {
		return fmt.Errorf("building relevance evaluator: %w", err)
	}

	vectorStore := retrieval.NewSQLiteStore(st.DB())
	retriever := retrieval.NewRetriever(llmClient, vectorStore, cfg.Retrieval.TopK)
	orch := chat.NewOrchestrator(st, classifier, retriever, evaluator, llmClient, cfg.Chat.SystemPrompt)

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Chat:         orch,
		Store:        st,
		Vectors:      vectorStore,
		Token:        apiToken,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		DefaultOwner: cfg.Chat.DefaultOwner,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start document enrichment worker.
	worker := ingest.NewWorker(st, retrieval.NewBatchEmbedder(llmClient), vectorStore, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:        st,
		Chat:         orch,
		Searcher:     retriever,
		DefaultOwner: cfg.Chat.DefaultOwner,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sabia listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sabia is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sabia (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sabia (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Show models.
	printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
	if cfg.OpenAI.BaseURL != "" {
		printStatus("API base URL", "%s", cfg.OpenAI.BaseURL)
	}

	// Show document/conversation counts if server is running.
	if cfg.Server.APIToken != "" && resp != nil && resp.StatusCode == 200 {
		docsResp, err := apiGet(client, serverURL+"/documents?limit=100", cfg.Server.APIToken)
		if err == nil {
			var docs []json.RawMessage
			if json.NewDecoder(docsResp.Body).Decode(&docs) == nil {
				printStatus("Documents", "%s", countLabel(len(docs), 100))
			}
			docsResp.Body.Close()
		}
		convResp, err2 := apiGet(client, serverURL+"/conversations?limit=100", cfg.Server.APIToken)
		if err2 == nil {
			var conversations []json.RawMessage
			if json.NewDecoder(convResp.Body).Decode(&conversations) == nil {
				printStatus("Conversations", "%s", countLabel(len(conversations), 100))
			}
			convResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
