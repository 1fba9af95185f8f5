package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	Chat      ChatConfig
	Retrieval RetrievalConfig
	Relevance RelevanceConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type ChatConfig struct {
	DefaultOwner string
	SystemPrompt string
}

type RetrievalConfig struct {
	TopK int
}

// RelevanceConfig holds the score cutoffs for context tiering. They must be
// strictly descending; the evaluator validates them at startup.
type RelevanceConfig struct {
	High    float64
	Medium  float64
	Low     float64
	VeryLow float64
	Min     float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		OpenAI: OpenAIConfig{
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Chat: ChatConfig{
			DefaultOwner: "local",
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Relevance: RelevanceConfig{
			High:    0.80,
			Medium:  0.70,
			Low:     0.60,
			VeryLow: 0.45,
			Min:     0.35,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sabia.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/sabia/config.json
// and secrets come from a file under $XDG_DATA_HOME/sabia or environment
// variables.
//
// Environment variables (SABIA_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		if key, err := kc.Get("sabia", "openai_api_key"); err == nil && key != "" {
			cfg.OpenAI.APIKey = key
		}
	}

	if cfg.OpenAI.APIKey == "" {
		msg := "missing required config: OpenAI API key. " +
			"Set it via environment variable SABIA_OPENAI_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
