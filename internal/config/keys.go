package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SABIA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SABIA_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "openai.api_key", typ: kString, env: "SABIA_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "SABIA_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.chat_model", typ: kString, env: "SABIA_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.embed_model", typ: kString, env: "SABIA_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SABIA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "chat.default_owner", typ: kString, env: "SABIA_CHAT_DEFAULT_OWNER",
		apply:   func(cfg *Config, v any) { cfg.Chat.DefaultOwner = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.DefaultOwner },
	},
	{
		key: "chat.system_prompt", typ: kString, env: "SABIA_CHAT_SYSTEM_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.Chat.SystemPrompt = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.SystemPrompt },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SABIA_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "relevance.high", typ: kFloat, env: "SABIA_RELEVANCE_HIGH",
		apply:   func(cfg *Config, v any) { cfg.Relevance.High = v.(float64) },
		extract: func(cfg Config) any { return cfg.Relevance.High },
	},
	{
		key: "relevance.medium", typ: kFloat, env: "SABIA_RELEVANCE_MEDIUM",
		apply:   func(cfg *Config, v any) { cfg.Relevance.Medium = v.(float64) },
		extract: func(cfg Config) any { return cfg.Relevance.Medium },
	},
	{
		key: "relevance.low", typ: kFloat, env: "SABIA_RELEVANCE_LOW",
		apply:   func(cfg *Config, v any) { cfg.Relevance.Low = v.(float64) },
		extract: func(cfg Config) any { return cfg.Relevance.Low },
	},
	{
		key: "relevance.very_low", typ: kFloat, env: "SABIA_RELEVANCE_VERY_LOW",
		apply:   func(cfg *Config, v any) { cfg.Relevance.VeryLow = v.(float64) },
		extract: func(cfg Config) any { return cfg.Relevance.VeryLow },
	},
	{
		key: "relevance.min", typ: kFloat, env: "SABIA_RELEVANCE_MIN",
		apply:   func(cfg *Config, v any) { cfg.Relevance.Min = v.(float64) },
		extract: func(cfg Config) any { return cfg.Relevance.Min },
	},
	{
		key: "log.level", typ: kString, env: "SABIA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
