// Package config provides YAML-based configuration for ragcore.
// Configuration is loaded with a layered precedence: defaults → YAML file
// → env vars. The result is one resolved Config struct that gets injected
// into every component — nothing reads the environment at call sites.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGCORE_CONFIG environment variable
//  3. ~/.ragcore/config.yaml
//  4. ./ragcore.yaml
//
// If no file is found the system runs from defaults plus env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level resolved configuration.
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the remote vector index connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// WebSearch configures the SearxNG client for the learning loop.
	WebSearch WebSearchConfig `yaml:"websearch"`

	// Retrieval configures the confidence gate and search tunables.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Memory configures conversational memory.
	Memory MemoryConfig `yaml:"memory"`

	// Knowledge configures knowledge store durability.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Lifecycle configures verification and eviction.
	Lifecycle LifecycleConfig `yaml:"lifecycle"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: ollama, openai, or "local"
	// for the deterministic hash embedder only.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// QdrantConfig holds remote vector index settings. An empty Host disables
// the remote index; the store runs local-only.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// WebSearchConfig holds SearxNG settings. An empty BaseURL disables the
// self-learning loop.
type WebSearchConfig struct {
	// BaseURL is the SearxNG instance base URL.
	BaseURL string `yaml:"base_url"`
	// MaxResults caps the hits fed to distillation.
	MaxResults int `yaml:"max_results"`
	// RateLimit is the sustained request rate per second.
	RateLimit float64 `yaml:"rate_limit"`
}

// RetrievalConfig holds the confidence gate and search tunables.
type RetrievalConfig struct {
	// ConfidenceThreshold gates direct answering.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// TopK is the number of matches retrieved per query.
	TopK int `yaml:"top_k"`
	// MinSimilarity is the retrieval score floor.
	MinSimilarity float64 `yaml:"min_similarity"`
	// MaxQueryLength caps query size in characters.
	MaxQueryLength int `yaml:"max_query_length"`
	// MaxContextChars bounds the knowledge context bundle.
	MaxContextChars int `yaml:"max_context_chars"`
}

// MemoryConfig holds conversational memory settings.
type MemoryConfig struct {
	// Capacity is the per-user entry cap.
	Capacity int `yaml:"capacity"`
	// HalfLife is the relevance decay constant.
	HalfLife time.Duration `yaml:"half_life"`
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// KnowledgeConfig holds knowledge store durability settings.
type KnowledgeConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LifecycleConfig holds verification and eviction settings.
type LifecycleConfig struct {
	// VerifyDelay is the wait before a scheduled fact-check runs.
	VerifyDelay time.Duration `yaml:"verify_delay"`
	// MaxAge is the eviction horizon for unverified records.
	MaxAge time.Duration `yaml:"max_age"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGCORE_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// Default returns the built-in defaults applied before file and env layers.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "ollama",
			MaxTokens:   2048,
			Temperature: 0.2,
			Ollama:      OllamaConfig{Host: "http://localhost:11434", Model: "llama3"},
		},
		Embedding: EmbeddingConfig{
			Provider:   "local",
			Dimensions: 256,
		},
		Qdrant: QdrantConfig{
			Port:       6334,
			Collection: "ragcore_knowledge",
		},
		WebSearch: WebSearchConfig{
			MaxResults: 5,
			RateLimit:  1,
		},
		Retrieval: RetrievalConfig{
			ConfidenceThreshold: 0.70,
			TopK:                5,
			MinSimilarity:       0.10,
			MaxQueryLength:      2000,
			MaxContextChars:     3000,
		},
		Memory: MemoryConfig{
			Capacity: 100,
			HalfLife: 7 * 24 * time.Hour,
			DBPath:   defaultDBPath("memory.db"),
		},
		Knowledge: KnowledgeConfig{
			DBPath: defaultDBPath("knowledge.db"),
		},
		Lifecycle: LifecycleConfig{
			VerifyDelay: time.Hour,
			MaxAge:      90 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// defaultDBPath places SQLite files under ~/.ragcore.
func defaultDBPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".ragcore", name)
}

// Load builds the resolved Config: defaults, then the YAML file (if any),
// then env var overrides. Returns the config and the file path that was
// loaded (empty when running without a file).
func Load(explicitPath string, log *slog.Logger) (*Config, string, error) {
	cfg := Default()

	path := resolveConfigPath(explicitPath)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if log != nil {
		if path == "" {
			log.Debug("config: no YAML config file found, using defaults and env vars")
		} else {
			log.Info("config: loaded YAML config", slog.String("path", path))
		}
	}
	return cfg, path, nil
}

// applyEnv overlays environment variables onto the config. Env always wins
// over file and defaults.
func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setDur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setStr("MODEL_PROVIDER", &cfg.Model.Provider)
	setInt("MODEL_MAX_TOKENS", &cfg.Model.MaxTokens)
	setStr("OLLAMA_HOST", &cfg.Model.Ollama.Host)
	setStr("OLLAMA_MODEL", &cfg.Model.Ollama.Model)
	setStr("OPENAI_API_KEY", &cfg.Model.OpenAI.APIKey)
	setStr("OPENAI_MODEL", &cfg.Model.OpenAI.Model)
	setStr("AZURE_OPENAI_API_KEY", &cfg.Model.Azure.APIKey)
	setStr("AZURE_OPENAI_ENDPOINT", &cfg.Model.Azure.Endpoint)
	setStr("AZURE_OPENAI_DEPLOYMENT", &cfg.Model.Azure.Deployment)
	setStr("AZURE_OPENAI_API_VERSION", &cfg.Model.Azure.APIVersion)
	setStr("GOOGLE_API_KEY", &cfg.Model.Gemini.APIKey)
	setStr("GEMINI_MODEL", &cfg.Model.Gemini.Model)

	setStr("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	setStr("EMBEDDING_MODEL", &cfg.Embedding.Model)
	setInt("EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	setStr("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	setStr("EMBEDDING_ENDPOINT", &cfg.Embedding.Endpoint)

	setStr("QDRANT_HOST", &cfg.Qdrant.Host)
	setInt("QDRANT_PORT", &cfg.Qdrant.Port)
	setStr("QDRANT_COLLECTION", &cfg.Qdrant.Collection)
	setStr("QDRANT_API_KEY", &cfg.Qdrant.APIKey)
	if v := os.Getenv("QDRANT_TLS"); v != "" {
		cfg.Qdrant.TLS = v == "true" || v == "1"
	}

	setStr("SEARX_BASE_URL", &cfg.WebSearch.BaseURL)
	setInt("SEARX_MAX_RESULTS", &cfg.WebSearch.MaxResults)

	setFloat("RETRIEVAL_CONFIDENCE_THRESHOLD", &cfg.Retrieval.ConfidenceThreshold)
	setInt("RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	setFloat("RETRIEVAL_MIN_SIMILARITY", &cfg.Retrieval.MinSimilarity)

	setInt("MEMORY_CAPACITY", &cfg.Memory.Capacity)
	setDur("MEMORY_HALF_LIFE", &cfg.Memory.HalfLife)
	setStr("RAGCORE_MEMORY_DB", &cfg.Memory.DBPath)
	setStr("RAGCORE_KNOWLEDGE_DB", &cfg.Knowledge.DBPath)

	setDur("LIFECYCLE_VERIFY_DELAY", &cfg.Lifecycle.VerifyDelay)
	setDur("LIFECYCLE_MAX_AGE", &cfg.Lifecycle.MaxAge)

	setStr("RAGCORE_HOST", &cfg.Server.Host)
	setInt("RAGCORE_PORT", &cfg.Server.Port)
	setStr("RAGCORE_API_KEY", &cfg.Server.APIKey)

	setStr("LOG_LEVEL", &cfg.Logging.Level)
	setStr("LOG_FORMAT", &cfg.Logging.Format)

	setStr("LANGFUSE_PUBLIC_KEY", &cfg.Tracing.PublicKey)
	setStr("LANGFUSE_SECRET_KEY", &cfg.Tracing.SecretKey)
	setStr("LANGFUSE_HOST", &cfg.Tracing.Host)
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGCORE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragcore", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragcore.yaml"); err == nil {
		return "ragcore.yaml"
	}

	return ""
}
