package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sistc/ragcore/internal/classify"
	"github.com/sistc/ragcore/internal/config"
	"github.com/sistc/ragcore/internal/embed"
	"github.com/sistc/ragcore/internal/knowledge"
	"github.com/sistc/ragcore/internal/learn"
	"github.com/sistc/ragcore/internal/lifecycle"
	"github.com/sistc/ragcore/internal/llm"
	"github.com/sistc/ragcore/internal/memory"
	"github.com/sistc/ragcore/internal/pipeline"
	"github.com/sistc/ragcore/internal/provider"
	"github.com/sistc/ragcore/internal/server"
	"github.com/sistc/ragcore/internal/websearch"
)

// app bundles the wired answer engine and the collaborators that need
// explicit shutdown. Built once per command invocation by buildApp.
type app struct {
	engine   *pipeline.Engine
	store    *knowledge.Store
	mem      *memory.Log
	manager  *lifecycle.Manager
	learner  *learn.Learner
	embedder embed.Embedder
	gen      llm.Generator
	// qdrant is the remote index when configured and reachable; nil otherwise.
	qdrant *knowledge.QdrantIndex
}

// Close stops background work and releases durable stores. The lifecycle
// worker drains first so no verification touches a closed store.
func (a *app) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.mem != nil {
		_ = a.mem.Close()
	}
}

// buildApp wires the full answer pipeline from the resolved configuration.
// Optional collaborators (Qdrant, SQLite durability, web learning) degrade
// to disabled with a warning rather than failing startup; the chat model
// and embedder are required.
func buildApp(ctx context.Context, log *slog.Logger) (*app, error) {
	chatModel, err := provider.New(ctx, providerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initialise model provider: %w", err)
	}
	gen, err := llm.NewChatModelGenerator(chatModel)
	if err != nil {
		return nil, fmt.Errorf("initialise generator: %w", err)
	}

	embedder, err := buildEmbedder(log)
	if err != nil {
		return nil, err
	}

	store, qidx, err := buildStore(ctx, embedder.Dimensions(), log)
	if err != nil {
		return nil, err
	}

	mem, err := buildMemory(ctx, log)
	if err != nil {
		return nil, err
	}

	manager, err := lifecycle.NewManager(store, gen, lifecycle.Config{
		VerifyDelay: cfg.Lifecycle.VerifyDelay,
		MaxAge:      cfg.Lifecycle.MaxAge,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialise lifecycle manager: %w", err)
	}
	manager.Start()

	var learner *learn.Learner
	if cfg.WebSearch.BaseURL != "" {
		searcher, serr := websearch.NewSearxClient(&websearch.SearxConfig{
			BaseURL:   cfg.WebSearch.BaseURL,
			RateLimit: cfg.WebSearch.RateLimit,
		})
		if serr != nil {
			return nil, fmt.Errorf("initialise web search: %w", serr)
		}
		learner, err = learn.New(searcher, gen, embedder, store, manager.Categorize,
			learn.Config{MaxResults: cfg.WebSearch.MaxResults}, log)
		if err != nil {
			return nil, fmt.Errorf("initialise learner: %w", err)
		}
		log.Info("web learning enabled", slog.String("searx", cfg.WebSearch.BaseURL))
	} else {
		log.Info("web learning disabled", slog.String("reason", "no websearch base URL configured"))
	}

	engine, err := pipeline.New(pipeline.Deps{
		Embedder:   embedder,
		Store:      store,
		Classifier: classify.New(gen, log),
		Memory:     mem,
		Generator:  gen,
		Learner:    learner,
		Lifecycle:  manager,
		Log:        log,
	}, pipeline.Config{
		ConfidenceThreshold: cfg.Retrieval.ConfidenceThreshold,
		MaxQueryLength:      cfg.Retrieval.MaxQueryLength,
		MaxContextChars:     cfg.Retrieval.MaxContextChars,
		TopK:                cfg.Retrieval.TopK,
		MinSimilarity:       cfg.Retrieval.MinSimilarity,
	})
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("initialise pipeline: %w", err)
	}

	return &app{
		engine:   engine,
		store:    store,
		mem:      mem,
		manager:  manager,
		learner:  learner,
		embedder: embedder,
		gen:      gen,
		qdrant:   qidx,
	}, nil
}

// providerConfig maps the resolved model configuration onto the provider
// package's backend-neutral config.
func providerConfig(c *config.Config) *provider.Config {
	pc := &provider.Config{
		Backend:     provider.Backend(c.Model.Provider),
		MaxTokens:   c.Model.MaxTokens,
		Temperature: c.Model.Temperature,
	}
	switch pc.Backend {
	case provider.BackendOllama:
		pc.Model = c.Model.Ollama.Model
		pc.BaseURL = c.Model.Ollama.Host
	case provider.BackendOpenAI:
		pc.Model = c.Model.OpenAI.Model
		pc.APIKey = c.Model.OpenAI.APIKey
	case provider.BackendAzure:
		pc.Model = c.Model.Azure.Deployment
		pc.BaseURL = c.Model.Azure.Endpoint
		pc.APIKey = c.Model.Azure.APIKey
		pc.AzureDeployment = c.Model.Azure.Deployment
		pc.AzureAPIVersion = c.Model.Azure.APIVersion
	case provider.BackendGemini:
		pc.Model = c.Model.Gemini.Model
		pc.APIKey = c.Model.Gemini.APIKey
	}
	return pc
}

// buildEmbedder constructs the embedding backend. External providers are
// wrapped with the deterministic hash fallback so an embedding outage never
// takes down retrieval; "local" runs the hash embedder alone.
func buildEmbedder(log *slog.Logger) (embed.Embedder, error) {
	dims := cfg.Embedding.Dimensions

	switch cfg.Embedding.Provider {
	case "", "local":
		log.Info("embedding: local hash embedder", slog.Int("dimensions", dims))
		return embed.NewHashEmbedder(dims), nil

	case "ollama":
		host := cfg.Embedding.Endpoint
		if host == "" {
			host = cfg.Model.Ollama.Host
		}
		external := embed.NewOllamaEmbedder(&embed.OllamaConfig{
			Host:       host,
			Model:      cfg.Embedding.Model,
			Dimensions: dims,
		})
		return embed.NewFallbackEmbedder(external, log)

	case "openai":
		external := embed.NewOpenAIEmbedder(&embed.OpenAIConfig{
			BaseURL:    cfg.Embedding.Endpoint,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: dims,
		})
		return embed.NewFallbackEmbedder(external, log)

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want local, ollama, or openai)", cfg.Embedding.Provider)
	}
}

// buildStore constructs the knowledge store with its optional remote index
// and SQLite durability. Both extras degrade to disabled with a warning.
func buildStore(ctx context.Context, dims int, log *slog.Logger) (*knowledge.Store, *knowledge.QdrantIndex, error) {
	var index knowledge.VectorIndex
	var qidx *knowledge.QdrantIndex

	if cfg.Qdrant.Host != "" {
		idx, err := knowledge.NewQdrantIndex(ctx, &knowledge.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.TLS,
		})
		if err != nil {
			log.Warn("qdrant unavailable, retrieval runs on local scoring only", slog.Any("error", err))
		} else {
			index = idx
			qidx = idx
			log.Info("qdrant index ready",
				slog.String("host", cfg.Qdrant.Host),
				slog.String("collection", cfg.Qdrant.Collection),
			)
		}
	}

	persister := openKnowledgeDB(log)

	store, err := knowledge.NewStore(ctx, &knowledge.Config{
		Dimensions: dims,
		Index:      index,
		Persister:  persister,
		Log:        log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialise knowledge store: %w", err)
	}
	return store, qidx, nil
}

// openKnowledgeDB opens the SQLite backing store for knowledge records,
// or returns nil when durability is disabled or the file cannot be opened.
func openKnowledgeDB(log *slog.Logger) knowledge.Persister {
	path := cfg.Knowledge.DBPath
	if path == "" || path == "disabled" {
		log.Info("knowledge durability disabled")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.Warn("knowledge: could not create DB directory, running in-memory", slog.Any("error", err))
		return nil
	}
	db, err := knowledge.OpenSQLite(path)
	if err != nil {
		log.Warn("knowledge: failed to open SQLite store, running in-memory", slog.Any("error", err))
		return nil
	}
	log.Info("knowledge store opened", slog.String("path", path))
	return db
}

// buildMemory constructs conversational memory with optional SQLite
// durability.
func buildMemory(ctx context.Context, log *slog.Logger) (*memory.Log, error) {
	mcfg := &memory.Config{
		Capacity: cfg.Memory.Capacity,
		HalfLife: cfg.Memory.HalfLife,
	}

	if path := cfg.Memory.DBPath; path != "" && path != "disabled" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			log.Warn("memory: could not create DB directory, running in-memory", slog.Any("error", err))
		} else if db, err := memory.OpenSQLite(path); err != nil {
			log.Warn("memory: failed to open SQLite store, running in-memory", slog.Any("error", err))
		} else {
			mcfg.Persister = db
			log.Info("memory store opened", slog.String("path", path))
		}
	} else {
		log.Info("memory durability disabled")
	}

	mem, err := memory.NewLog(ctx, mcfg)
	if err != nil {
		return nil, fmt.Errorf("initialise memory: %w", err)
	}
	return mem, nil
}

// buildPingers assembles the readiness probes for the configured
// collaborators.
func buildPingers(a *app) []server.Pinger {
	var pingers []server.Pinger
	if cfg.Model.Provider == "ollama" && cfg.Model.Ollama.Host != "" {
		pingers = append(pingers, server.NewHTTPPinger(cfg.Model.Ollama.Host, "ollama"))
	}
	if a.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(a.qdrant.Client()))
	}
	if cfg.WebSearch.BaseURL != "" {
		pingers = append(pingers, server.NewHTTPPinger(cfg.WebSearch.BaseURL, "searxng"))
	}
	return pingers
}
