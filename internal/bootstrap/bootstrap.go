package bootstrap

import (
	"log/slog"
	"time"

	"github.com/docuquery/retrieval-engine/internal/config"
	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/core/usecase"
	"github.com/docuquery/retrieval-engine/internal/infrastructure/llm/ollama"
	"github.com/docuquery/retrieval-engine/internal/infrastructure/resilience"
	"github.com/docuquery/retrieval-engine/internal/infrastructure/vector/qdrant"
	"github.com/docuquery/retrieval-engine/internal/observability/logging"
)

// App wires the concrete adapters into the retrieval use cases. Both binaries
// (api, mcp) share this composition root.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Router   *usecase.RetrievalRouter
	Stats    *usecase.UsageStats
	Registry *usecase.PromptRegistry
	Defaults domain.RetrievalOptions
}

func New(cfg config.Config, service string) *App {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		BreakerEnabled:   cfg.BreakerEnabled,
	}, logger)

	llmClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
	searcher := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, exec)

	stats := usecase.NewUsageStats()
	registry := usecase.NewPromptRegistry()

	analyzer := usecase.NewQueryAnalyzer(llmClient, usecase.AnalyzerConfig{
		ClassifyTimeout: time.Duration(cfg.ClassifyTimeoutS) * time.Second,
		MaxTokens:       cfg.ClassifyMaxTokens,
	}, logging.WithComponent(logger, "analyzer"))

	boosts := usecase.BoostTable{
		Single: cfg.BoostSingle,
		Dual:   cfg.BoostDual,
		Multi:  cfg.BoostMulti,
	}.Normalize()

	multihop := usecase.NewMultihopCoordinator(llmClient, searcher, usecase.MultihopConfig{
		MaxConcurrent: cfg.MultihopMaxConcurrent,
		TopKPerRound:  cfg.MultihopTopKPerRound,
		RoundTimeout:  time.Duration(cfg.MultihopRoundTimeoutS) * time.Second,
		Boosts:        boosts,
	}, logging.WithComponent(logger, "multihop"))

	hyde := usecase.NewHypotheticalRetriever(llmClient, llmClient, searcher, registry, stats, usecase.HydeConfig{
		KConst:                  cfg.HydeRRFKConst,
		DocShare:                cfg.HydeDocShare,
		QueryShare:              cfg.HydeQueryShare,
		FallbackMinScore:        cfg.FallbackMinScore,
		FallbackAcceptRatio:     cfg.FallbackAcceptRatio,
		FallbackOverridesPolicy: cfg.FallbackOverridesPolicy,
		MaxTokens:               cfg.HydeMaxTokens,
		GenerateTimeout:         time.Duration(cfg.HydeGenerateTimeoutS) * time.Second,
	}, logging.WithComponent(logger, "hyde"))

	defaults := domain.RetrievalOptions{
		EnableMultihop: cfg.MultihopEnabled,
		EnableHyde:     cfg.HydeEnabled,
		TopKInitial:    cfg.TopKInitial,
		TopKFinal:      cfg.TopKFinal,
	}

	router := usecase.NewRetrievalRouter(analyzer, multihop, hyde, stats, defaults,
		logging.WithComponent(logger, "router"))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Router:   router,
		Stats:    stats,
		Registry: registry,
		Defaults: defaults,
	}
}
