package app

import (
	"context"
	"fmt"

	"github.com/upb/smart-retail-assistant/config"
	"github.com/upb/smart-retail-assistant/repositories"
	"github.com/upb/smart-retail-assistant/repositories/memory"
	"github.com/upb/smart-retail-assistant/repositories/postgres"
	"github.com/upb/smart-retail-assistant/repositories/qdrant"
	"github.com/upb/smart-retail-assistant/services/answer"
	"github.com/upb/smart-retail-assistant/services/catalog"
	"github.com/upb/smart-retail-assistant/services/embedding"
	"github.com/upb/smart-retail-assistant/services/ingestion"
	"github.com/upb/smart-retail-assistant/services/prompt"
	"github.com/upb/smart-retail-assistant/services/providers"
	"github.com/upb/smart-retail-assistant/services/providers/openai"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Catalog backend selected by Index.Backend
	Store repositories.ProductStore

	// Model provider (OpenAI or Azure OpenAI)
	Provider providers.Provider

	// Services
	Embedder  *embedding.Client
	Catalog   *catalog.Index
	Composer  *prompt.Composer
	Assembler *prompt.Assembler
	Engine    *answer.Engine
	Pipeline  *ingestion.Pipeline
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	store, err := NewStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog store: %w", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("catalog store is not reachable: %w", err)
	}

	deps := Wire(cfg, store, NewProvider(cfg), logger)

	logger.Info("all dependencies initialized successfully",
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("provider", deps.Provider.Name()))
	return deps, nil
}

// NewStore opens the catalog backend named by cfg.Index.Backend
func NewStore(cfg *config.Config, logger *zap.Logger) (repositories.ProductStore, error) {
	switch cfg.Index.Backend {
	case config.IndexBackendPostgres:
		db, err := postgres.NewDB(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return postgres.NewProductRepository(db, cfg.Index.ProductsTable, logger), nil

	case config.IndexBackendQdrant:
		return qdrant.NewProductIndex(cfg.Index.Qdrant, logger)

	case config.IndexBackendMemory:
		logger.Warn("using in-memory catalog, products are lost on restart")
		return memory.NewProductIndex(), nil

	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// NewProvider builds the OpenAI adapter; an Azure endpoint switches it to Azure OpenAI
func NewProvider(cfg *config.Config) providers.Provider {
	oa := cfg.Providers.OpenAI
	providerCfg := providers.DefaultProviderConfig()
	providerCfg.APIKey = oa.APIKey
	providerCfg.BaseURL = oa.BaseURL
	providerCfg.AzureEndpoint = oa.AzureEndpoint
	providerCfg.AzureAPIVersion = oa.AzureAPIVersion
	providerCfg.Timeout = oa.Timeout
	providerCfg.MaxRetries = oa.MaxRetries
	providerCfg.RetryDelay = oa.RetryDelay

	var opts []openai.Option
	if cfg.Observability.TracingEnabled {
		opts = append(opts, openai.WithTracing())
	}
	return openai.NewOpenAIAdapter(providerCfg, opts...)
}

// Wire builds every service on top of an already opened store and provider
func Wire(cfg *config.Config, store repositories.ProductStore, provider providers.Provider, logger *zap.Logger) *Dependencies {
	r := cfg.Retrieval

	embedder := embedding.NewClient(provider, embedding.Config{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    r.EmbedTimeout,
	}, logger.Named("embedding"))

	index := catalog.NewIndex(store, catalog.Config{
		Dimensions:    cfg.Embedding.Dimensions,
		MaxTopK:       r.MaxTopK,
		MinSimilarity: r.MinSimilarity,
		Timeout:       r.SearchTimeout,
	}, logger.Named("catalog"))

	composer := prompt.NewComposer(prompt.ComposerConfig{
		DescriptionMaxChars: r.DescriptionMaxChars,
		CurrencySymbol:      r.CurrencySymbol,
		NoResultsText:       r.NoResultsText,
	})
	assembler := prompt.NewAssembler(r.HistoryWindow)

	engine := answer.NewEngine(embedder, index, composer, assembler, provider, answer.Config{
		TopK:         r.TopK,
		SystemPrompt: r.SystemPrompt,
		Model:        cfg.Generation.Model,
		Temperature:  cfg.Generation.Temperature,
		MaxTokens:    cfg.Generation.MaxTokens,
		Timeout:      cfg.Generation.Timeout,
	}, logger.Named("answer"))

	in := cfg.Ingestion
	pipeline := ingestion.NewPipeline(store, embedder, ingestion.Config{
		Dimensions:         cfg.Embedding.Dimensions,
		MaxNameLength:      in.MaxNameLength,
		MaxCategoryLength:  in.MaxCategoryLength,
		MaxBrandLength:     in.MaxBrandLength,
		EmbedRatePerSecond: in.EmbedRatePerSecond,
		EmbedBurst:         in.EmbedBurst,
	}, logger.Named("ingestion"))

	return &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Provider:  provider,
		Embedder:  embedder,
		Catalog:   index,
		Composer:  composer,
		Assembler: assembler,
		Engine:    engine,
		Pipeline:  pipeline,
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close catalog store: %w", err))
		} else {
			d.Logger.Info("catalog store closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
