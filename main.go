package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gear-aggregator/ai"
	"gear-aggregator/config"
	"gear-aggregator/services"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

const usage = `usage: gear-aggregator <command> [flags]

commands:
  scrape      scrape every configured source, categorize and store listings (default)
  reclassify  re-run the AI fallback over stored "other" listings
  classify    classify a single listing and print the verdict
  report      print category statistics for the stored listings
  serve       run the admin HTTP API
`

func main() {
	cfg := config.Load()
	logger := utils.NewLoggerWithLevel(os.Stdout, cfg.LogLevel)

	cmd, args := "scrape", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "scrape":
		err = runScrape(ctx, cfg, logger, args)
	case "reclassify":
		err = runReclassify(ctx, cfg, logger, args)
	case "classify":
		err = runClassify(ctx, cfg, logger, args)
	case "report":
		err = runReport(ctx, cfg, logger, args)
	case "serve":
		err = runServe(ctx, cfg, logger, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("%s failed: %v", cmd, err)
		os.Exit(1)
	}
}

// openStore picks the storage backend named by STORAGE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "postgres", "":
		store, err := storage.NewPostgresStore(ctx, cfg.DSN())
		if err != nil {
			logger.Error("Make sure PostgreSQL is running: docker compose up -d")
			return nil, err
		}
		logger.Info("Storage: PostgreSQL at %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		return store, nil
	case "sqlite":
		logger.Info("Storage: SQLite at %s", cfg.SQLitePath)
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case "memory":
		logger.Warn("Storage: in-memory, nothing will survive this process")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

func loadKeywords(cfg *config.Config, logger *utils.Logger) (*services.KeywordClassifier, error) {
	if cfg.KeywordsPath == "" {
		return services.NewKeywordClassifier(nil), nil
	}
	table, err := taxonomy.LoadTable(cfg.KeywordsPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Keyword table loaded from %s", cfg.KeywordsPath)
	return services.NewKeywordClassifier(table), nil
}

// newAIClassifier returns nil when no API key is configured.
func newAIClassifier(cfg *config.Config, logger *utils.Logger) services.AIClassifier {
	if !cfg.AIEnabled() {
		logger.Warn("AI_API_KEY not set, AI fallback disabled")
		return nil
	}
	client := ai.NewClient(ai.ClientConfig{
		BaseURL:    cfg.AIAPIURL,
		APIKey:     cfg.AIAPIKey,
		Model:      cfg.AIModel,
		Timeout:    cfg.AITimeout,
		MaxRetries: cfg.AIMaxRetries,
		Logger:     logger,
	})
	return ai.NewClassifier(client, logger, cfg.AIUseImages)
}

// pipeline bundles the classification chain over one store.
type pipeline struct {
	store      storage.Store
	mappings   *services.MappingResolver
	normalizer *services.Normalizer
	keywords   *services.KeywordClassifier
	fallback   services.AIClassifier
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*pipeline, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	keywords, err := loadKeywords(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	mappings := services.NewMappingResolver(store, logger)
	if err := mappings.Refresh(ctx); err != nil {
		logger.Warn("Could not load category mappings: %v", err)
	}
	fallback := newAIClassifier(cfg, logger)

	return &pipeline{
		store:      store,
		mappings:   mappings,
		normalizer: services.NewNormalizer(mappings, keywords, fallback, logger),
		keywords:   keywords,
		fallback:   fallback,
	}, nil
}

func (p *pipeline) Close() error { return p.store.Close() }

func (p *pipeline) reclassifier(logger *utils.Logger) *services.Reclassifier {
	return services.NewReclassifier(p.store, p.store, p.keywords, p.fallback, logger).WithMappings(p.mappings)
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	return fs.Parse(args)
}
