package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gear-aggregator/api"
	"gear-aggregator/config"
	"gear-aggregator/models"
	"gear-aggregator/scraper"
	"gear-aggregator/services"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

func runScrape(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ContinueOnError)
	sourcesPath := fs.String("sources", cfg.SourcesPath, "YAML file listing the sources to scrape")
	pages := fs.Int("pages", cfg.PagesToScrape, "result pages per source")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg.PagesToScrape = *pages

	logger.Info("=== Gear aggregator scrape starting ===")
	logger.Info("Config — pages: %d | concurrency: %d | rate: %dms | ai: %v",
		cfg.PagesToScrape, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.AIEnabled())

	sources, err := scraper.LoadSources(*sourcesPath)
	if err != nil {
		return err
	}

	var rawWriter storage.RawListingWriter
	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			return fmt.Errorf("create CSV writer: %w", err)
		}
		defer csvWriter.Close()
		rawWriter = csvWriter
	}

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	runStart := time.Now()
	raw, err := scraper.New(cfg, sources, logger).Scrape(ctx)
	if err != nil {
		logger.Error("Scrape failed: %v", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("no listings were scraped")
	}

	if rawWriter != nil {
		if err := rawWriter.WriteRaw(raw); err != nil {
			logger.Error("CSV write failed: %v", err)
		} else {
			logger.Info("Raw listings saved to %s", cfg.CSVOutputPath)
		}
	}

	ingestor := services.NewIngestor(services.NewCleaner(logger), p.normalizer, p.store, logger)
	res, err := ingestor.Ingest(ctx, raw, runStart)
	if err != nil {
		return err
	}
	logger.Info("Stored %d listings (%d deactivated) — origins: %v", res.Stored, res.Deactivated, res.ByOrigin)

	return printReport(ctx, p.store, logger, "")
}

func runReclassify(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("reclassify", flag.ContinueOnError)
	cursor := fs.Int64("cursor", 0, "start after this listing id")
	resume := fs.Bool("resume", false, "start from the saved cursor")
	batch := fs.Int("batch", cfg.BatchSize, "listings per page")
	category := fs.String("category", cfg.ReclassifyCategory, "category to revisit")
	source := fs.String("source", "", "only listings from this source")
	budget := fs.Duration("budget", cfg.BatchTimeBudget, "wall-clock budget, 0 for none")
	dryRun := fs.Bool("dry-run", false, "log changes without writing them")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cat, ok := taxonomy.Parse(*category)
	if !ok {
		return fmt.Errorf("unknown category %q", *category)
	}

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.fallback == nil {
		return fmt.Errorf("reclassify needs the AI fallback; set AI_API_KEY")
	}

	sum, err := p.reclassifier(logger).Run(ctx, services.ReclassifyOptions{
		Cursor:     *cursor,
		Resume:     *resume,
		BatchSize:  *batch,
		Category:   cat,
		Source:     *source,
		TimeBudget: *budget,
		CallDelay:  cfg.AICallDelay,
		DryRun:     *dryRun,
	})
	if sum != nil {
		printJSON(sum)
	}
	return err
}

func runClassify(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	var in services.ClassifyInput
	fs.StringVar(&in.Source, "source", "", "source name, for mapping overrides")
	fs.StringVar(&in.Title, "title", "", "listing title")
	fs.StringVar(&in.ExternalCategory, "external", "", "the source's own category")
	fs.StringVar(&in.Description, "description", "", "listing description")
	fs.StringVar(&in.ImageURL, "image", "", "image URL")
	offline := fs.Bool("offline", false, "skip the store; keywords and AI only")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if in.Title == "" && in.ExternalCategory == "" {
		return fmt.Errorf("-title or -external is required")
	}

	var normalizer *services.Normalizer
	if *offline {
		keywords, err := loadKeywords(cfg, logger)
		if err != nil {
			return err
		}
		normalizer = services.NewNormalizer(nil, keywords, newAIClassifier(cfg, logger), logger)
	} else {
		p, err := newPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		normalizer = p.normalizer
	}

	printJSON(normalizer.Classify(ctx, in))
	return nil
}

func runReport(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	source := fs.String("source", "", "only listings from this source")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return printReport(ctx, store, logger, *source)
}

func runServe(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.HTTPAddr, "listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	cat, ok := taxonomy.Parse(cfg.ReclassifyCategory)
	if !ok {
		cat = taxonomy.Other
	}

	srv := api.NewServer(api.Deps{
		Store:        p.store,
		Normalizer:   p.normalizer,
		Mappings:     p.mappings,
		Reclassifier: p.reclassifier(logger),
		Insights:     services.NewInsightService(logger),
		Defaults: services.ReclassifyOptions{
			BatchSize:  cfg.BatchSize,
			Category:   cat,
			TimeBudget: cfg.BatchTimeBudget,
			CallDelay:  cfg.AICallDelay,
		},
		Logger: logger,
	})
	return srv.Run(ctx, *addr)
}

func printReport(ctx context.Context, store storage.ListingStore, logger *utils.Logger, source string) error {
	listings, err := store.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch listings: %w", err)
	}
	if source = strings.ToLower(strings.TrimSpace(source)); source != "" {
		filtered := make([]*models.Listing, 0, len(listings))
		for _, l := range listings {
			if l.Source == source {
				filtered = append(filtered, l)
			}
		}
		listings = filtered
	}

	insights := services.NewInsightService(logger)
	insights.Print(os.Stdout, insights.Generate(listings))
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
