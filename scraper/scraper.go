package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gear-aggregator/config"
	"gear-aggregator/models"
	"gear-aggregator/utils"
)

// Scraper collects raw listings from every configured source. Sources run
// concurrently on the worker pool; pages within a source are fetched in
// order.
type Scraper struct {
	cfg        *config.Config
	sources    []Source
	logger     *utils.Logger
	pool       *utils.WorkerPool
	visitedURL *utils.URLSet
	retry      *utils.RetryConfig
	pageLimit  *utils.RateLimiter

	renderers map[string]Renderer

	mu       sync.Mutex
	listings []*models.RawListing
	failures map[string]error
}

// New creates a ready-to-use Scraper. Renderers are keyed by render mode;
// WithRenderer overrides the defaults.
func New(cfg *config.Config, sources []Source, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:        cfg,
		sources:    sources,
		logger:     logger,
		pool:       utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		visitedURL: utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		pageLimit: utils.NewRateLimiter(time.Duration(cfg.RateLimitMs) * time.Millisecond),
		renderers: make(map[string]Renderer),
		failures:  make(map[string]error),
	}
}

// WithRenderer sets the renderer used for mode.
func (s *Scraper) WithRenderer(mode string, r Renderer) *Scraper {
	s.renderers[mode] = r
	return s
}

// Scrape fetches every source and returns all raw listings collected. A
// failing source is logged and skipped; the error is non-nil only when
// every source failed.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.RawListing, error) {
	s.logger.Info("[scraper] Starting scrape — %d sources, up to %d pages each",
		len(s.sources), s.cfg.PagesToScrape)

	if _, ok := s.renderers[RenderHTTP]; !ok {
		s.renderers[RenderHTTP] = NewHTTPRenderer(30 * time.Second)
	}
	if _, ok := s.renderers[RenderBrowser]; !ok && s.needsBrowser() {
		chrome := NewChromeRenderer(s.cfg.ChromeBin)
		defer chrome.Close()
		s.renderers[RenderBrowser] = chrome
	}

	for _, src := range s.sources {
		src := src
		s.pool.Submit(func() {
			n, err := s.scrapeSource(ctx, src)
			if err != nil {
				s.logger.Error("[scraper] %s failed after %d listings: %v", src.Name, n, err)
				s.mu.Lock()
				s.failures[src.Name] = err
				s.mu.Unlock()
				return
			}
			s.logger.Info("[scraper] %s done — %d listings", src.Name, n)
		})
	}
	s.pool.Wait()

	s.logger.Info("[scraper] Scrape complete — total raw listings: %d", len(s.listings))
	if len(s.sources) > 0 && len(s.failures) == len(s.sources) {
		return s.listings, fmt.Errorf("scraper: all %d sources failed", len(s.sources))
	}
	return s.listings, nil
}

func (s *Scraper) needsBrowser() bool {
	for _, src := range s.sources {
		if src.Render == RenderBrowser {
			return true
		}
	}
	return false
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source) (int, error) {
	renderer, ok := s.renderers[src.Render]
	if !ok {
		return 0, fmt.Errorf("no renderer for mode %q", src.Render)
	}

	pages := src.Pages
	if pages <= 0 {
		pages = s.cfg.PagesToScrape
	}

	total := 0
	pageURL := src.StartURL
	for page := 1; page <= pages && pageURL != ""; page++ {
		if err := s.pageLimit.Wait(ctx); err != nil {
			return total, err
		}
		s.logger.Info("[scraper] %s page %d — URL: %s", src.Name, page, pageURL)

		var html string
		err := s.retry.Do(ctx, fmt.Sprintf("%s-page-%d", src.Name, page), func() error {
			var err error
			if c, ok := renderer.(*ChromeRenderer); ok && src.WaitFor != "" {
				html, err = c.RenderWait(ctx, pageURL, src.WaitFor)
			} else {
				html, err = renderer.Render(ctx, pageURL)
			}
			return err
		})
		if err != nil {
			return total, err
		}

		found, next, err := ExtractListings(src, pageURL, html)
		if err != nil {
			return total, err
		}

		fresh := make([]*models.RawListing, 0, len(found))
		for _, l := range found {
			if !s.visitedURL.Add(l.URL) {
				s.logger.Debug("[scraper] Skipping duplicate: %s", l.URL)
				continue
			}
			fresh = append(fresh, l)
		}
		if len(found) == 0 {
			s.logger.Warn("[scraper] %s page %d returned 0 listings — stopping", src.Name, page)
			break
		}

		s.mu.Lock()
		s.listings = append(s.listings, fresh...)
		s.mu.Unlock()
		total += len(fresh)

		pageURL = next
	}
	return total, nil
}
