package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gear-aggregator/models"
)

// rawColumns is the header of the raw dump. rawRecord must emit fields in
// the same order.
var rawColumns = []string{
	"scraped_at", "source", "url", "external_category", "title", "raw_price", "location", "image_url", "description",
}

func rawRecord(l *models.RawListing) []string {
	return []string{
		l.ScrapedAt.UTC().Format(time.RFC3339),
		l.Source,
		l.URL,
		l.ExternalCategory,
		l.Title,
		l.RawPrice,
		l.Location,
		l.ImageURL,
		l.Description,
	}
}

// CSVWriter dumps scraped listings exactly as extracted, before cleaning
// and categorization. Each scrape run truncates the file. Safe for
// concurrent use.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
	rows int
}

// NewCSVWriter truncates path, creating parent directories, and writes the
// header.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv: mkdir for %q: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create %q: %w", path, err)
	}

	cw := &CSVWriter{path: path, file: f, w: csv.NewWriter(f)}
	if err := cw.flushRecords([][]string{rawColumns}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return cw, nil
}

// WriteRaw appends one row per listing. Listings without a URL are kept:
// the dump is meant for inspecting what the selectors actually matched.
func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	records := make([][]string, 0, len(listings))
	for _, l := range listings {
		records = append(records, rawRecord(l))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushRecords(records); err != nil {
		return err
	}
	c.rows += len(records)
	return nil
}

// Rows is the number of listings written so far.
func (c *CSVWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *CSVWriter) flushRecords(records [][]string) error {
	if err := c.w.WriteAll(records); err != nil {
		return fmt.Errorf("csv: write %q: %w", c.path, err)
	}
	return nil
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.file.Close()
		return fmt.Errorf("csv: flush %q: %w", c.path, err)
	}
	return c.file.Close()
}
