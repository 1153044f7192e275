package services

import (
	"testing"
	"time"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"4 500 kr", 4500},
		{"4 500 kr", 4500},
		{"4.500:-", 4500},
		{"12 000 SEK", 12000},
		{"1 299,50 kr", 1299.5},
		{"99.50", 99.5},
		{"Pris: 750 kr/st", 750},
		{"Gratis", 0},
		{"", 0},
		{"Bud", 0},
	}

	for _, tt := range tests {
		got := parsePrice(tt.raw)
		if got != tt.want {
			t.Errorf("parsePrice(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestCleanerDropsEmptyURLAndTitle(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []*models.RawListing{
		{Title: "No URL", RawPrice: "100 kr", URL: "", Source: "gearloop", ScrapedAt: time.Now()},
		{Title: "   ", URL: "https://gearloop.se/a/0", Source: "gearloop", ScrapedAt: time.Now()},
		{Title: "Has URL", RawPrice: "200 kr", URL: "https://gearloop.se/a/1", Source: "gearloop", ScrapedAt: time.Now()},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 1 {
		t.Errorf("expected 1 listing after dropping, got %d", len(cleaned))
	}
}

func TestCleanerDeduplicatesURL(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []*models.RawListing{
		{Title: "A", URL: "https://gearloop.se/a/1", Source: "gearloop", ScrapedAt: time.Now()},
		{Title: "B", URL: " https://gearloop.se/a/1 ", Source: "gearloop", ScrapedAt: time.Now()},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 listing after deduplication, got %d", len(cleaned))
	}
	if cleaned[0].Title != "A" {
		t.Errorf("first occurrence should win, got %q", cleaned[0].Title)
	}
}

func TestCleanerNormalisesFields(t *testing.T) {
	c := NewCleaner(newTestLogger())
	scraped := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cleaned := c.Clean([]*models.RawListing{{
		Source:           " Gearloop ",
		Title:            "  Fender   Stratocaster\n2019 ",
		RawPrice:         " 14 500 kr ",
		ExternalCategory: " Gitarrer ",
		URL:              "https://gearloop.se/a/9",
		ScrapedAt:        scraped,
	}})

	l := cleaned[0]
	if l.Source != "gearloop" || l.Title != "Fender Stratocaster 2019" || l.ExternalCategory != "Gitarrer" {
		t.Errorf("normalised fields: %+v", l)
	}
	if l.Price != 14500 || l.PriceText != "14 500 kr" {
		t.Errorf("price: got %.2f / %q", l.Price, l.PriceText)
	}
	if l.Category != taxonomy.Other {
		t.Errorf("category before normalization: got %q, want other", l.Category)
	}
	if !l.LastSeen.Equal(scraped) {
		t.Errorf("LastSeen: got %v, want %v", l.LastSeen, scraped)
	}
}
