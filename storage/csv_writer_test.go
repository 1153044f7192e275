package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gear-aggregator/models"
)

func TestCSVWriterDumpsRawListings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "raw.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}

	scraped := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	err = w.WriteRaw([]*models.RawListing{
		{Source: "gearloop", URL: "https://gearloop.se/a/1", ExternalCategory: "Gitarrer", Title: "Fender Stratocaster, 2019", RawPrice: "14 500 kr", ScrapedAt: scraped},
		{Source: "gearloop", Title: "utan länk", ScrapedAt: scraped},
	})
	if err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if w.Rows() != 2 {
		t.Errorf("Rows: got %d, want 2", w.Rows())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: got %d, want header + 2", len(records))
	}
	if records[0][0] != "scraped_at" || len(records[0]) != len(rawColumns) {
		t.Errorf("header: %v", records[0])
	}

	first := records[1]
	if first[0] != "2026-06-01T10:00:00Z" || first[1] != "gearloop" || first[3] != "Gitarrer" {
		t.Errorf("first row: %v", first)
	}
	if first[4] != "Fender Stratocaster, 2019" {
		t.Errorf("quoted title not preserved: %q", first[4])
	}
	if records[2][2] != "" {
		t.Errorf("listing without URL: %v", records[2])
	}
}
