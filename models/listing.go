package models

import (
	"time"

	"gear-aggregator/taxonomy"
)

// RawListing holds unprocessed scraped data straight from a source page.
// This is written to CSV before any cleaning or categorization.
type RawListing struct {
	Source           string
	Title            string
	RawPrice         string
	Location         string
	ExternalCategory string
	ImageURL         string
	URL              string
	Description      string
	ScrapedAt        time.Time
}

// Listing is the cleaned, categorized record kept in the store.
// URL is the natural key; ID is a monotonic serial used as the batch cursor.
type Listing struct {
	ID               int64             `json:"id"`
	Source           string            `json:"source"`
	URL              string            `json:"url"`
	Title            string            `json:"title"`
	ExternalCategory string            `json:"external_category,omitempty"`
	Category         taxonomy.Category `json:"category"`
	PriceText        string            `json:"price_text,omitempty"`
	Price            float64           `json:"price"`
	Location         string            `json:"location,omitempty"`
	ImageURL         string            `json:"image_url,omitempty"`
	Description      string            `json:"description,omitempty"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
	Active           bool              `json:"active"`
}

// ListingQuery selects a page of listings ordered by ID.
// Zero values mean "no filter".
type ListingQuery struct {
	AfterID  int64
	Category taxonomy.Category
	Source   string
	Limit    int
}

// CategoryMapping is an administrator-curated override from a source's own
// category string to an internal category.
type CategoryMapping struct {
	Source           string            `json:"source"`
	ExternalCategory string            `json:"external_category"`
	Category         taxonomy.Category `json:"category"`
	CreatedAt        time.Time         `json:"created_at"`
}

// CategoryReport holds analytics over the stored listings.
type CategoryReport struct {
	TotalListings  int                           `json:"total_listings"`
	ActiveListings int                           `json:"active_listings"`
	OtherShare     float64                       `json:"other_share"`
	ByCategory     map[taxonomy.Category]int     `json:"by_category"`
	BySource       map[string]int                `json:"by_source"`
	AvgPriceByCat  map[taxonomy.Category]float64 `json:"avg_price_by_category"`
	MostExpensive  *Listing                      `json:"most_expensive,omitempty"`
	OtherSample    []*Listing                    `json:"other_sample,omitempty"`
}
