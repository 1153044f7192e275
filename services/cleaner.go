package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

var (
	// priceRegexp captures the first amount in Swedish notation:
	// space or dot thousands separators and an optional comma decimal part.
	priceRegexp = regexp.MustCompile(`\d[\d .]*(?:,\d{1,2})?`)
	// dottedThousandsRegexp matches "4.500" or "12.000.000".
	dottedThousandsRegexp = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

// Cleaner transforms RawListings into clean, validated Listings.
type Cleaner struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger, now: time.Now}
}

// Clean processes raw listings and returns cleaned records. Listings without
// a URL or title are dropped and the first occurrence of a URL wins. Every
// returned listing starts out as "other"; categorization happens later.
func (c *Cleaner) Clean(raw []*models.RawListing) []*models.Listing {
	seen := make(map[string]struct{})
	result := make([]*models.Listing, 0, len(raw))

	for _, r := range raw {
		url := strings.TrimSpace(r.URL)
		if url == "" {
			c.logger.Warn("[cleaner] Dropping listing with empty URL: %s", r.Title)
			continue
		}
		title := normaliseText(r.Title)
		if title == "" {
			c.logger.Warn("[cleaner] Dropping listing without title: %s", url)
			continue
		}

		if _, dup := seen[url]; dup {
			c.logger.Debug("[cleaner] Duplicate URL skipped: %s", url)
			continue
		}
		seen[url] = struct{}{}

		seenAt := r.ScrapedAt
		if seenAt.IsZero() {
			seenAt = c.now()
		}

		result = append(result, &models.Listing{
			Source:           normaliseSource(r.Source),
			URL:              url,
			Title:            title,
			ExternalCategory: normaliseText(r.ExternalCategory),
			Category:         taxonomy.Other,
			PriceText:        normaliseText(r.RawPrice),
			Price:            parsePrice(r.RawPrice),
			Location:         normaliseText(r.Location),
			ImageURL:         strings.TrimSpace(r.ImageURL),
			Description:      normaliseText(r.Description),
			LastSeen:         seenAt,
		})
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// parsePrice extracts an amount in kronor from a Swedish price string.
// Examples:
//
//	"4 500 kr"     → 4500
//	"4.500:-"      → 4500
//	"1 299,50 SEK" → 1299.5
//	"Gratis"       → 0
func parsePrice(raw string) float64 {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, raw)

	match := priceRegexp.FindString(s)
	if match == "" {
		return 0
	}

	whole, frac, _ := strings.Cut(strings.TrimRight(match, " ."), ",")
	whole = strings.ReplaceAll(whole, " ", "")
	if dottedThousandsRegexp.MatchString(whole) {
		whole = strings.ReplaceAll(whole, ".", "")
	}

	num := whole
	if frac != "" {
		num += "." + frac
	}
	val, err := strconv.ParseFloat(num, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normaliseSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
