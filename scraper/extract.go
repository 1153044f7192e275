package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gear-aggregator/models"
)

// ExtractListings parses one result page of src. Relative links are
// resolved against pageURL. The returned next URL is empty when the page
// has no pagination link.
func ExtractListings(src Source, pageURL, html string) ([]*models.RawListing, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", pageURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("page url %q: %w", pageURL, err)
	}

	sel := src.Selectors
	now := time.Now()
	var out []*models.RawListing

	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		link := resolve(base, card.Find(sel.Link).First().AttrOr("href", ""))
		if link == "" {
			if href, ok := card.Attr("href"); ok {
				link = resolve(base, href)
			}
		}
		if link == "" {
			return
		}

		out = append(out, &models.RawListing{
			Source:           src.Name,
			Title:            text(card, sel.Title),
			RawPrice:         text(card, sel.Price),
			Location:         text(card, sel.Location),
			ExternalCategory: text(card, sel.Category),
			ImageURL:         resolve(base, imageSrc(card, sel.Image)),
			URL:              link,
			Description:      text(card, sel.Description),
			ScrapedAt:        now,
		})
	})

	next := ""
	if sel.Next != "" {
		next = resolve(base, doc.Find(sel.Next).First().AttrOr("href", ""))
	}
	return out, next, nil
}

func text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(card.Find(selector).First().Text())
}

// imageSrc prefers lazy-load attributes over src, which is often a
// placeholder.
func imageSrc(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	img := card.Find(selector).First()
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := base.Parse(href)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
