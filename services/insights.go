package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

const otherSampleSize = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.CategoryReport {
	report := &models.CategoryReport{
		ByCategory:    make(map[taxonomy.Category]int),
		BySource:      make(map[string]int),
		AvgPriceByCat: make(map[taxonomy.Category]float64),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	priceTotals := make(map[taxonomy.Category]float64)
	priceCounts := make(map[taxonomy.Category]int)

	for _, l := range listings {
		if l.Active {
			report.ActiveListings++
		}
		report.ByCategory[l.Category]++
		if l.Source != "" {
			report.BySource[l.Source]++
		}
		if l.Price > 0 {
			priceTotals[l.Category] += l.Price
			priceCounts[l.Category]++
			if report.MostExpensive == nil || l.Price > report.MostExpensive.Price {
				report.MostExpensive = l
			}
		}
		if l.Category == taxonomy.Other && len(report.OtherSample) < otherSampleSize {
			report.OtherSample = append(report.OtherSample, l)
		}
	}

	for c, total := range priceTotals {
		report.AvgPriceByCat[c] = round2(total / float64(priceCounts[c]))
	}
	report.OtherShare = round2(float64(report.ByCategory[taxonomy.Other]) / float64(report.TotalListings))

	return report
}

func (s *InsightService) Print(w io.Writer, r *models.CategoryReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🎸 GEAR CATEGORY REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings  : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  Active listings : \033[1m%d\033[0m\n", r.ActiveListings)
	fmt.Fprintf(w, "  Uncategorized   : \033[1m%.0f%%\033[0m\n", r.OtherShare*100)
	fmt.Fprintln(w)

	// Categories, in taxonomy order
	fmt.Fprintf(w, "\033[1;33m  Listings by Category\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, c := range taxonomy.All() {
		n := r.ByCategory[c]
		if n == 0 {
			continue
		}
		avg := ""
		if p, ok := r.AvgPriceByCat[c]; ok {
			avg = fmt.Sprintf("  avg %.0f kr", p)
		}
		fmt.Fprintf(w, "  %-24s %5d%s\n", truncate(c.Label(), 24), n, avg)
	}
	fmt.Fprintln(w)

	// Sources
	fmt.Fprintf(w, "\033[1;33m  Listings by Source\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.BySource) == 0 {
		fmt.Fprintf(w, "  No source data\n")
	} else {
		type srcCount struct {
			src   string
			count int
		}
		var srcs []srcCount
		for src, cnt := range r.BySource {
			srcs = append(srcs, srcCount{src, cnt})
		}
		sort.Slice(srcs, func(i, j int) bool {
			if srcs[i].count == srcs[j].count {
				return srcs[i].src < srcs[j].src
			}
			return srcs[i].count > srcs[j].count
		})
		for _, sc := range srcs {
			fmt.Fprintf(w, "  %-30s %d\n", truncate(sc.src, 28), sc.count)
		}
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Category : %s\n", r.MostExpensive.Category.Label())
		fmt.Fprintf(w, "  Price    : \033[1;31m%.0f kr\033[0m\n", r.MostExpensive.Price)
		fmt.Fprintln(w)
	}

	if len(r.OtherSample) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Still Uncategorized (sample)\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, l := range r.OtherSample {
			fmt.Fprintf(w, "  - %s\n", truncate(l.Title, 50))
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
