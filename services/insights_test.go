package services

import (
	"bytes"
	"strings"
	"testing"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

func sampleListings() []*models.Listing {
	return []*models.Listing{
		{Source: "gearloop", Title: "Fender Jazz Bass", Category: taxonomy.GuitarsBass, Price: 9000, Active: true, URL: "https://gearloop.se/a/1"},
		{Source: "gearloop", Title: "Gibson SG", Category: taxonomy.GuitarsBass, Price: 12000, Active: true, URL: "https://gearloop.se/a/2"},
		{Source: "musikborsen", Title: "Boss DS-1", Category: taxonomy.PedalsEffects, Price: 400, Active: false, URL: "https://musikborsen.se/a/3"},
		{Source: "musikborsen", Title: "Klaviatur, övrig", Category: taxonomy.Other, Price: 0, Active: true, URL: "https://musikborsen.se/a/4"},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.TotalListings != 4 {
		t.Errorf("TotalListings: got %d, want 4", r.TotalListings)
	}
	if r.ActiveListings != 3 {
		t.Errorf("ActiveListings: got %d, want 3", r.ActiveListings)
	}
	if r.ByCategory[taxonomy.GuitarsBass] != 2 {
		t.Errorf("guitars-bass: got %d, want 2", r.ByCategory[taxonomy.GuitarsBass])
	}
	if r.BySource["musikborsen"] != 2 {
		t.Errorf("musikborsen: got %d, want 2", r.BySource["musikborsen"])
	}
	if r.OtherShare != 0.25 {
		t.Errorf("OtherShare: got %.2f, want 0.25", r.OtherShare)
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.AvgPriceByCat[taxonomy.GuitarsBass] != 10500 {
		t.Errorf("avg guitars-bass: got %.2f, want 10500", r.AvgPriceByCat[taxonomy.GuitarsBass])
	}
	if _, ok := r.AvgPriceByCat[taxonomy.Other]; ok {
		t.Error("unpriced category should have no average")
	}
	if r.MostExpensive == nil || r.MostExpensive.Title != "Gibson SG" {
		t.Errorf("MostExpensive: got %+v", r.MostExpensive)
	}
}

func TestInsightOtherSample(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if len(r.OtherSample) != 1 || r.OtherSample[0].Title != "Klaviatur, övrig" {
		t.Errorf("OtherSample: got %+v", r.OtherSample)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(nil)
	if r.TotalListings != 0 {
		t.Errorf("expected 0 total listings for empty input")
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	var buf bytes.Buffer
	svc.Print(&buf, svc.Generate(sampleListings()))

	out := buf.String()
	for _, want := range []string{taxonomy.GuitarsBass.Label(), "gearloop", "Gibson SG"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
