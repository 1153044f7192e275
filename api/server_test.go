package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"gear-aggregator/ai"
	"gear-aggregator/models"
	"gear-aggregator/services"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
	"gear-aggregator/utils"
)

type stubAI struct {
	verdict models.ClassificationResult
}

func (s stubAI) Classify(context.Context, ai.Request) models.ClassificationResult {
	return s.verdict
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	logger := utils.NewNopLogger()
	fallback := stubAI{verdict: models.ClassificationResult{
		Category:   taxonomy.KeysPianos,
		Confidence: models.ConfidenceHigh,
		Reasoning:  "stage piano",
		Origin:     models.OriginAI,
	}}

	resolver := services.NewMappingResolver(store, logger)
	keywords := services.NewKeywordClassifier(nil)
	srv := NewServer(Deps{
		Store:        store,
		Normalizer:   services.NewNormalizer(resolver, keywords, fallback, logger),
		Mappings:     resolver,
		Reclassifier: services.NewReclassifier(store, store, keywords, fallback, logger).WithMappings(resolver),
		Insights:     services.NewInsightService(logger),
		Logger:       logger,
	})
	return srv, store
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndCategories(t *testing.T) {
	srv, _ := newTestServer(t)

	if w := do(t, srv, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}

	w := do(t, srv, http.MethodGet, "/api/categories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("categories: %d", w.Code)
	}
	var cats []categoryDTO
	if err := json.Unmarshal(w.Body.Bytes(), &cats); err != nil {
		t.Fatal(err)
	}
	if len(cats) != len(taxonomy.All()) {
		t.Fatalf("got %d categories", len(cats))
	}
	if cats[0].ID != taxonomy.PedalsEffects || cats[len(cats)-1].ID != taxonomy.Other {
		t.Errorf("order: %+v", cats)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name       string
		in         services.ClassifyInput
		wantCat    taxonomy.Category
		wantOrigin models.Origin
	}{
		{"keyword", services.ClassifyInput{Title: "Fender Stratocaster 2019"}, taxonomy.GuitarsBass, models.OriginKeyword},
		{"ai fallback", services.ClassifyInput{Title: "Klaviatur, övrig"}, taxonomy.KeysPianos, models.OriginAI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/classify", tt.in)
			if w.Code != http.StatusOK {
				t.Fatalf("status %d: %s", w.Code, w.Body.String())
			}
			var res models.ClassificationResult
			if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
				t.Fatal(err)
			}
			if res.Category != tt.wantCat || res.Origin != tt.wantOrigin {
				t.Errorf("got %+v", res)
			}
		})
	}

	if w := do(t, srv, http.MethodPost, "/api/classify", services.ClassifyInput{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty input: %d", w.Code)
	}
}

func TestMappingsLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	put := mappingRequest{Source: "Gearloop", ExternalCategory: "Övrigt", Category: "dj-live"}
	if w := do(t, srv, http.MethodPut, "/api/mappings", put); w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}

	// The resolver is refreshed, so the override applies immediately.
	w := do(t, srv, http.MethodPost, "/api/classify", services.ClassifyInput{
		Source: "gearloop", Title: "Fender Stratocaster", ExternalCategory: "övrigt",
	})
	var res models.ClassificationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Category != taxonomy.DJLive || res.Origin != models.OriginOverride {
		t.Errorf("override not applied: %+v", res)
	}

	w = do(t, srv, http.MethodGet, "/api/mappings?source=gearloop", nil)
	var list []models.CategoryMapping
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("mappings: %+v", list)
	}

	bad := mappingRequest{Source: "gearloop", ExternalCategory: "x", Category: "synths"}
	if w := do(t, srv, http.MethodPut, "/api/mappings", bad); w.Code != http.StatusBadRequest {
		t.Errorf("unknown category: %d", w.Code)
	}

	if w := do(t, srv, http.MethodDelete, "/api/mappings?source=gearloop&external_category=%C3%96vrigt", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/api/mappings?source=gearloop&external_category=%C3%96vrigt", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", w.Code)
	}
}

func TestReclassifyEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []*models.Listing{
		{Source: "gearloop", URL: "https://gearloop.se/a/1", Title: "Klaviatur, övrig", Category: taxonomy.Other},
		{Source: "gearloop", URL: "https://gearloop.se/a/2", Title: "Boss DS-1", Category: taxonomy.PedalsEffects},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := do(t, srv, http.MethodPost, "/api/reclassify", reclassifyRequest{BatchSize: 10})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var sum models.BatchSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 1 || sum.Updated != 1 || !sum.Completed {
		t.Errorf("summary: %+v", sum)
	}

	got, err := store.Get(ctx, "https://gearloop.se/a/1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Category != taxonomy.KeysPianos {
		t.Errorf("category: got %s", got.Category)
	}

	if w := do(t, srv, http.MethodPost, "/api/reclassify", reclassifyRequest{Category: "synths"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown category: %d", w.Code)
	}
}

func TestReclassifyRejectsConcurrentRun(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.running.Lock()
	defer srv.running.Unlock()

	if w := do(t, srv, http.MethodPost, "/api/reclassify", nil); w.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	err := store.Upsert(context.Background(), []*models.Listing{
		{Source: "gearloop", URL: "https://gearloop.se/a/1", Title: "Boss DS-1", Category: taxonomy.PedalsEffects, Price: 500},
		{Source: "blocket", URL: "https://blocket.se/a/2", Title: "Okänd pryl", Category: taxonomy.Other},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := do(t, srv, http.MethodGet, "/api/stats?source=gearloop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var report models.CategoryReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.TotalListings != 1 || report.ByCategory[taxonomy.PedalsEffects] != 1 {
		t.Errorf("report: %+v", report)
	}
}
