package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gear-aggregator/models"
	"gear-aggregator/services"
	"gear-aggregator/storage"
	"gear-aggregator/taxonomy"
)

type categoryDTO struct {
	ID    taxonomy.Category `json:"id"`
	Label string            `json:"label"`
}

type reclassifyRequest struct {
	Cursor        *int64 `json:"cursor"`
	Resume        bool   `json:"resume"`
	BatchSize     int    `json:"batch_size"`
	Category      string `json:"category"`
	Source        string `json:"source"`
	TimeBudgetSec int    `json:"time_budget_sec"`
	DryRun        bool   `json:"dry_run"`
}

type mappingRequest struct {
	Source           string `json:"source" binding:"required"`
	ExternalCategory string `json:"external_category" binding:"required"`
	Category         string `json:"category" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listCategories(c *gin.Context) {
	all := taxonomy.All()
	out := make([]categoryDTO, 0, len(all))
	for _, cat := range all {
		out = append(out, categoryDTO{ID: cat, Label: cat.Label()})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) classify(c *gin.Context) {
	var in services.ClassifyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.ExternalCategory) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title or external_category is required"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Normalizer.Classify(c.Request.Context(), in))
}

func (s *Server) reclassify(c *gin.Context) {
	var req reclassifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := s.deps.Defaults
	if req.Cursor != nil {
		opts.Cursor = *req.Cursor
		opts.Resume = false
	}
	if req.Resume {
		opts.Resume = true
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.Category != "" {
		cat, ok := taxonomy.Parse(req.Category)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category " + req.Category})
			return
		}
		opts.Category = cat
	}
	if source := sourceName(req.Source); source != "" {
		opts.Source = source
	}
	if req.TimeBudgetSec > 0 {
		opts.TimeBudget = time.Duration(req.TimeBudgetSec) * time.Second
	}
	opts.DryRun = req.DryRun

	if !s.running.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "a reclassification run is already in progress"})
		return
	}
	defer s.running.Unlock()

	sum, err := s.deps.Reclassifier.Run(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": sum})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) stats(c *gin.Context) {
	listings, err := s.deps.Store.FetchAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if source := sourceName(c.Query("source")); source != "" {
		filtered := listings[:0]
		for _, l := range listings {
			if l.Source == source {
				filtered = append(filtered, l)
			}
		}
		listings = filtered
	}
	c.JSON(http.StatusOK, s.deps.Insights.Generate(listings))
}

func (s *Server) listMappings(c *gin.Context) {
	mappings, err := s.deps.Store.ListMappings(c.Request.Context(), sourceName(c.Query("source")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if mappings == nil {
		mappings = []models.CategoryMapping{}
	}
	c.JSON(http.StatusOK, mappings)
}

func (s *Server) putMapping(c *gin.Context) {
	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat, ok := taxonomy.Parse(req.Category)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category " + req.Category})
		return
	}

	m := models.CategoryMapping{
		Source:           sourceName(req.Source),
		ExternalCategory: strings.TrimSpace(req.ExternalCategory),
		Category:         cat,
		CreatedAt:        time.Now(),
	}
	if err := s.deps.Store.PutMapping(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.refreshMappings(c)
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMapping(c *gin.Context) {
	source := sourceName(c.Query("source"))
	external := c.Query("external_category")
	if source == "" || external == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source and external_category are required"})
		return
	}
	err := s.deps.Store.DeleteMapping(c.Request.Context(), source, external)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.refreshMappings(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) refreshMappings(c *gin.Context) {
	if s.deps.Mappings == nil {
		return
	}
	if err := s.deps.Mappings.Refresh(c.Request.Context()); err != nil {
		s.logger.Warn("[api] Mapping refresh failed: %v", err)
	}
}

// sourceName matches the lower-cased source names stored by ingestion.
func sourceName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
