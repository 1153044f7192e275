package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gear-aggregator/services"
	"gear-aggregator/storage"
	"gear-aggregator/utils"
)

// Deps are the collaborators the HTTP API is built on.
type Deps struct {
	Store        storage.Store
	Normalizer   *services.Normalizer
	Mappings     *services.MappingResolver
	Reclassifier *services.Reclassifier
	Insights     *services.InsightService
	// Defaults fills unset fields of a reclassify request.
	Defaults services.ReclassifyOptions
	Logger   *utils.Logger
}

// Server is the admin HTTP API.
type Server struct {
	deps   Deps
	logger *utils.Logger
	engine *gin.Engine

	// Only one reclassification run at a time.
	running sync.Mutex
}

// NewServer wires the routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = utils.NewNopLogger()
	}
	s := &Server{deps: deps, logger: deps.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/categories", s.listCategories)
		api.POST("/classify", s.classify)
		api.POST("/reclassify", s.reclassify)
		api.GET("/stats", s.stats)
		api.GET("/mappings", s.listMappings)
		api.PUT("/mappings", s.putMapping)
		api.DELETE("/mappings", s.deleteMapping)
	}

	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[api] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("[api] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[api] %s %s -> %d (%v)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
