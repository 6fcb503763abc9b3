// Package server exposes single-product resolution over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/enrich/internal/metrics"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/resolve"
	"github.com/FranksOps/enrich/internal/storage"
	"github.com/gin-gonic/gin"
)

// Resolver produces one record per identifier.
type Resolver interface {
	Resolve(ctx context.Context, id product.Identifier) (product.Record, resolve.Outcome)
}

// Renderer produces the HTML description of a record.
type Renderer interface {
	Render(rec product.Record) (string, error)
}

// Config wires a Handler.
type Config struct {
	Resolver Resolver
	// Renderer adds description_html to product responses when set.
	Renderer Renderer
	// Store persists every lookup and enables /api/v1/entries when set.
	Store  storage.Backend
	RPS    float64
	Burst  int
	Logger *slog.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	cfg    Config
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, logger: logger}
}

// ProductResponse is the body of a product lookup.
type ProductResponse struct {
	Record          product.Record  `json:"record"`
	Outcome         resolve.Outcome `json:"outcome"`
	ValidEAN        bool            `json:"valid_ean"`
	DescriptionHTML string          `json:"description_html,omitempty"`
}

// SetupRouter registers all routes on a new engine.
func SetupRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(h.logger))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(h.cfg.RPS, h.cfg.Burst))
	v1.GET("/products/:ean", h.GetProduct)
	v1.GET("/entries", h.ListEntries)

	return router
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "enrich",
	})
}

// GetProduct resolves the EAN in the path, using the optional name query
// parameter as the product name.
func (h *Handler) GetProduct(c *gin.Context) {
	if h.cfg.Resolver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "resolver not configured"})
		return
	}

	id := product.Identifier{EAN: c.Param("ean"), Name: c.Query("name")}
	rec, out := h.cfg.Resolver.Resolve(c.Request.Context(), id)

	resp := ProductResponse{Record: rec, Outcome: out, ValidEAN: product.ValidEAN(id.EAN)}
	if h.cfg.Renderer != nil {
		html, err := h.cfg.Renderer.Render(rec)
		if err != nil {
			h.logger.Warn("render failed", "ean", id.EAN, "err", err)
		}
		resp.DescriptionHTML = html
	}

	if h.cfg.Store != nil {
		e := storage.NewEntry(rec)
		e.Consulted = out.Consulted
		e.FallbackUsed = out.FallbackUsed
		e.State = string(out.State)
		e.DescriptionHTML = resp.DescriptionHTML
		if err := h.cfg.Store.Save(c.Request.Context(), e); err != nil {
			h.logger.Error("store failed", "ean", id.EAN, "err", err)
		}
	}

	status := http.StatusOK
	if out.Failed() {
		status = http.StatusNotFound
	}
	c.JSON(status, resp)
}

// ListEntries returns stored entries, newest first. Query parameters: ean,
// resolved (bool), since (RFC 3339), limit and offset.
func (h *Handler) ListEntries(c *gin.Context) {
	if h.cfg.Store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no store configured"})
		return
	}

	filter := storage.Filter{EAN: c.Query("ean"), Limit: 50}
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved"})
			return
		}
		filter.Resolved = &b
	}
	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		filter.Since = &ts
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
				return
			}
			*dst = n
		}
	}

	entries, err := h.cfg.Store.Query(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("query failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Run serves router on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
