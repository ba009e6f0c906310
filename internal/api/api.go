// Package api exposes the lookbook pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anatolykoptev/go-lookbook"
	"github.com/anatolykoptev/go-lookbook/internal/config"
	"github.com/anatolykoptev/go-lookbook/s3archive"
)

// Pipeline is the part of *lookbook.Pipeline the handlers use.
type Pipeline interface {
	RunBatch(ctx context.Context, urls []string, opts lookbook.BatchOptions) (*lookbook.BatchReport, error)
	Persist(ctx context.Context, report *lookbook.BatchReport, notifyAddress string) error
	Cache() *lookbook.HashCache
}

// ReportLoader reads archived reports back.
type ReportLoader interface {
	Load(ctx context.Context, batchID string) (*lookbook.BatchReport, error)
}

// Options configures the router.
type Options struct {
	Pipeline Pipeline     // required
	Reports  ReportLoader // optional: enables GET /api/batches/:id
	Metrics  http.Handler // optional: served at /metrics

	// Deadline bounds each batch; 0 = none.
	Deadline time.Duration
	// ShareEmail is notified when a request names no address.
	ShareEmail string
}

// BatchRequest is the body of POST /api/batches.
type BatchRequest struct {
	URLs        []string `json:"urls" binding:"required,min=1"`
	Tone        string   `json:"tone"`
	Platform    string   `json:"platform"`
	NotifyEmail string   `json:"notify_email"`
}

// BatchResponse is the finished report plus any persistence failure.
type BatchResponse struct {
	*lookbook.BatchReport
	Summary      string `json:"summary"`
	PersistError string `json:"persist_error,omitempty"`
}

type server struct {
	opts Options
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &server{opts: opts}
	g := r.Group("/api")
	g.POST("/batches", s.handleRunBatch)
	g.GET("/batches/:id", s.handleGetBatch)
	g.GET("/cache/stats", s.handleCacheStats)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return r
}

func (s *server) handleRunBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	notify := req.NotifyEmail
	if notify == "" {
		notify = s.opts.ShareEmail
	} else if !config.ValidEmail(notify) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notify_email"})
		return
	}

	ctx := c.Request.Context()
	report, err := s.opts.Pipeline.RunBatch(ctx, req.URLs, lookbook.BatchOptions{
		ContentOptions: lookbook.ContentOptions{Tone: req.Tone, Platform: req.Platform},
		Deadline:       s.opts.Deadline,
	})
	switch {
	case errors.Is(err, lookbook.ErrBatchTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("lookbook: batch request failed", "urls", len(req.URLs), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := BatchResponse{BatchReport: report, Summary: report.Summary()}
	// Persist outlives a disconnected client.
	if err := s.opts.Pipeline.Persist(context.WithoutCancel(ctx), report, notify); err != nil {
		resp.PersistError = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleGetBatch(c *gin.Context) {
	if s.opts.Reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report archive not configured"})
		return
	}
	report, err := s.opts.Reports.Load(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, s3archive.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (s *server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Pipeline.Cache().Stats())
}
