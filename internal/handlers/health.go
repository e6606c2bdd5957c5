// Package handlers contains the HTTP handlers for the dashboard and API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides:
// - Request data (params, query, body, headers)
// - Response methods (JSON, HTML, Data, Redirect)
// - Middleware data (c.Get/c.Set)
//
// Related handlers hang off one struct (Handler) that holds the shared
// dependencies.
package handlers

import (
	"context"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/llm"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/pdf"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/report"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/session"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/worker"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/web"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields. Tests build a Handler
// around a fake LLM provider and get the real pipeline everywhere else.
type Handler struct {
	Config   *config.Config
	Store    *session.Store
	Worker   *worker.Pool
	Provider llm.Provider
	Exporter *report.Exporter
	Sessions middleware.SessionConfig

	// Extract runs the PDF extractor; swapped out in tests.
	Extract func(ctx context.Context, data []byte) (*pdf.ExtractionResult, error)

	help template.HTML
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(cfg *config.Config, store *session.Store, wp *worker.Pool, provider llm.Provider) *Handler {
	help, err := report.HTML(web.HelpMarkdown())
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to render help text")
	}

	return &Handler{
		Config:   cfg,
		Store:    store,
		Worker:   wp,
		Provider: provider,
		Exporter: report.NewExporter(cfg.ReportFontPath),
		Sessions: middleware.SessionConfig{
			Secret: cfg.SessionSecret,
			TTL:    cfg.SessionTTL,
			Secure: cfg.GinMode == gin.ReleaseMode,
			Store:  store,
		},
		Extract: pdf.Extract,
		help:    help,
	}
}

// HealthCheck returns the service health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Version:   Version,
		Provider:  h.Provider.Name() + "/" + h.Provider.Model(),
		Workers:   h.Worker.WorkerCount(),
		QueueSize: h.Worker.QueueSize(),
		Sessions:  h.Store.Count(),
	})
}

// Options describes the sidebar controls for API clients.
// GET /api/v1/options
func (h *Handler) Options(c *gin.Context) {
	c.JSON(http.StatusOK, h.options())
}

func (h *Handler) options() models.OptionsResponse {
	return models.OptionsResponse{
		TargetMarkets: models.TargetMarkets,
		Industries:    models.Industries,
		DisplayWidth: models.WidthRange{
			Min:     models.MinDisplayWidth,
			Max:     models.MaxDisplayWidth,
			Step:    models.DisplayWidthStep,
			Default: models.ClampDisplayWidth(h.Config.DefaultDisplayWidth),
		},
		ImageSlots: h.Config.ImageSlots,
	}
}

// errorJSON writes the standard error body.
func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	})
}
