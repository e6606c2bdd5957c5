// Package router sets up all HTTP routes for the dashboard and API.
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/handlers"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/web"
)

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := gin.Default()
	r.Use(middleware.CORS(h.Config.AllowedOrigins))
	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", http.FS(web.Static()))

	// Every request gets a session before anything else looks at it.
	r.Use(middleware.Sessions(h.Sessions))

	// --- Public Routes ---
	r.GET("/api/v1/health", h.HealthCheck)
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)

	// --- Gated Routes (open when no dashboard password is configured) ---
	gated := r.Group("/")
	gated.Use(middleware.PasswordGate(h.Config.DashboardPasswordHash))
	{
		// Dashboard pages
		gated.GET("/", h.Index)
		gated.POST("/analyze", h.Analyze)
		gated.GET("/runs/:id", h.RunPage)

		api := gated.Group("/api/v1")
		api.GET("/options", h.Options)

		api.POST("/analyses", h.CreateAnalysis)
		api.GET("/analyses/:id", h.GetAnalysis)
		api.GET("/analyses/:id/sections", h.GetSections)
		api.GET("/analyses/:id/report", h.ExportAnalysis)
		api.GET("/analyses/:id/images/:index", h.GetImage)
		api.GET("/analyses/:id/ws", h.StreamProgress)
	}

	return r, nil
}
