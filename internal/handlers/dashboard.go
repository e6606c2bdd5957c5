// dashboard.go serves the server-rendered dashboard pages.
//
// GET  /           Upload form, settings sidebar, help, this session's runs
// POST /analyze    Form upload; redirects to the run page
// GET  /runs/:id   Progress, then the four analysis tabs and downloads
// GET  /login, POST /login, POST /logout   Optional password gate
package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/render"
)

// page carries what every page template needs.
type page struct {
	Title       string
	GateEnabled bool
	Options     models.OptionsResponse
	Help        template.HTML
	Error       string
}

type indexPage struct {
	page
	Runs []*models.AnalysisRun
}

type runPage struct {
	page
	Run    *models.AnalysisRun
	Tabs   []render.DisplaySections
	Images *render.ImagePanel
	Width  int
	Widths []int
}

type loginPage struct {
	page
	Next string
}

func (h *Handler) basePage(title string) page {
	return page{
		Title:       title,
		GateEnabled: h.Config.DashboardPasswordHash != "",
		Options:     h.options(),
		Help:        h.help,
	}
}

// Index renders the dashboard home.
func (h *Handler) Index(c *gin.Context) {
	h.renderIndex(c, http.StatusOK, "")
}

func (h *Handler) renderIndex(c *gin.Context, status int, errMsg string) {
	p := indexPage{
		page: h.basePage("Dashboard"),
		Runs: h.Store.List(middleware.GetSessionID(c)),
	}
	p.Error = errMsg
	c.HTML(status, "index.html", p)
}

// Analyze handles the dashboard form upload.
func (h *Handler) Analyze(c *gin.Context) {
	run, uerr := h.startRun(c)
	if uerr != nil {
		h.renderIndex(c, uerr.status, uerr.message)
		return
	}
	c.Redirect(http.StatusSeeOther, "/runs/"+run.ID)
}

// RunPage renders one run. While the run is in flight the page shows a
// progress bar fed by the WebSocket endpoint.
func (h *Handler) RunPage(c *gin.Context) {
	run, err := h.Store.Get(middleware.GetSessionID(c), c.Param("id"))
	if err != nil {
		h.renderIndex(c, http.StatusNotFound, "Analysis not found. It may have expired with your session.")
		return
	}

	width := h.displayWidth(c, run)
	p := runPage{
		page:   h.basePage(run.Filename),
		Run:    run,
		Width:  width,
		Widths: widthChoices(),
	}
	p.Tabs, p.Images = h.renderRun(run, width)
	c.HTML(http.StatusOK, "run.html", p)
}

func widthChoices() []int {
	var out []int
	for w := models.MinDisplayWidth; w <= models.MaxDisplayWidth; w += models.DisplayWidthStep {
		out = append(out, w)
	}
	return out
}

// LoginPage renders the password form.
func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", loginPage{
		page: h.basePage("Log in"),
		Next: middleware.SafeNext(c.Query("next")),
	})
}

// Login checks the dashboard password and marks the session authenticated.
func (h *Handler) Login(c *gin.Context) {
	next := middleware.SafeNext(c.PostForm("next"))

	if h.Config.DashboardPasswordHash == "" {
		c.Redirect(http.StatusSeeOther, next)
		return
	}
	if !middleware.CheckPassword(h.Config.DashboardPasswordHash, c.PostForm("password")) {
		log.Warn().Str("ip", c.ClientIP()).Msg("⚠️  Failed dashboard login")
		p := loginPage{page: h.basePage("Log in"), Next: next}
		p.Error = "Incorrect password."
		c.HTML(http.StatusUnauthorized, "login.html", p)
		return
	}

	if err := middleware.SetAuthenticated(c, h.Sessions, true); err != nil {
		errorJSON(c, http.StatusInternalServerError, "session_error", "Failed to update session")
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

// Logout clears the gate flag. Runs stay with the session.
func (h *Handler) Logout(c *gin.Context) {
	if err := middleware.SetAuthenticated(c, h.Sessions, false); err != nil {
		errorJSON(c, http.StatusInternalServerError, "session_error", "Failed to update session")
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}
