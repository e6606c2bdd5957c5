// analyses.go handles the analysis run endpoints.
//
// POST /api/v1/analyses                   Upload a PDF and start a run
// GET  /api/v1/analyses/:id               Run status, results, per-kind errors
// GET  /api/v1/analyses/:id/sections      Rendered display sections
// GET  /api/v1/analyses/:id/report        Download (json, md, pdf)
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/pdf"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/render"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/report"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/session"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/worker"
)

// defaultTargetMarket is preselected in the dashboard form.
const defaultTargetMarket = "一般消費者"

// uploadError is a failed upload, ready to become an HTTP response.
type uploadError struct {
	status  int
	code    string
	message string
}

func (e *uploadError) Error() string { return e.message }

// CreateAnalysis accepts a PDF upload and queues its analysis.
// POST /api/v1/analyses
//
// Multipart fields: file (required), target_markets (repeatable),
// industry, display_width. Extraction runs synchronously so a broken PDF
// is rejected with 422 before any model call; the analysis itself runs in
// the background and the response is 202 with the pending run.
func (h *Handler) CreateAnalysis(c *gin.Context) {
	run, uerr := h.startRun(c)
	if uerr != nil {
		errorJSON(c, uerr.status, uerr.code, uerr.message)
		return
	}
	c.Header("Location", "/api/v1/analyses/"+run.ID)
	c.JSON(http.StatusAccepted, run)
}

// startRun is shared by the API and the dashboard form.
func (h *Handler) startRun(c *gin.Context) (*models.AnalysisRun, *uploadError) {
	tooLarge := &uploadError{http.StatusRequestEntityTooLarge, "file_too_large",
		fmt.Sprintf("The upload exceeds the %dMB limit.", h.Config.MaxUploadBytes>>20)}
	if c.Request.ContentLength > h.Config.MaxUploadBytes {
		return nil, tooLarge
	}

	// Limit request body size; chunked uploads have no Content-Length.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Config.MaxUploadBytes)

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge
		}
		return nil, &uploadError{http.StatusBadRequest, "invalid_request",
			"Expected a multipart form upload with a 'file' field."}
	}

	var settings models.AnalysisSettings
	if err := c.ShouldBind(&settings); err != nil {
		return nil, &uploadError{http.StatusBadRequest, "invalid_settings", "Invalid analysis settings: " + err.Error()}
	}
	if len(settings.TargetMarkets) == 0 {
		settings.TargetMarkets = []string{defaultTargetMarket}
	}
	if settings.DisplayWidth == 0 {
		settings.DisplayWidth = models.ClampDisplayWidth(h.Config.DefaultDisplayWidth)
	}
	settings.DisplayWidth = models.ClampDisplayWidth(settings.DisplayWidth)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "invalid_request",
			"No PDF file provided. Upload a file with the field name 'file'."}
	}
	defer file.Close()

	// Validate file extension
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" {
		return nil, &uploadError{http.StatusBadRequest, "invalid_file_type",
			fmt.Sprintf("Unsupported file format '%s'. Only .pdf files are accepted.", ext)}
	}

	// Go Pattern: io.ReadAll reads the entire reader into a byte slice.
	// Both PDF libraries need random access, so the upload is held in memory.
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "read_error", "Failed to read uploaded file"}
	}

	var warnings []string
	if int64(len(data)) > h.Config.SoftUploadBytes {
		log.Warn().Str("file", header.Filename).Int("bytes", len(data)).Msg("⚠️  Upload is larger than recommended")
		warnings = append(warnings, fmt.Sprintf("The file is larger than the recommended %dMB; analysis may be slow.", h.Config.SoftUploadBytes>>20))
	}

	// Validate PDF magic bytes
	if !pdf.ValidatePDF(data) {
		return nil, &uploadError{http.StatusUnprocessableEntity, "invalid_pdf",
			"The uploaded file does not appear to be a valid PDF"}
	}

	sessionID := middleware.GetSessionID(c)
	// Fail fast on a second concurrent upload before paying for extraction.
	if latest, ok := h.Store.Latest(sessionID); ok && !latest.Status.Terminal() {
		return nil, conflictError()
	}

	result, err := h.Extract(c.Request.Context(), data)
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("❌ PDF extraction failed")
		if models.IsKind(err, models.ErrDocumentParse) {
			return nil, &uploadError{http.StatusUnprocessableEntity, "document_parse_error", err.Error()}
		}
		return nil, &uploadError{http.StatusInternalServerError, "extraction_failed", "PDF extraction failed: " + err.Error()}
	}
	log.Info().
		Str("file", header.Filename).
		Int("pages", result.PageCount).
		Int("words", result.WordCount).
		Int("images", len(result.Images)).
		Msg("📄 PDF extracted")

	run, err := h.Store.CreateRun(sessionID, &models.AnalysisRun{
		Filename:  filepath.Base(header.Filename),
		Settings:  settings,
		PageCount: result.PageCount,
		WordCount: result.WordCount,
		Images:    result.Images,
		Warnings:  append(warnings, result.Warnings...),
		Text:      result.Text,
	})
	if errors.Is(err, session.ErrRunActive) {
		return nil, conflictError()
	}
	if err != nil {
		return nil, &uploadError{http.StatusInternalServerError, "session_error", err.Error()}
	}

	if err := h.Worker.Submit(worker.Job{
		ID:        run.ID,
		SessionID: sessionID,
		Type:      worker.JobAnalysis,
		CreatedAt: time.Now(),
	}); err != nil {
		now := time.Now()
		_ = h.Store.Update(run.ID, func(r *models.AnalysisRun) {
			r.Status = models.RunFailed
			r.Error = err.Error()
			r.CompletedAt = &now
		})
		return nil, &uploadError{http.StatusServiceUnavailable, "queue_unavailable", err.Error()}
	}

	// The stored run has the text layer; the response does not need it.
	run.Text = ""
	return run, nil
}

func conflictError() *uploadError {
	return &uploadError{http.StatusConflict, "analysis_in_progress",
		"An analysis is already running for this session. Wait for it to finish."}
}

// GetAnalysis returns a run with its results.
// GET /api/v1/analyses/:id
func (h *Handler) GetAnalysis(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// SectionsResponse is the rendered view of a run.
type SectionsResponse struct {
	RunID  string                   `json:"run_id"`
	Status models.RunStatus         `json:"status"`
	Tabs   []render.DisplaySections `json:"tabs"`
	Images *render.ImagePanel       `json:"images"`
}

// GetSections renders a run's four tabs and the extracted image gallery.
// GET /api/v1/analyses/:id/sections?width=800
func (h *Handler) GetSections(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}
	tabs, images := h.renderRun(run, h.displayWidth(c, run))
	c.JSON(http.StatusOK, SectionsResponse{
		RunID:  run.ID,
		Status: run.Status,
		Tabs:   tabs,
		Images: images,
	})
}

// renderRun produces the four tabs in slot mode plus the all-images panel.
func (h *Handler) renderRun(run *models.AnalysisRun, width int) ([]render.DisplaySections, *render.ImagePanel) {
	url := func(index, w int) string {
		return fmt.Sprintf("/api/v1/analyses/%s/images/%d?width=%d", run.ID, index, w)
	}
	tabs := render.RenderRun(run, render.Options{Images: render.ImageOptions{
		Mode:  render.ImagesSlots,
		Width: width,
		Slots: h.Config.ImageSlots,
		URL:   url,
	}})
	images := render.RenderImages(run.Images, render.ImageOptions{
		Mode:  render.ImagesAll,
		Width: width,
		URL:   url,
	})
	return tabs, images
}

// displayWidth reads ?width=, falling back to the run's own setting.
func (h *Handler) displayWidth(c *gin.Context, run *models.AnalysisRun) int {
	if w, err := strconv.Atoi(c.Query("width")); err == nil && w > 0 {
		return models.ClampDisplayWidth(w)
	}
	if run.Settings.DisplayWidth > 0 {
		return models.ClampDisplayWidth(run.Settings.DisplayWidth)
	}
	return models.ClampDisplayWidth(h.Config.DefaultDisplayWidth)
}

// ExportAnalysis downloads a finished run.
// GET /api/v1/analyses/:id/report?format=json|md|pdf
//
// Response headers are set for file download:
//   - Content-Type: appropriate MIME type
//   - Content-Disposition: attachment with filename
func (h *Handler) ExportAnalysis(c *gin.Context) {
	format := c.DefaultQuery("format", report.FormatJSON)

	// Validate format before doing any work
	if !report.Formats[format] {
		errorJSON(c, http.StatusBadRequest, "invalid_format", "Supported formats: json, md, pdf")
		return
	}

	run, ok := h.lookupRun(c)
	if !ok {
		return
	}

	// Only export completed runs
	if run.Status != models.RunCompleted {
		errorJSON(c, http.StatusConflict, "not_ready",
			"Analysis is not completed (status: "+string(run.Status)+")")
		return
	}

	tabs, _ := h.renderRun(run, h.displayWidth(c, run))
	file, err := h.Exporter.Export(run, tabs, format)
	if err != nil {
		log.Error().Err(err).Str("run", run.ID).Str("format", format).Msg("❌ Export failed")
		errorJSON(c, http.StatusInternalServerError, "export_error", "Failed to generate the "+format+" export")
		return
	}

	c.Header("Content-Disposition", contentDisposition(file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// lookupRun loads the :id run for the caller's session, writing 404 when
// it does not exist or belongs to another session.
func (h *Handler) lookupRun(c *gin.Context) (*models.AnalysisRun, bool) {
	run, err := h.Store.Get(middleware.GetSessionID(c), c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusNotFound, "not_found", "Analysis not found")
		return nil, false
	}
	return run, true
}

// contentDisposition builds an attachment header. Non-ASCII names are
// encoded per RFC 2231 by mime.FormatMediaType.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
