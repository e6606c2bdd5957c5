// Package models defines the data structures used throughout the application.
//
// Go Pattern: Structs with tags. The `json:"..."` tags control how fields are
// serialized to JSON and the `form:"..."`/`binding:"..."` tags drive gin's
// request binding and validation.
package models

import (
	"time"
)

// RunStatus represents the lifecycle state of an analysis run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunFailed is only used when the job could not execute at all
	// (shutdown, panic). Failed analysis kinds still end in RunCompleted.
	RunFailed RunStatus = "failed"
)

// Terminal reports whether no further progress will be made.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Display width slider bounds, in pixels.
const (
	MinDisplayWidth     = 300
	MaxDisplayWidth     = 1200
	DisplayWidthStep    = 100
	DefaultDisplayWidth = 800
)

// ClampDisplayWidth snaps a requested width onto the slider grid.
func ClampDisplayWidth(w int) int {
	if w < MinDisplayWidth {
		return MinDisplayWidth
	}
	if w > MaxDisplayWidth {
		return MaxDisplayWidth
	}
	return MinDisplayWidth + ((w-MinDisplayWidth)/DisplayWidthStep)*DisplayWidthStep
}

// TargetMarkets lists the selectable target market tags.
var TargetMarkets = []Option{
	{Value: "一般消費者", Label: "General consumers"},
	{Value: "ビジネス", Label: "Business"},
	{Value: "若年層", Label: "Young adults"},
	{Value: "シニア層", Label: "Seniors"},
	{Value: "ファミリー", Label: "Families"},
}

// Industries lists the selectable industries.
var Industries = []Option{
	{Value: "小売", Label: "Retail"},
	{Value: "サービス", Label: "Services"},
	{Value: "製造", Label: "Manufacturing"},
	{Value: "テクノロジー", Label: "Technology"},
	{Value: "金融", Label: "Finance"},
	{Value: "その他", Label: "Other"},
}

// Option is a value/label pair for a select control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AnalysisSettings are the sidebar controls captured with an upload.
// TargetMarkets and Industry are recorded and displayed only; they never
// influence the prompts sent to the LLM.
type AnalysisSettings struct {
	TargetMarkets []string `json:"target_markets" form:"target_markets" binding:"dive,oneof=一般消費者 ビジネス 若年層 シニア層 ファミリー"`
	Industry      string   `json:"industry" form:"industry" binding:"omitempty,oneof=小売 サービス 製造 テクノロジー 金融 その他"`
	DisplayWidth  int      `json:"display_width" form:"display_width" binding:"omitempty,min=300,max=1200"`
}

// ImageSlot pins a dashboard image position to an overall extracted-image
// index. Page and Number describe where the image is expected to sit in the
// source document and are used for captions only.
type ImageSlot struct {
	Page   int `json:"page"`
	Number int `json:"number"`
	Index  int `json:"index"`
}

// ExtractedImage is one embedded raster image pulled from the PDF.
// Index is its position across the whole document (page order, then
// in-page order) and stays stable for the lifetime of a run.
type ExtractedImage struct {
	Index      int    `json:"index"`
	Page       int    `json:"page"`
	PageImage  int    `json:"page_image"` // 1-based position on its page
	Format     string `json:"format"`
	MIMEType   string `json:"mime_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ColorModel string `json:"color_model"`
	SizeBytes  int    `json:"size_bytes"`
	Data       []byte `json:"-"`
}

// AnalysisRun is one upload and its four analyses.
type AnalysisRun struct {
	ID            string                  `json:"id"`
	SessionID     string                  `json:"-"`
	Filename      string                  `json:"filename"`
	Status        RunStatus               `json:"status"`
	Progress      int                     `json:"progress"`
	Stage         string                  `json:"stage,omitempty"`
	Settings      AnalysisSettings        `json:"settings"`
	PageCount     int                     `json:"page_count"`
	WordCount     int                     `json:"word_count"`
	TextTruncated bool                    `json:"text_truncated"`
	Images        []ExtractedImage        `json:"images"`
	Bundle        AnalysisBundle          `json:"results"`
	KindErrors    map[AnalysisKind]string `json:"kind_errors,omitempty"`
	Warnings      []string                `json:"warnings,omitempty"`
	Error         string                  `json:"error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`

	// Text is the extracted text layer, kept in memory for the worker.
	Text string `json:"-"`
}

// ProgressEvent is pushed to websocket subscribers whenever a run changes.
type ProgressEvent struct {
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
	Progress int       `json:"progress"`
	Stage    string    `json:"stage,omitempty"`
}

// ErrorResponse is a standard error format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Provider  string `json:"provider"`
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
	Sessions  int    `json:"sessions"`
}

// OptionsResponse describes the sidebar controls for API clients.
type OptionsResponse struct {
	TargetMarkets []Option    `json:"target_markets"`
	Industries    []Option    `json:"industries"`
	DisplayWidth  WidthRange  `json:"display_width"`
	ImageSlots    []ImageSlot `json:"image_slots"`
}

// WidthRange describes the display width slider.
type WidthRange struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Step    int `json:"step"`
	Default int `json:"default"`
}
