// images.go serves extracted images.
//
// GET /api/v1/analyses/:id/images/:index?width=800
//
// Without width the original bytes are returned. With width the image is
// decoded and scaled to that width (snapped to the 300-1200 slider grid),
// keeping its aspect ratio.
package handlers

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/render"
)

// GetImage returns one extracted image.
func (h *Handler) GetImage(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index >= len(run.Images) {
		errorJSON(c, http.StatusNotFound, "not_found", "Image not found")
		return
	}
	img := run.Images[index]

	// Extracted images never change, so browsers may cache them for the
	// lifetime of the run.
	c.Header("Cache-Control", "private, max-age=3600")

	widthParam := c.Query("width")
	if widthParam == "" {
		c.Data(http.StatusOK, img.MIMEType, img.Data)
		return
	}
	width, err := strconv.Atoi(widthParam)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_width", "width must be an integer")
		return
	}

	data, contentType, err := scaleImage(img, models.ClampDisplayWidth(width))
	if err != nil {
		// Undecodable or oversized here: the browser may still manage.
		log.Warn().Err(err).Str("run", run.ID).Int("index", index).Msg("⚠️  Could not scale image, serving original")
		c.Data(http.StatusOK, img.MIMEType, img.Data)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// Scaling limits. A few kilobytes of compressed stream can declare an
// enormous raster, so dimensions are checked before anything is allocated.
const (
	maxDecodePixels = 40_000_000
	maxScaledHeight = 4 * models.MaxDisplayWidth
)

var errImageTooLarge = errors.New("image too large to scale")

// scaleImage resizes to width with CatmullRom resampling. JPEG sources stay
// JPEG; everything else is re-encoded as PNG. Images over the decode budget,
// or whose scaled height would exceed maxScaledHeight, return
// errImageTooLarge and are served unscaled.
func scaleImage(img models.ExtractedImage, width int) ([]byte, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxDecodePixels {
		return nil, "", errImageTooLarge
	}
	height := render.DisplayHeight(cfg.Width, cfg.Height, width)
	if height > maxScaledHeight {
		return nil, "", errImageTooLarge
	}
	if height < 1 {
		height = 1
	}

	src, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, "", err
	}
	b := src.Bounds()

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&buf, dst); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/png", nil
}
