package render

import (
	"fmt"
	"math"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// Image panel modes.
const (
	ImagesAll   = "all"   // every extracted image, in order
	ImagesSlots = "slots" // the configured fixed slots only
)

// ImageOptions controls how extracted images are laid out.
type ImageOptions struct {
	Mode  string
	Width int // shared display width, snapped to the slider grid
	Slots []models.ImageSlot
	// URL builds the src for an image index at a display width. Optional.
	URL func(index, width int) string
}

// ImagePanel is the rendered gallery.
type ImagePanel struct {
	Mode   string         `json:"mode"`
	Width  int            `json:"width"`
	Notice string         `json:"notice,omitempty"`
	Items  []DisplayImage `json:"items"`
}

// DisplayImage is one gallery entry. Unavailable entries are slots whose
// index is past the end of the extracted images.
type DisplayImage struct {
	Index     int     `json:"index"`
	Caption   string  `json:"caption"`
	Available bool    `json:"available"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	URL       string  `json:"url,omitempty"`
	Details   []Field `json:"details,omitempty"`
}

// RenderImages lays out the gallery. Slot indexes that do not exist render
// as "not available" entries; they never fail the render.
func RenderImages(images []models.ExtractedImage, opts ImageOptions) *ImagePanel {
	width := models.ClampDisplayWidth(opts.Width)
	if opts.Width == 0 {
		width = models.DefaultDisplayWidth
	}

	panel := &ImagePanel{Mode: opts.Mode, Width: width}
	if panel.Mode == "" {
		panel.Mode = ImagesAll
	}

	if panel.Mode == ImagesSlots {
		for _, slot := range opts.Slots {
			caption := fmt.Sprintf("Page %d, image #%d", slot.Page, slot.Number)
			if slot.Index < 0 || slot.Index >= len(images) {
				panel.Items = append(panel.Items, DisplayImage{
					Index:   slot.Index,
					Caption: caption + " (not available)",
				})
				continue
			}
			panel.Items = append(panel.Items, displayImage(images[slot.Index], caption, width, opts.URL))
		}
		if len(images) == 0 {
			panel.Notice = "No images were found in the PDF."
		}
		return panel
	}

	if len(images) == 0 {
		panel.Notice = "No images were found in the PDF."
		panel.Items = []DisplayImage{}
		return panel
	}
	for _, img := range images {
		caption := fmt.Sprintf("Image %d (page %d)", img.Index+1, img.Page)
		panel.Items = append(panel.Items, displayImage(img, caption, width, opts.URL))
	}
	return panel
}

func displayImage(img models.ExtractedImage, caption string, width int, url func(int, int) string) DisplayImage {
	di := DisplayImage{
		Index:     img.Index,
		Caption:   caption,
		Available: true,
		Width:     width,
		Height:    DisplayHeight(img.Width, img.Height, width),
		Details: []Field{
			{Label: "Size", Value: fmt.Sprintf("%d x %d px", img.Width, img.Height)},
			{Label: "Format", Value: img.Format},
			{Label: "Mode", Value: img.ColorModel},
			{Label: "Bytes", Value: fmt.Sprintf("%d", img.SizeBytes)},
		},
	}
	if url != nil {
		di.URL = url(img.Index, width)
	}
	return di
}

// DisplayHeight keeps the aspect ratio when scaling to width.
func DisplayHeight(srcW, srcH, width int) int {
	if srcW <= 0 || srcH <= 0 {
		return 0
	}
	return int(math.Round(float64(width) * float64(srcH) / float64(srcW)))
}
