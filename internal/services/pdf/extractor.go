// Package pdf pulls the text layer and the embedded raster images out of an
// uploaded advertisement PDF.
//
// Text comes from the ledongthuc/pdf library, a pure Go reader. Images come
// from pdfcpu, which understands image XObjects and hands back their encoded
// streams. Neither needs CGO, so deployment is still a single binary.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// ExtractionResult holds everything pulled out of one document.
type ExtractionResult struct {
	Text      string   // Page texts concatenated in page order
	Pages     []string // Text per page, index 0 is page 1
	PageCount int
	WordCount int
	Images    []models.ExtractedImage
	Warnings  []string // Recovered problems worth showing the user
}

// Extract reads the text layer and the embedded images of a PDF.
//
// A document that cannot be opened at all is a DocumentParseError and the
// caller must not analyse it. Everything after that point is recovered:
// pages without text contribute "", images that fail to decode are skipped,
// and an image pass that fails entirely yields zero images plus a warning.
func Extract(ctx context.Context, data []byte) (*ExtractionResult, error) {
	if !ValidatePDF(data) {
		return nil, models.NewDocumentParseError("the uploaded file does not appear to be a valid PDF", nil)
	}

	result, err := ExtractText(data)
	if err != nil {
		return nil, err
	}

	images, warnings, err := ExtractImages(ctx, data)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Image extraction failed, continuing without images")
		result.Warnings = append(result.Warnings, fmt.Sprintf("Image extraction failed: %v", err))
	}
	result.Images = images
	result.Warnings = append(result.Warnings, warnings...)

	return result, nil
}

// ExtractText walks the pages in order and concatenates their text layers.
// A document with no text layer anywhere yields an empty string, not an
// error: this is text-layer extraction, not OCR.
func ExtractText(data []byte) (*ExtractionResult, error) {
	reader := bytes.NewReader(data)

	pdfReader, err := openReader(reader, int64(len(data)))
	if err != nil {
		return nil, models.NewDocumentParseError("failed to open PDF", err)
	}

	pageCount := pdfReader.NumPage()
	pages := make([]string, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		text, err := pageText(pdfReader, i)
		if err != nil {
			// Image-only pages and exotic fonts land here; the page simply
			// contributes no text.
			log.Debug().Err(err).Int("page", i).Msg("page text extraction failed")
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	text := strings.Join(pages, "")

	return &ExtractionResult{
		Text:      text,
		Pages:     pages,
		PageCount: pageCount,
		WordCount: countWords(text),
	}, nil
}

// openReader wraps pdf.NewReader, which panics on some malformed inputs
// instead of returning an error.
func openReader(r *bytes.Reader, size int64) (pdfReader *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pdfReader = nil
			err = fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return pdf.NewReader(r, size)
}

// pageText extracts one page, converting library panics into errors.
func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", n, rec)
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// countWords counts the number of words in a text string.
func countWords(text string) int {
	return len(strings.Fields(text))
}

// ValidatePDF checks if the data looks like a valid PDF by checking the magic bytes.
func ValidatePDF(data []byte) bool {
	// PDF files start with "%PDF-"
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}
