package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	// Decoders registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

var disableConfigDir sync.Once

// rawImage is an encoded image stream as pdfcpu returned it, before we
// have tried to decode it. Position is the 1-based place of the image in
// its page's listing and survives images skipped before it.
type rawImage struct {
	Page     int
	Position int
	ObjNr    int
	FileType string
	Data     []byte
}

// doOperator matches an XObject paint operation in a content stream.
var doOperator = regexp.MustCompile(`/([^\s/\[\]()<>{}%]+)\s+Do\b`)

// ExtractImages returns the embedded raster images in page order, then in
// the order the page paints them.
//
// pdfcpu needs a seekable source; the upload is written to a temp file that
// lives only for the duration of this call and is removed on every path.
// Images that fail to extract or decode are skipped and described in the
// returned warnings; the rest of the document's images are kept.
func ExtractImages(ctx context.Context, data []byte) ([]models.ExtractedImage, []string, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	tmp, err := os.CreateTemp("", "ad-analysis-*.pdf")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", tmp.Name()).Msg("⚠️  Failed to remove temp PDF")
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return nil, nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("failed to rewind temp PDF: %w", err)
	}

	pdfCtx, err := readContext(tmp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read PDF images: %w", err)
	}

	raws, warnings, err := readRawImages(ctx, pdfCtx)
	if err != nil {
		return nil, nil, err
	}

	images, decodeWarnings := decodeImages(raws)
	return images, append(warnings, decodeWarnings...), nil
}

// readContext parses and optimizes the document once. The optimize pass is
// what indexes image objects per page.
func readContext(rs io.ReadSeeker) (pdfCtx *model.Context, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdfcpu panicked: %v", rec)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTIMAGES

	pdfCtx, err = api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, err
	}
	if pdfCtx.Optimize == nil {
		return nil, fmt.Errorf("image index unavailable")
	}
	return pdfCtx, nil
}

// readRawImages extracts every image of every page on its own, so one
// broken stream costs only that image.
func readRawImages(ctx context.Context, pdfCtx *model.Context) ([]rawImage, []string, error) {
	var (
		raws     []rawImage
		warnings []string
	)

	for page := 1; page <= pdfCtx.PageCount; page++ {
		objNrs := pdfcpu.ImageObjNrs(pdfCtx, page)
		sortByPaintOrder(pdfCtx, page, objNrs)

		for i, objNr := range objNrs {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}

			raw, err := extractImage(pdfCtx, page, objNr)
			if err != nil {
				extractErr := models.NewImageDecodeError(
					fmt.Sprintf("image %d on page %d could not be decoded", i+1, page), err)
				log.Warn().Err(extractErr).Int("obj", objNr).Msg("⚠️  Skipping image")
				warnings = append(warnings, extractErr.Error())
				continue
			}
			raw.Position = i + 1
			raws = append(raws, raw)
		}
	}
	return raws, warnings, nil
}

func extractImage(pdfCtx *model.Context, page, objNr int) (raw rawImage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdfcpu panicked: %v", rec)
		}
	}()

	obj, ok := pdfCtx.Optimize.ImageObjects[objNr]
	if !ok || obj == nil || obj.ImageDict == nil {
		return rawImage{}, fmt.Errorf("image object %d is missing", objNr)
	}

	img, err := pdfcpu.ExtractImage(pdfCtx, obj.ImageDict, false, obj.ResourceNames[page-1], objNr, false)
	if err != nil {
		return rawImage{}, err
	}
	if img == nil || img.Reader == nil {
		return rawImage{}, fmt.Errorf("unsupported image encoding")
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, img.Reader); err != nil {
		return rawImage{}, err
	}
	return rawImage{
		Page:     page,
		ObjNr:    objNr,
		FileType: img.FileType,
		Data:     buf.Bytes(),
	}, nil
}

// sortByPaintOrder orders a page's images by the first "/Name Do" that
// paints them in the page content. pdfcpu keeps resources in maps, so
// paint order is the closest stable stand-in for the resource listing.
// Images the content never paints directly (form XObjects, soft masks)
// follow in object number order.
func sortByPaintOrder(pdfCtx *model.Context, page int, objNrs []int) {
	order := paintOrder(pdfCtx, page)
	rank := func(objNr int) int {
		if obj, ok := pdfCtx.Optimize.ImageObjects[objNr]; ok && obj != nil {
			if r, ok := order[obj.ResourceNames[page-1]]; ok {
				return r
			}
		}
		return len(order)
	}
	sort.SliceStable(objNrs, func(i, j int) bool {
		ri, rj := rank(objNrs[i]), rank(objNrs[j])
		if ri != rj {
			return ri < rj
		}
		return objNrs[i] < objNrs[j]
	})
}

func paintOrder(pdfCtx *model.Context, page int) (order map[string]int) {
	order = make(map[string]int)
	defer func() {
		if recover() != nil {
			order = map[string]int{}
		}
	}()

	r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
	if err != nil || r == nil {
		return order
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return order
	}
	for _, m := range doOperator.FindAllSubmatch(content, -1) {
		name := string(m[1])
		if _, seen := order[name]; !seen {
			order[name] = len(order)
		}
	}
	return order
}

// decodeImages validates each stream with image.DecodeConfig and assigns
// stable indexes to the survivors.
func decodeImages(raws []rawImage) ([]models.ExtractedImage, []string) {
	images := make([]models.ExtractedImage, 0, len(raws))
	var warnings []string
	for _, raw := range raws {
		position := raw.Position

		cfg, format, err := decodeConfig(raw.Data)
		if err != nil {
			decodeErr := models.NewImageDecodeError(
				fmt.Sprintf("image %d on page %d could not be decoded", position, raw.Page), err)
			log.Warn().Err(decodeErr).Str("type", raw.FileType).Msg("⚠️  Skipping image")
			warnings = append(warnings, decodeErr.Error())
			continue
		}

		images = append(images, models.ExtractedImage{
			Index:      len(images),
			Page:       raw.Page,
			PageImage:  position,
			Format:     strings.ToUpper(format),
			MIMEType:   "image/" + format,
			Width:      cfg.Width,
			Height:     cfg.Height,
			ColorModel: colorModelName(cfg.ColorModel),
			SizeBytes:  len(raw.Data),
			Data:       raw.Data,
		})
	}

	return images, warnings
}

func decodeConfig(data []byte) (image.Config, string, error) {
	if len(data) == 0 {
		return image.Config{}, "", fmt.Errorf("empty image stream")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return cfg, format, nil
}

// colorModelName reports the colour mode the way image tools usually do.
func colorModelName(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	switch m {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return "RGBA"
	case color.YCbCrModel, color.NYCbCrAModel:
		return "RGB"
	case color.GrayModel, color.Gray16Model:
		return "L"
	case color.CMYKModel:
		return "CMYK"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	}
	return "unknown"
}
