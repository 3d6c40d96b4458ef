// Package export writes extracted products to a CSV file and stores their
// images next to it.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/shelfscrape/imaging"
	"github.com/use-agent/shelfscrape/models"
)

// maxNameLen bounds the sanitized-name part of an image filename, in characters.
const maxNameLen = 100

var header = []string{"name", "price", "image_filename"}

// ImageNormalizer stores one image. *imaging.Normalizer satisfies it.
type ImageNormalizer interface {
	Normalize(ctx context.Context, locator, dest string) imaging.Result
}

// Writer serializes products to CSV, normalizing each product's image as
// its row is written.
type Writer struct {
	images ImageNormalizer
}

// NewWriter creates a Writer that stores images through images.
func NewWriter(images ImageNormalizer) *Writer {
	return &Writer{images: images}
}

// Sanitize collapses every whitespace run in name to a single underscore
// (dropping leading and trailing runs) and truncates to 100 characters.
func Sanitize(name string) string {
	s := strings.Join(strings.Fields(name), "_")
	if utf8.RuneCountInString(s) > maxNameLen {
		s = string([]rune(s)[:maxNameLen])
	}
	return s
}

// ImageFilename returns the image filename for the product at 1-based index.
func ImageFilename(index int, name string) string {
	return fmt.Sprintf("product_%d_%s.png", index, Sanitize(name))
}

// Write creates csvPath with a header row and one row per product, in order.
//
// Image failures never abort the export: the row keeps its computed
// image_filename and the file is simply absent. Only directory creation and
// CSV I/O errors are returned.
func (w *Writer) Write(ctx context.Context, products []models.Product, csvPath, imagesDir string) (models.ExportSummary, error) {
	summary := models.ExportSummary{CSVPath: csvPath, ImagesDir: imagesDir}

	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return summary, models.NewScrapeError(models.ErrCodeIO, "create csv directory", err)
	}
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return summary, models.NewScrapeError(models.ErrCodeIO, "create images directory", err)
	}

	f, err := os.Create(csvPath)
	if err != nil {
		return summary, models.NewScrapeError(models.ErrCodeIO, "create csv file", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := writeRow(cw, header); err != nil {
		return summary, models.NewScrapeError(models.ErrCodeIO, "write csv header", err)
	}

	for i, p := range products {
		filename := ""
		if p.ImageURL != "" {
			filename = ImageFilename(i+1, p.Name)
		}

		if err := writeRow(cw, []string{p.Name, p.Price, filename}); err != nil {
			return summary, models.NewScrapeError(models.ErrCodeIO, "write csv row", err)
		}
		summary.Products++

		if filename == "" {
			summary.ImagesSkipped++
			continue
		}

		res := w.saveImage(ctx, p.ImageURL, imagesDir, filename)
		switch res.Status {
		case imaging.StatusSaved:
			summary.ImagesSaved++
			slog.Debug("image saved", "path", res.Path)
		case imaging.StatusSkipped:
			summary.ImagesSkipped++
		case imaging.StatusFailed:
			summary.ImagesFailed++
			slog.Warn("image skipped",
				"product", p.Name,
				"url", p.ImageURL,
				"image_filename", filename,
				"error", res.Err,
			)
		}
	}

	if err := f.Close(); err != nil {
		return summary, models.NewScrapeError(models.ErrCodeIO, "close csv file", err)
	}
	return summary, nil
}

// saveImage normalizes locator into imagesDir/filename. Filenames that
// would leave imagesDir are refused.
func (w *Writer) saveImage(ctx context.Context, locator, imagesDir, filename string) imaging.Result {
	if strings.ContainsAny(filename, "/"+string(filepath.Separator)) {
		return imaging.Result{
			Status: imaging.StatusFailed,
			Err:    models.NewScrapeError(models.ErrCodeInvalidInput, "image filename contains a path separator", nil),
		}
	}
	return w.images.Normalize(ctx, locator, filepath.Join(imagesDir, filename))
}

// writeRow writes and flushes one record so rows reach disk as they are produced.
func writeRow(cw *csv.Writer, record []string) error {
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
