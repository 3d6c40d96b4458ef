// Package imaging downloads product images and re-encodes them as RGBA PNG
// files.
package imaging

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/shelfscrape/config"
	"github.com/use-agent/shelfscrape/models"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"
)

const acceptImage = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"

// maxPixels rejects images whose declared size would exhaust memory once
// expanded to 4 bytes per pixel.
const maxPixels = 1 << 26

// Getter retrieves a resource body. *fetcher.Client satisfies it.
type Getter interface {
	FetchBytes(ctx context.Context, address string, timeout time.Duration, accept string) ([]byte, error)
}

// Status is the outcome kind of a Normalize call.
type Status int

const (
	// StatusSkipped means there was no locator and nothing was written.
	StatusSkipped Status = iota
	// StatusSaved means the PNG exists at Result.Path.
	StatusSaved
	// StatusFailed means Result.Err is set and nothing was written.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusSaved:
		return "saved"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of normalizing one image.
type Result struct {
	Status Status
	Path   string
	// Err is a *models.ScrapeError when Status is StatusFailed.
	Err error
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

// Normalizer fetches one image at a time and stores it as RGBA PNG.
type Normalizer struct {
	client  Getter
	timeout time.Duration
	limiter *rate.Limiter
	base    *url.URL
}

// NewNormalizer creates a Normalizer using the image timeout and pacing
// from cfg.
func NewNormalizer(client Getter, cfg config.FetchConfig) *Normalizer {
	return &Normalizer{
		client:  client,
		timeout: cfg.ImageTimeout,
		limiter: rate.NewLimiter(cfg.ImageRate, cfg.ImageBurst),
	}
}

// SetBase sets the URL relative locators are resolved against.
func (n *Normalizer) SetBase(base *url.URL) {
	n.base = base
}

// Normalize fetches locator, decodes it, converts it to NRGBA and writes it
// to dest as PNG. An empty locator is a no-op.
func (n *Normalizer) Normalize(ctx context.Context, locator, dest string) Result {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return Result{Status: StatusSkipped}
	}

	target, err := n.resolve(locator)
	if err != nil {
		return failed(err)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return failed(models.NewScrapeError(models.ErrCodeTransport, "wait for image slot", err))
	}

	body, err := n.client.FetchBytes(ctx, target, n.timeout, acceptImage)
	if err != nil {
		return failed(err)
	}

	img, err := decode(body)
	if err != nil {
		return failed(err)
	}

	if err := writePNG(dest, ToNRGBA(img)); err != nil {
		return failed(models.NewScrapeError(models.ErrCodeIO, "write "+dest, err))
	}

	return Result{Status: StatusSaved, Path: dest}
}

// resolve turns locator into an absolute http(s) URL.
func (n *Normalizer) resolve(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "parse image locator", err)
	}
	if n.base != nil {
		u = n.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported image locator %q", locator), nil)
	}
	return u.String(), nil
}

// decode interprets body with any registered image format.
func decode(body []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeDecode, "unrecognized image data", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, models.NewScrapeError(models.ErrCodeDecode,
			fmt.Sprintf("%s image has unusable size %dx%d", format, cfg.Width, cfg.Height), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeDecode, "decode "+format, err)
	}
	return img, nil
}

// ToNRGBA converts src to a non-premultiplied RGBA image anchored at (0,0).
func ToNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if m, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return m
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// writePNG encodes into a temp file next to dest and renames it into place,
// so dest is either complete or untouched.
func writePNG(dest string, img *image.NRGBA) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".shelfscrape-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = encodeNRGBA(bw, img); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
