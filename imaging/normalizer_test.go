package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/shelfscrape/config"
	"github.com/use-agent/shelfscrape/fetcher"
	"github.com/use-agent/shelfscrape/models"
	"golang.org/x/time/rate"
)

func testConfig() config.FetchConfig {
	cfg := config.Default().Fetch
	cfg.ImageTimeout = 2 * time.Second
	cfg.ImageRate = rate.Inf
	return cfg
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	jpg := encodeJPEG(t, 6, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/img/photo.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	})
	mux.HandleFunc("/img/garbage.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not an image"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// readPNG decodes path and returns the image plus the IHDR color type byte.
func readPNG(t *testing.T, path string) (image.Image, byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	// signature(8) + length(4) + "IHDR"(4) + width(4) + height(4) + depth(1)
	return img, data[25]
}

func assertNoFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries (first: %s)", len(entries), entries[0].Name())
	}
}

func TestNormalize_SavesJPEGAsRGBAPNG(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "product_1_Photo.png")

	n := NewNormalizer(fetcher.New(testConfig()), testConfig())
	res := n.Normalize(context.Background(), srv.URL+"/img/photo.jpg", dest)

	if res.Status != StatusSaved {
		t.Fatalf("Status = %v, want saved (err: %v)", res.Status, res.Err)
	}
	if res.Path != dest {
		t.Errorf("Path = %q, want %q", res.Path, dest)
	}

	img, colorType := readPNG(t, dest)
	if colorType != pngColorTypeRGBA {
		t.Errorf("IHDR color type = %d, want %d", colorType, pngColorTypeRGBA)
	}
	if _, ok := img.(*image.NRGBA); !ok {
		t.Errorf("decoded type = %T, want *image.NRGBA", img)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Errorf("bounds = %v, want 6x4", b)
	}
}

func TestNormalize_ResolvesRelativeLocator(t *testing.T) {
	srv := imageServer(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "rel.png")

	base, err := url.Parse(srv.URL + "/catalog/page.html")
	if err != nil {
		t.Fatal(err)
	}
	n := NewNormalizer(fetcher.New(testConfig()), testConfig())
	n.SetBase(base)

	res := n.Normalize(context.Background(), "../img/photo.jpg", dest)
	if res.Status != StatusSaved {
		t.Fatalf("Status = %v, want saved (err: %v)", res.Status, res.Err)
	}
}

func TestNormalize_Failures(t *testing.T) {
	srv := imageServer(t)

	tests := []struct {
		name     string
		locator  string
		wantCode string
	}{
		{"not found", srv.URL + "/img/missing.png", models.ErrCodeHTTPStatus},
		{"not an image", srv.URL + "/img/garbage.png", models.ErrCodeDecode},
		{"relative without base", "w.jpg", models.ErrCodeInvalidInput},
		{"unsupported scheme", "ftp://example.com/a.png", models.ErrCodeInvalidInput},
	}

	n := NewNormalizer(fetcher.New(testConfig()), testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			res := n.Normalize(context.Background(), tt.locator, filepath.Join(dir, "x.png"))

			if res.Status != StatusFailed {
				t.Fatalf("Status = %v, want failed", res.Status)
			}
			if got := models.CodeOf(res.Err); got != tt.wantCode {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.wantCode, res.Err)
			}
			assertNoFiles(t, dir)
		})
	}
}

func TestNormalize_WriteFailureLeavesNothing(t *testing.T) {
	srv := imageServer(t)
	dest := filepath.Join(t.TempDir(), "missing-dir", "x.png")

	n := NewNormalizer(fetcher.New(testConfig()), testConfig())
	res := n.Normalize(context.Background(), srv.URL+"/img/photo.jpg", dest)

	if got := models.CodeOf(res.Err); res.Status != StatusFailed || got != models.ErrCodeIO {
		t.Fatalf("got status %v code %q, want failed %q", res.Status, got, models.ErrCodeIO)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("dest should not exist, stat err: %v", err)
	}
}

type countingGetter struct{ calls int }

func (g *countingGetter) FetchBytes(context.Context, string, time.Duration, string) ([]byte, error) {
	g.calls++
	return nil, models.NewScrapeError(models.ErrCodeTransport, "unreachable", nil)
}

func TestNormalize_EmptyLocatorIsNoop(t *testing.T) {
	g := &countingGetter{}
	dir := t.TempDir()

	for _, locator := range []string{"", "   "} {
		res := NewNormalizer(g, testConfig()).Normalize(context.Background(), locator, filepath.Join(dir, "x.png"))
		if res.Status != StatusSkipped || res.Err != nil {
			t.Errorf("Normalize(%q) = %+v, want skipped without error", locator, res)
		}
	}
	if g.calls != 0 {
		t.Errorf("getter called %d times, want 0", g.calls)
	}
	assertNoFiles(t, dir)
}

func TestEncodeNRGBA_RoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 128})
	src.SetNRGBA(2, 1, color.NRGBA{B: 255, A: 0})

	var buf bytes.Buffer
	if err := encodeNRGBA(&buf, src); err != nil {
		t.Fatalf("encodeNRGBA: %v", err)
	}

	got, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	nrgba, ok := got.(*image.NRGBA)
	if !ok {
		t.Fatalf("decoded type = %T, want *image.NRGBA", got)
	}
	if !bytes.Equal(nrgba.Pix, src.Pix) {
		t.Errorf("pixels differ:\n got %v\nwant %v", nrgba.Pix, src.Pix)
	}
}

func TestEncodeNRGBA_OpaqueKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	var buf bytes.Buffer
	if err := encodeNRGBA(&buf, src); err != nil {
		t.Fatalf("encodeNRGBA: %v", err)
	}
	if ct := buf.Bytes()[25]; ct != pngColorTypeRGBA {
		t.Errorf("color type = %d, want %d", ct, pngColorTypeRGBA)
	}
}

func TestToNRGBA_OffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 14, 12))
	src.Set(10, 10, color.RGBA{R: 255, A: 255})

	got := ToNRGBA(src)
	if got.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Errorf("bounds = %v, want (0,0)-(4,2)", got.Bounds())
	}
	if c := got.NRGBAAt(0, 0); c.R != 255 || c.A != 255 {
		t.Errorf("pixel (0,0) = %v, want opaque red", c)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusSkipped, "skipped"},
		{StatusSaved, "saved"},
		{StatusFailed, "failed"},
		{Status(9), "Status(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
