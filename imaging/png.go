package imaging

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"io"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// PNG IHDR constants for 8-bit truecolor with alpha.
const (
	pngBitDepth      = 8
	pngColorTypeRGBA = 6
)

// encodeNRGBA writes m as a PNG whose pixel format is always 8-bit RGBA.
// image/png picks RGB for fully opaque images; the output here keeps the
// alpha channel regardless of content.
func encodeNRGBA(w io.Writer, m *image.NRGBA) error {
	b := m.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return errors.New("imaging: empty image")
	}

	if _, err := w.Write(pngSignature); err != nil {
		return err
	}

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = pngBitDepth
	ihdr[9] = pngColorTypeRGBA
	// compression, filter and interlace methods stay 0
	if err := writeChunk(w, "IHDR", ihdr[:]); err != nil {
		return err
	}

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	row := make([]byte, 1+4*width) // row[0] is the filter type: none
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := m.PixOffset(b.Min.X, y)
		copy(row[1:], m.Pix[off:off+4*width])
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}

	if err := writeChunk(w, "IDAT", idat.Bytes()); err != nil {
		return err
	}
	return writeChunk(w, "IEND", nil)
}

func writeChunk(w io.Writer, name string, data []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	copy(header[4:], name)

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(data)
	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], crc.Sum32())

	for _, p := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}
