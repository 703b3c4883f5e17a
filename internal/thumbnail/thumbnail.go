// Package thumbnail produces small preview images as data URIs. Thumbnails
// are best effort: every error here is logged and swallowed by the caller,
// never surfaced to the client.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 80

// Generator scales images down to MaxDim on the longest side.
type Generator struct {
	MaxDim  int
	Timeout time.Duration
}

// FromImage decodes raster bytes, scales them down, and returns a
// data:image/jpeg URI.
func (g Generator) FromImage(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return g.encode(scale(src, g.MaxDim))
}

// FromPDF rasterizes page one at thumbnail size with pdftoppm, writing the
// intermediate file into dir.
func (g Generator) FromPDF(ctx context.Context, pdfPath, dir string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	prefix := filepath.Join(dir, "thumb")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-f", "1", "-l", "1",
		"-jpeg",
		"-scale-to", strconv.Itoa(g.MaxDim),
		pdfPath, prefix,
	)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm thumbnail: %w", err)
	}

	for _, name := range []string{prefix + "-1.jpg", prefix + "-01.jpg", prefix + "-001.jpg"} {
		if data, err := os.ReadFile(name); err == nil {
			return dataURI(data), nil
		}
	}
	return "", fmt.Errorf("pdftoppm produced no thumbnail")
}

func (g Generator) encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return dataURI(buf.Bytes()), nil
}

func scale(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func dataURI(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}
