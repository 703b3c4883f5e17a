// Package render shells out to poppler and libheif CLIs for the raster steps
// of the pipeline: first-page images for OCR fallback and HEIC transcoding.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// ocrScalePixels is the longest-side size for OCR input. Big enough for
// legible body text, small enough to stay under vision API limits.
const ocrScalePixels = 1536

// Renderer wraps the external raster tools with a per-call timeout.
type Renderer struct {
	Timeout time.Duration
}

func (r Renderer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(ctx, r.Timeout)
	}
	return context.WithCancel(ctx)
}

// FirstPageJPEG rasterizes page one of a PDF into a JPEG inside dir and
// returns the bytes. Uses pdftoppm, which writes <prefix>-1.jpg or
// <prefix>-01.jpg depending on page-count padding.
func (r Renderer) FirstPageJPEG(ctx context.Context, pdfPath, dir string) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-f", "1", "-l", "1",
		"-jpeg",
		"-scale-to", strconv.Itoa(ocrScalePixels),
		pdfPath, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, firstLine(out))
	}

	for _, name := range []string{prefix + "-1.jpg", prefix + "-01.jpg", prefix + "-001.jpg"} {
		if data, err := os.ReadFile(name); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("pdftoppm produced no page image")
}

// TranscodeHEIC converts a HEIC/HEIF file to JPEG inside dir and returns the
// bytes. Vision APIs do not accept HEIC directly.
func (r Renderer) TranscodeHEIC(ctx context.Context, heicPath, dir string) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	outPath := filepath.Join(dir, "transcoded.jpg")
	cmd := exec.CommandContext(ctx, "heif-convert", "-q", "90", heicPath, outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("heif-convert: %w: %s", err, firstLine(out))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read transcoded image: %w", err)
	}
	return data, nil
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
