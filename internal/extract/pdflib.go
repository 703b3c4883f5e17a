package extract

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"

	"github.com/sourcelens/ingestion-service/internal/types"
)

// yJumpThreshold is the vertical distance (in PDF points) between fragments
// that indicates a new line rather than same-line kerning jitter.
const yJumpThreshold = 2.0

// PDFParse is the in-process fallback when pdftotext is unavailable. It reads
// positioned text fragments and reconstructs layout: fragments are ordered by
// vertical then horizontal position, with line breaks inserted on vertical
// jumps.
type PDFParse struct{}

func (PDFParse) Method() string { return types.MethodPDFParse }

func (e PDFParse) Attempt(ctx context.Context, path string) (Attempt, error) {
	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return Attempt{Method: e.Method()}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if ctx.Err() != nil {
			return Attempt{Method: e.Method()}, ctx.Err()
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		frags := make([]fragment, 0, len(page.Content().Text))
		for _, t := range page.Content().Text {
			if t.S == "" {
				continue
			}
			frags = append(frags, fragment{x: t.X, y: t.Y, s: t.S})
		}

		pageText := assembleFragments(frags)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}

	content := strings.TrimSpace(sb.String())
	return Attempt{
		Method:    e.Method(),
		Content:   content,
		Succeeded: content != "",
	}, nil
}

type fragment struct {
	x, y float64
	s    string
}

// assembleFragments orders fragments top-to-bottom, left-to-right (PDF
// coordinates have the origin at the bottom-left, so higher Y comes first)
// and joins them, breaking lines when the vertical position jumps.
func assembleFragments(frags []fragment) string {
	if len(frags) == 0 {
		return ""
	}

	sort.SliceStable(frags, func(i, j int) bool {
		if math.Abs(frags[i].y-frags[j].y) > yJumpThreshold {
			return frags[i].y > frags[j].y
		}
		return frags[i].x < frags[j].x
	})

	var sb strings.Builder
	lastY := frags[0].y
	for i, fr := range frags {
		if i > 0 {
			if lastY-fr.y > yJumpThreshold {
				sb.WriteByte('\n')
				lastY = fr.y
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(strings.TrimSpace(fr.s))
	}
	return strings.TrimSpace(sb.String())
}
