package extract

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sourcelens/ingestion-service/internal/types"
)

// PDFToText shells out to poppler's pdftotext, the fastest extraction path
// for PDFs with a real text layer.
type PDFToText struct {
	Timeout time.Duration
}

func (PDFToText) Method() string { return types.MethodPDFToText }

func (e PDFToText) Attempt(ctx context.Context, path string) (Attempt, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return Attempt{Method: e.Method()}, err
	}

	content := strings.TrimSpace(string(out))
	return Attempt{
		Method:    e.Method(),
		Content:   content,
		Succeeded: content != "",
	}, nil
}
