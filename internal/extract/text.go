package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/sourcelens/ingestion-service/internal/types"
)

// DirectText reads a plain-text file verbatim. The content is returned
// byte-for-byte; no cleanup runs on this path.
type DirectText struct{}

func (DirectText) Method() string { return types.MethodDirectText }

func (e DirectText) Attempt(ctx context.Context, path string) (Attempt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attempt{Method: e.Method()}, fmt.Errorf("read text file: %w", err)
	}
	return Attempt{
		Method:    e.Method(),
		Content:   string(data),
		Succeeded: len(data) > 0,
	}, nil
}
