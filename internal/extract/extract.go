// Package extract holds the direct (zero-network) text extractors and the
// ordered runner that tries them until one produces acceptable content.
package extract

import (
	"context"
	"log/slog"
)

// Attempt is the outcome of one extraction method. Zero or more are created
// per request; the pipeline keeps only the best.
type Attempt struct {
	Method    string
	Content   string
	Succeeded bool
}

// Extractor is a single extraction strategy. Attempt either produces
// non-empty content or returns an error; both outcomes advance the runner to
// the next strategy.
type Extractor interface {
	Method() string
	Attempt(ctx context.Context, path string) (Attempt, error)
}

// FirstAcceptable runs extractors in priority order. It returns as soon as an
// attempt meets minChars; otherwise it returns the longest content seen.
// Extracted length is the primary success signal: short content is treated as
// insufficient even when no error occurred, so the caller escalates to the
// next, more expensive tier.
func FirstAcceptable(ctx context.Context, extractors []Extractor, path string, minChars int, logger *slog.Logger) (best Attempt, acceptable bool) {
	for _, ex := range extractors {
		if ctx.Err() != nil {
			return best, false
		}

		attempt, err := ex.Attempt(ctx, path)
		if err != nil {
			logger.Warn("extractor failed, trying next", "method", ex.Method(), "error", err)
			continue
		}
		if !attempt.Succeeded || attempt.Content == "" {
			logger.Debug("extractor produced no content", "method", ex.Method())
			continue
		}

		if len(attempt.Content) > len(best.Content) {
			best = attempt
		}
		if len(attempt.Content) >= minChars {
			return attempt, true
		}
		logger.Debug("extractor content below threshold",
			"method", ex.Method(), "chars", len(attempt.Content), "min", minChars)
	}
	return best, false
}
