// Package analysis runs extracted text through an LLM and parses the
// SUMMARY/ANALYSIS sections out of the response. Model output drifts, so the
// parser is tolerant: every field has a usable default and a Parsed flag
// reports whether the expected structure was actually found.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sourcelens/ingestion-service/internal/vision"
)

const analysisSystem = `You analyze primary-source documents. Respond in
exactly two labeled sections:

SUMMARY:
<two or three sentences describing what the document is>

ANALYSIS:
<key claims, context, and notable details>`

// Result holds the parsed sections. When Parsed is false the model ignored
// the section labels and the fields carry fallback values derived from the
// raw response.
type Result struct {
	Summary  string `json:"summary"`
	Analysis string `json:"analysis"`
	Parsed   bool   `json:"parsed"`
	Provider string `json:"provider,omitempty"`
	Raw      string `json:"-"`
}

var (
	summaryRe  = regexp.MustCompile(`(?is)SUMMARY:\s*(.*?)(?:ANALYSIS:|$)`)
	analysisRe = regexp.MustCompile(`(?is)ANALYSIS:\s*(.*)$`)
	fenceRe    = regexp.MustCompile("(?s)^```[a-z]*\n?(.*?)\n?```$")
)

// ParseSections extracts the labeled sections from a model response. Missing
// labels degrade gracefully: the whole response becomes the analysis and the
// summary is its leading slice.
func ParseSections(raw string) Result {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	res := Result{Raw: text}
	if text == "" {
		return res
	}

	var haveSummary, haveAnalysis bool
	if m := summaryRe.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		res.Summary = strings.TrimSpace(m[1])
		haveSummary = true
	}
	if m := analysisRe.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		res.Analysis = strings.TrimSpace(m[1])
		haveAnalysis = true
	}

	res.Parsed = haveSummary && haveAnalysis
	if !haveAnalysis {
		res.Analysis = text
	}
	if !haveSummary {
		res.Summary = leadingSlice(text, 300)
	}
	return res
}

func leadingSlice(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n"); i > 0 && i < max {
		return strings.TrimSpace(s[:i])
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// Provider is one model in the fallback chain.
type Provider struct {
	Name string
	Gen  vision.TextGenerator
}

// Service runs the provider chain in order until one returns a response.
type Service struct {
	providers []Provider
	log       *slog.Logger
}

func NewService(log *slog.Logger, providers ...Provider) *Service {
	return &Service{providers: providers, log: log}
}

// Available reports whether at least one provider is configured.
func (s *Service) Available() bool {
	for _, p := range s.providers {
		if p.Gen != nil {
			return true
		}
	}
	return false
}

// Analyze sends the document text through the chain and parses the response.
// It fails only when every provider fails.
func (s *Service) Analyze(ctx context.Context, content string) (Result, error) {
	prompt := "Document text:\n\n" + content

	var lastErr error
	for _, p := range s.providers {
		if p.Gen == nil {
			continue
		}
		raw, err := p.Gen.GenerateText(ctx, analysisSystem, prompt)
		if err != nil {
			s.log.Warn("analysis provider failed, trying next", "provider", p.Name, "error", err)
			lastErr = err
			continue
		}
		res := ParseSections(raw)
		res.Provider = p.Name
		if !res.Parsed {
			s.log.Warn("analysis response missing section labels, using fallback fields",
				"provider", p.Name)
		}
		return res, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no analysis providers configured")
	}
	return Result{}, fmt.Errorf("analysis failed: %w", lastErr)
}
