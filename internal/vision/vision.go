// Package vision holds the LLM-backed extraction clients. Gemini handles
// native PDF understanding, Claude handles single-image OCR, and either can
// serve plain text generation for analysis and cleanup.
package vision

import "context"

// NativeClient extracts text from a whole document handed over as raw bytes.
type NativeClient interface {
	ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error)
}

// OCRClient extracts text from a single rendered page or photo.
type OCRClient interface {
	ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// TextGenerator produces plain text from a prompt, used for content analysis
// and the optional LLM cleanup pass.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

const documentPrompt = `Extract all text content from this document.
Preserve the reading order, paragraph structure, and any headings.
Transcribe tables row by row. Do not summarize, annotate, or add commentary.
Return only the extracted text.`

const imagePrompt = `Extract all visible text from this image.
Preserve the reading order and line structure. Transcribe handwriting as
faithfully as possible. Do not summarize or add commentary.
Return only the extracted text.`
