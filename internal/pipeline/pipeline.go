// Package pipeline orchestrates document ingestion: validation, thumbnailing,
// direct extraction, vision fallback, and text post-processing. Extraction
// failures never fail the request; only validation and infrastructure errors
// surface to the caller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcelens/ingestion-service/internal/cleantext"
	"github.com/sourcelens/ingestion-service/internal/config"
	"github.com/sourcelens/ingestion-service/internal/extract"
	"github.com/sourcelens/ingestion-service/internal/types"
	"github.com/sourcelens/ingestion-service/internal/vision"
	"github.com/sourcelens/ingestion-service/internal/workspace"
)

// Placeholder content substituted on total extraction failure. The response
// still carries HTTP 200 so the caller can render a graceful message.
const (
	pdfFailedPlaceholder = "[PDF processing failed: no text could be extracted from this document. " +
		"The file may be image-only, encrypted, or corrupted.]"
	imageFailedPlaceholder = "[Image processing failed: no text could be extracted from this image.]"
	emptyTextPlaceholder   = "[The uploaded text file is empty.]"
)

const cleanupSystem = `You clean up OCR output. Fix obvious character-recognition
errors, rejoin split words, and remove repeated headers. Do not rephrase,
summarize, or omit any content. Return only the cleaned text.`

// Request is the transient input for one ingestion. It exists only for the
// duration of one HTTP request.
type Request struct {
	Data        []byte
	Filename    string
	MIMEType    string
	VisionFirst bool
	VisionModel string
}

// FirstPageRenderer rasterizes page one of a PDF for the OCR fallback.
type FirstPageRenderer interface {
	FirstPageJPEG(ctx context.Context, pdfPath, dir string) ([]byte, error)
}

// HEICTranscoder converts HEIC/HEIF bytes to JPEG before any vision call.
type HEICTranscoder interface {
	TranscodeHEIC(ctx context.Context, heicPath, dir string) ([]byte, error)
}

// Thumbnailer produces best-effort preview data URIs.
type Thumbnailer interface {
	FromImage(data []byte) (string, error)
	FromPDF(ctx context.Context, pdfPath, dir string) (string, error)
}

// Deps are the collaborators of the pipeline, injected by the composition
// root. Vision clients may be nil when no API key is configured; the pipeline
// then skips those tiers.
type Deps struct {
	Config config.Config
	Logger *slog.Logger

	PDFExtractors []extract.Extractor
	PageCount     func(path string) (int, error)

	Native vision.NativeClient
	OCR    vision.OCRClient

	// SelectNative/SelectOCR resolve a request-supplied model identifier to a
	// client. Nil selectors fall back to the fixed clients above.
	SelectNative func(model string) vision.NativeClient
	SelectOCR    func(model string) vision.OCRClient

	Render    FirstPageRenderer
	Transcode HEICTranscoder
	Thumbs    Thumbnailer

	// Cleaner is the optional LLM cleanup stage. Nil disables it.
	Cleaner vision.TextGenerator
}

type Pipeline struct {
	deps Deps
	cfg  config.Config
	log  *slog.Logger
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("pipeline requires a logger")
	}
	if deps.PageCount == nil {
		return nil, fmt.Errorf("pipeline requires a page counter")
	}
	return &Pipeline{deps: deps, cfg: deps.Config, log: deps.Logger}, nil
}

// Process runs one document through the pipeline. A *types.ValidationError
// maps to 400; any other error is infrastructure and maps to 500. Extraction
// failures return a placeholder result and a nil error.
func (p *Pipeline) Process(ctx context.Context, req Request) (types.ExtractionResult, error) {
	family, err := p.validate(req)
	if err != nil {
		return types.ExtractionResult{}, err
	}

	ws, err := workspace.New(p.cfg.TempDir)
	if err != nil {
		return types.ExtractionResult{}, fmt.Errorf("workspace: %w", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			p.log.Error("workspace cleanup failed", "dir", ws.Dir(), "error", cerr)
		}
	}()

	result := types.ExtractionResult{
		Filename: req.Filename,
		Type:     req.MIMEType,
		FileSize: int64(len(req.Data)),
	}

	switch family {
	case familyText:
		return p.processText(ctx, req, ws, result)
	case familyPDF:
		return p.processPDF(ctx, req, ws, result)
	default:
		return p.processImage(ctx, req, ws, result)
	}
}

type mimeFamily int

const (
	familyPDF mimeFamily = iota
	familyText
	familyImage
)

func (p *Pipeline) validate(req Request) (mimeFamily, error) {
	mt := strings.ToLower(strings.TrimSpace(req.MIMEType))
	size := int64(len(req.Data))

	switch {
	case mt == "application/pdf":
		if size > p.cfg.MaxPDFBytes {
			return 0, types.NewValidationError(types.CodeFileTooLarge,
				fmt.Sprintf("PDF exceeds the %dMB limit", p.cfg.MaxPDFBytes>>20))
		}
		return familyPDF, nil
	case strings.HasPrefix(mt, "text/"):
		if size > p.cfg.MaxTextBytes {
			return 0, types.NewValidationError(types.CodeFileTooLarge,
				fmt.Sprintf("text file exceeds the %dMB limit", p.cfg.MaxTextBytes>>20))
		}
		return familyText, nil
	case strings.HasPrefix(mt, "image/"):
		if size > p.cfg.MaxImageBytes {
			return 0, types.NewValidationError(types.CodeFileTooLarge,
				fmt.Sprintf("image exceeds the %dMB limit", p.cfg.MaxImageBytes>>20))
		}
		return familyImage, nil
	default:
		return 0, types.NewValidationError(types.CodeUnsupportedType,
			fmt.Sprintf("unsupported file type %q; accepted: application/pdf, text/*, image/*", req.MIMEType))
	}
}

// processText runs the direct-text extractor over the workspace copy and
// returns its content byte-for-byte. No cleanup and no thumbnail run on this
// path.
func (p *Pipeline) processText(ctx context.Context, req Request, ws *workspace.Workspace, result types.ExtractionResult) (types.ExtractionResult, error) {
	path, err := ws.WriteFile("input.txt", req.Data)
	if err != nil {
		return types.ExtractionResult{}, err
	}

	attempt, err := extract.DirectText{}.Attempt(ctx, path)
	if err != nil {
		return types.ExtractionResult{}, err
	}
	if !attempt.Succeeded || strings.TrimSpace(attempt.Content) == "" {
		result.Content = emptyTextPlaceholder
		result.ProcessingMethod = types.MethodAllFailed
		return result, nil
	}
	result.Content = attempt.Content
	result.ProcessingMethod = attempt.Method
	return result, nil
}

func (p *Pipeline) processPDF(ctx context.Context, req Request, ws *workspace.Workspace, result types.ExtractionResult) (types.ExtractionResult, error) {
	pdfPath, err := ws.WriteFile("input.pdf", req.Data)
	if err != nil {
		return types.ExtractionResult{}, err
	}

	// Page-count guard runs before anything O(pageCount) in cost. An
	// undetermined count is not a rejection.
	if pages, err := p.deps.PageCount(pdfPath); err != nil {
		p.log.Warn("page count undetermined, proceeding", "filename", req.Filename, "error", err)
	} else {
		if pages > p.cfg.MaxPDFPages {
			return types.ExtractionResult{}, types.NewValidationError(types.CodeTooManyPages,
				fmt.Sprintf("PDF has %d pages; the limit is %d", pages, p.cfg.MaxPDFPages))
		}
		result.PageCount = pages
	}

	if p.deps.Thumbs != nil {
		if uri, err := p.deps.Thumbs.FromPDF(ctx, pdfPath, ws.Dir()); err != nil {
			p.log.Warn("thumbnail failed", "filename", req.Filename, "error", err)
		} else {
			result.ThumbnailURL = uri
		}
	}

	var best extract.Attempt
	acceptable := false
	if !req.VisionFirst {
		best, acceptable = extract.FirstAcceptable(ctx, p.deps.PDFExtractors, pdfPath, p.cfg.MinContentChars, p.log)
	}

	if !acceptable {
		best = p.visionNative(ctx, req, best, types.MethodGeminiNativePDF)
	}

	// Vision-first requests still get the direct extractors as a fallback
	// when vision comes up short.
	if req.VisionFirst && len(best.Content) < p.cfg.MinContentChars {
		if direct, ok := extract.FirstAcceptable(ctx, p.deps.PDFExtractors, pdfPath, p.cfg.MinContentChars, p.log); ok || len(direct.Content) > len(best.Content) {
			best = direct
		}
	}

	if len(best.Content) < p.cfg.MinContentChars {
		best = p.visionOCRFirstPage(ctx, req, ws, pdfPath, result.PageCount, best)
	}

	if strings.TrimSpace(best.Content) == "" {
		result.Content = pdfFailedPlaceholder
		result.ProcessingMethod = types.MethodAllFailed
		return result, nil
	}

	result.Content = p.postProcess(ctx, best.Content)
	result.ProcessingMethod = best.Method
	return result, nil
}

func (p *Pipeline) processImage(ctx context.Context, req Request, ws *workspace.Workspace, result types.ExtractionResult) (types.ExtractionResult, error) {
	if p.deps.Thumbs != nil {
		if uri, err := p.deps.Thumbs.FromImage(req.Data); err != nil {
			p.log.Warn("thumbnail failed", "filename", req.Filename, "error", err)
		} else {
			result.ThumbnailURL = uri
		}
	}

	data, mimeType := req.Data, strings.ToLower(req.MIMEType)
	if mimeType == "image/heic" || mimeType == "image/heif" {
		converted, err := p.transcodeHEIC(ctx, ws, data)
		if err != nil {
			p.log.Warn("HEIC transcode failed", "filename", req.Filename, "error", err)
		} else {
			data, mimeType = converted, "image/jpeg"
		}
	}

	visionReq := req
	visionReq.Data = data
	visionReq.MIMEType = mimeType

	best := p.visionNative(ctx, visionReq, extract.Attempt{}, types.MethodGeminiImage)
	if len(best.Content) < p.cfg.MinContentChars {
		best = p.visionOCRImage(ctx, visionReq, best)
	}

	if strings.TrimSpace(best.Content) == "" {
		result.Content = imageFailedPlaceholder
		result.ProcessingMethod = types.MethodAllFailed
		return result, nil
	}

	result.Content = p.postProcess(ctx, best.Content)
	result.ProcessingMethod = best.Method
	return result, nil
}

func (p *Pipeline) transcodeHEIC(ctx context.Context, ws *workspace.Workspace, data []byte) ([]byte, error) {
	if p.deps.Transcode == nil {
		return nil, fmt.Errorf("no transcoder configured")
	}
	heicPath, err := ws.WriteFile("input.heic", data)
	if err != nil {
		return nil, err
	}
	return p.deps.Transcode.TranscodeHEIC(ctx, heicPath, ws.Dir())
}

func (p *Pipeline) nativeClient(model string) vision.NativeClient {
	if model != "" && p.deps.SelectNative != nil {
		if c := p.deps.SelectNative(model); c != nil {
			return c
		}
	}
	return p.deps.Native
}

func (p *Pipeline) ocrClient(model string) vision.OCRClient {
	if model != "" && p.deps.SelectOCR != nil {
		if c := p.deps.SelectOCR(model); c != nil {
			return c
		}
	}
	return p.deps.OCR
}

// visionNative submits the whole document inline and keeps the longer of the
// current best and the vision result.
func (p *Pipeline) visionNative(ctx context.Context, req Request, best extract.Attempt, method string) extract.Attempt {
	client := p.nativeClient(req.VisionModel)
	if client == nil {
		p.log.Debug("native vision unavailable, skipping", "filename", req.Filename)
		return best
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	content, err := client.ExtractDocument(callCtx, req.Data, req.MIMEType)
	if err != nil {
		p.log.Warn("native vision extraction failed", "filename", req.Filename, "error", err)
		return best
	}
	if len(content) > len(best.Content) {
		return extract.Attempt{Method: method, Content: content, Succeeded: true}
	}
	return best
}

// visionOCRFirstPage renders page one and submits it for OCR. Multi-page
// documents get an explicit note that only page one was processed.
func (p *Pipeline) visionOCRFirstPage(ctx context.Context, req Request, ws *workspace.Workspace, pdfPath string, pageCount int, best extract.Attempt) extract.Attempt {
	client := p.ocrClient(req.VisionModel)
	if client == nil || p.deps.Render == nil {
		return best
	}

	renderCtx, cancel := p.callContext(ctx)
	img, err := p.deps.Render.FirstPageJPEG(renderCtx, pdfPath, ws.Dir())
	cancel()
	if err != nil {
		p.log.Warn("first-page render failed", "filename", req.Filename, "error", err)
		return best
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	content, err := client.ExtractImage(callCtx, img, "image/jpeg")
	if err != nil {
		p.log.Warn("first-page OCR failed", "filename", req.Filename, "error", err)
		return best
	}

	if pageCount > 1 && content != "" {
		content += fmt.Sprintf("\n\n[Note: only page 1 of %d was processed by image OCR.]", pageCount)
	}
	if len(content) > len(best.Content) {
		return extract.Attempt{Method: types.MethodClaudeFirstPage, Content: content, Succeeded: true}
	}
	return best
}

func (p *Pipeline) visionOCRImage(ctx context.Context, req Request, best extract.Attempt) extract.Attempt {
	client := p.ocrClient(req.VisionModel)
	if client == nil {
		return best
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	content, err := client.ExtractImage(callCtx, req.Data, req.MIMEType)
	if err != nil {
		p.log.Warn("image OCR failed", "filename", req.Filename, "error", err)
		return best
	}
	if len(content) > len(best.Content) {
		return extract.Attempt{Method: types.MethodClaudeImage, Content: content, Succeeded: true}
	}
	return best
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.VisionCallTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.VisionCallTimeout)
	}
	return context.WithCancel(ctx)
}

// postProcess cleans extracted text. The optional LLM pass races a wall-clock
// timeout; on timeout, error, or over-aggressive shrink it loses to the local
// cleaner.
func (p *Pipeline) postProcess(ctx context.Context, raw string) string {
	local := cleantext.Clean(raw, cleantext.Options{ShrinkRatio: p.cfg.CleanShrinkRatio})

	if !p.cfg.EnableLLMCleanup || p.deps.Cleaner == nil {
		return local
	}

	timeout := p.cfg.LLMCleanupTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cleanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		text, err := p.deps.Cleaner.GenerateText(cleanCtx, cleanupSystem, raw)
		ch <- outcome{text, err}
	}()

	select {
	case <-cleanCtx.Done():
		p.log.Warn("LLM cleanup timed out, using local cleaner")
		return local
	case out := <-ch:
		if out.err != nil {
			p.log.Warn("LLM cleanup failed, using local cleaner", "error", out.err)
			return local
		}
		if float64(len(out.text)) < p.cfg.CleanShrinkRatio*float64(len(local)) {
			p.log.Warn("LLM cleanup shrank content too far, using local cleaner",
				"llm_chars", len(out.text), "local_chars", len(local))
			return local
		}
		return strings.TrimSpace(out.text)
	}
}
