package types

// Processing method identifiers, reported to the caller so the UI can show
// how the content was obtained.
const (
	MethodPDFToText       = "pdftotext"
	MethodPDFParse        = "pdfparse"
	MethodGeminiNativePDF = "gemini-native-pdf"
	MethodGeminiImage     = "gemini-vision-image"
	MethodClaudeFirstPage = "claude-vision-first-page"
	MethodClaudeImage     = "claude-vision-image"
	MethodDirectText      = "direct-text"
	MethodAllFailed       = "all-methods-failed"
)

// ExtractionResult is the terminal output of the ingestion pipeline. It is
// owned by the HTTP response and never retained server-side.
type ExtractionResult struct {
	Content          string `json:"content"`
	Filename         string `json:"filename"`
	Type             string `json:"type"`
	ProcessingMethod string `json:"processingMethod"`
	PageCount        int    `json:"pageCount,omitempty"`
	FileSize         int64  `json:"fileSize"`
	ThumbnailURL     string `json:"thumbnailUrl,omitempty"`
}

// Validation error codes surfaced in 400 responses.
const (
	CodeTooManyPages    = "TOO_MANY_PAGES"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
)

// ValidationError is fatal to a request: returned as 400 immediately, no
// fallback attempted. Extraction-quality shortfalls are never validation
// errors; they are absorbed and reported via ProcessingMethod.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}
