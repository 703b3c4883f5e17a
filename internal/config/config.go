package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string

	// Provider credentials
	GeminiAPIKey    string
	AnthropicAPIKey string

	// Default models
	GeminiModel string
	ClaudeModel string

	// Upload limits. These are product-level contracts: PDFs up to 20MB and
	// 400 pages, images and plain text up to 10MB.
	MaxPDFBytes   int64
	MaxImageBytes int64
	MaxTextBytes  int64
	MaxPDFPages   int

	// Extraction heuristics. Empirically tuned, kept configurable.
	MinContentChars  int
	CleanShrinkRatio float64

	// Concurrency
	MaxConcurrentRequests int64
	MaxVisionConcurrent   int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Request timeouts
	UploadTimeout  time.Duration
	AnalyzeTimeout time.Duration

	// External-call timeouts. Every subprocess and network round-trip gets a
	// bound; unbounded calls are the largest availability risk here.
	VisionCallTimeout time.Duration
	LLMCleanupTimeout time.Duration
	PDFToTextTimeout  time.Duration
	RenderTimeout     time.Duration
	TranscodeTimeout  time.Duration

	// Rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// Housekeeping
	CleanupInterval    time.Duration
	HealthDegradeRatio float64

	// Thumbnails
	ThumbnailMaxDim int

	// LLM-assisted cleanup of OCR output. Off by default; when enabled the
	// call races a wall-clock timeout and loses to the local cleaner.
	EnableLLMCleanup bool

	// Paths
	TempDir       string
	LibraryDBPath string
}

func Load() Config {
	return Config{
		Port: envStr("PORT", "8080"),

		GeminiAPIKey:    envStr("GEMINI_API_KEY", ""),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),

		GeminiModel: envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		ClaudeModel: envStr("CLAUDE_MODEL", "claude-3-7-sonnet-latest"),

		MaxPDFBytes:   int64(envInt("MAX_PDF_BYTES", 20<<20)),
		MaxImageBytes: int64(envInt("MAX_IMAGE_BYTES", 10<<20)),
		MaxTextBytes:  int64(envInt("MAX_TEXT_BYTES", 10<<20)),
		MaxPDFPages:   envInt("MAX_PDF_PAGES", 400),

		MinContentChars:  envInt("MIN_CONTENT_CHARS", 500),
		CleanShrinkRatio: envFloat("CLEAN_SHRINK_RATIO", 0.5),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 15)),
		MaxVisionConcurrent:   int64(envInt("MAX_VISION_CONCURRENT", 3)),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    envInt("MAX_HEADER_BYTES", 1<<20),

		UploadTimeout:  envDur("UPLOAD_TIMEOUT", 160*time.Second),
		AnalyzeTimeout: envDur("ANALYZE_TIMEOUT", 90*time.Second),

		VisionCallTimeout: envDur("VISION_CALL_TIMEOUT", 60*time.Second),
		LLMCleanupTimeout: envDur("LLM_CLEANUP_TIMEOUT", 60*time.Second),
		PDFToTextTimeout:  envDur("PDFTOTEXT_TIMEOUT", 30*time.Second),
		RenderTimeout:     envDur("RENDER_TIMEOUT", 30*time.Second),
		TranscodeTimeout:  envDur("TRANSCODE_TIMEOUT", 30*time.Second),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval:    envDur("CLEANUP_INTERVAL", 5*time.Minute),
		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		ThumbnailMaxDim: envInt("THUMBNAIL_MAX_DIM", 256),

		EnableLLMCleanup: envBool("ENABLE_LLM_CLEANUP", false),

		TempDir:       envStr("TEMP_DIR", os.TempDir()),
		LibraryDBPath: envStr("LIBRARY_DB_PATH", "sourcelens.db"),
	}
}

func (c Config) Validate() error {
	if c.MaxPDFPages <= 0 {
		return fmt.Errorf("MAX_PDF_PAGES must be positive")
	}
	if c.CleanShrinkRatio <= 0 || c.CleanShrinkRatio >= 1 {
		return fmt.Errorf("CLEAN_SHRINK_RATIO must be in (0, 1)")
	}
	if c.MaxPDFBytes <= 0 || c.MaxImageBytes <= 0 || c.MaxTextBytes <= 0 {
		return fmt.Errorf("upload size limits must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
