package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/sourcelens/ingestion-service/internal/analysis"
	"github.com/sourcelens/ingestion-service/internal/config"
	"github.com/sourcelens/ingestion-service/internal/extract"
	"github.com/sourcelens/ingestion-service/internal/library"
	"github.com/sourcelens/ingestion-service/internal/pdfinfo"
	"github.com/sourcelens/ingestion-service/internal/pipeline"
	"github.com/sourcelens/ingestion-service/internal/render"
	"github.com/sourcelens/ingestion-service/internal/server"
	"github.com/sourcelens/ingestion-service/internal/thumbnail"
	"github.com/sourcelens/ingestion-service/internal/vision"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// Vision clients are optional: a missing key disables that tier and the
	// pipeline degrades to whatever remains.
	var gemini *vision.GeminiClient
	if cfg.GeminiAPIKey != "" {
		c, err := vision.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("gemini client: %w", err)
		}
		gemini = c
	} else {
		log.Warn("GEMINI_API_KEY not set; native vision extraction disabled")
	}

	var claude *vision.ClaudeClient
	if cfg.AnthropicAPIKey != "" {
		c, err := vision.NewClaudeClient(cfg.AnthropicAPIKey, cfg.ClaudeModel)
		if err != nil {
			return fmt.Errorf("claude client: %w", err)
		}
		claude = c
	} else {
		log.Warn("ANTHROPIC_API_KEY not set; image OCR extraction disabled")
	}

	deps := pipeline.Deps{
		Config: cfg,
		Logger: log,
		PDFExtractors: []extract.Extractor{
			extract.PDFToText{Timeout: cfg.PDFToTextTimeout},
			extract.PDFParse{},
		},
		PageCount: pdfinfo.PageCount,
		Render:    render.Renderer{Timeout: cfg.RenderTimeout},
		Transcode: render.Renderer{Timeout: cfg.TranscodeTimeout},
		Thumbs:    thumbnail.Generator{MaxDim: cfg.ThumbnailMaxDim, Timeout: cfg.RenderTimeout},
	}
	if gemini != nil {
		deps.Native = gemini
		deps.SelectNative = func(model string) vision.NativeClient { return gemini.ForModel(model) }
		if cfg.EnableLLMCleanup {
			deps.Cleaner = gemini
		}
	}
	if claude != nil {
		deps.OCR = claude
		deps.SelectOCR = func(model string) vision.OCRClient { return claude.ForModel(model) }
	}

	pipe, err := pipeline.New(deps)
	if err != nil {
		return err
	}

	var lib *library.Store
	if cfg.LibraryDBPath != "" {
		lib, err = library.Open(cfg.LibraryDBPath)
		if err != nil {
			return fmt.Errorf("library: %w", err)
		}
		defer lib.Close()
	}

	var providers []analysis.Provider
	if gemini != nil {
		providers = append(providers, analysis.Provider{Name: "gemini", Gen: gemini})
	}
	if claude != nil {
		providers = append(providers, analysis.Provider{Name: "claude", Gen: claude})
	}
	analyzer := analysis.NewService(log, providers...)

	srv := server.New(cfg, log, pipe, lib, analyzer)
	srv.StartLimiterCleanup()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	log.Info("sourcelens ingestion service listening",
		"addr", httpSrv.Addr,
		"maxConcurrent", cfg.MaxConcurrentRequests,
		"maxVision", cfg.MaxVisionConcurrent,
	)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
