package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sourcelens/ingestion-service/internal/library"
	"github.com/sourcelens/ingestion-service/internal/pipeline"
	"github.com/sourcelens/ingestion-service/internal/types"
)

// multipartOverhead covers form boundaries and the non-file fields on top of
// the largest allowed document.
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}
	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": "1.0.0",
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBody := s.cfg.MaxPDFBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("request body exceeds the %dMB upload limit", maxBody>>20),
				types.CodeFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "file field is required", "bad_request")
		return
	}
	defer file.Close()

	// Read one byte past the largest per-type limit so oversized files are
	// rejected by the pipeline with the right code instead of truncated.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxPDFBytes+1))
	if err != nil {
		s.log.Error("read upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read upload", "internal_error")
		return
	}

	req := pipeline.Request{
		Data:        data,
		Filename:    filepath.Base(header.Filename),
		MIMEType:    uploadMIMEType(header.Filename, header.Header.Get("Content-Type"), data),
		VisionFirst: strings.EqualFold(r.FormValue("useAIVision"), "true"),
		VisionModel: strings.TrimSpace(r.FormValue("visionModel")),
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.UploadTimeout)
	defer cancel()

	// Vision capacity gating: text uploads never reach a vision tier.
	if req.MIMEType != "" && !strings.HasPrefix(req.MIMEType, "text/") {
		if err := s.visionSem.Acquire(ctx, 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, "vision extraction at capacity", "vision_capacity")
			return
		}
		defer s.visionSem.Release(1)
	}

	result, err := s.pipe.Process(ctx, req)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message, verr.Code)
			return
		}
		s.log.Error("upload processing failed", "filename", req.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, sanitizeError(err), "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// uploadMIMEType resolves the document type from, in order: the part's
// declared content type, the filename extension, and content sniffing.
func uploadMIMEType(filename, declared string, data []byte) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if i := strings.Index(declared, ";"); i > 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if i := strings.Index(byExt, ";"); i > 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return http.DetectContentType(data)
}

type analyzeRequest struct {
	Content  string `json:"content"`
	SourceID string `json:"sourceId"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil || !s.analyzer.Available() {
		writeError(w, http.StatusServiceUnavailable, "no analysis providers configured", "analysis_unavailable")
		return
	}

	req, err := parseJSON[analyzeRequest](r, 12<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" && req.SourceID != "" && s.lib != nil {
		src, err := s.lib.Get(r.Context(), req.SourceID)
		if errors.Is(err, library.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found", "not_found")
			return
		}
		if err != nil {
			s.log.Error("library lookup failed", "id", req.SourceID, "error", err)
			writeError(w, http.StatusInternalServerError, "library lookup failed", "internal_error")
			return
		}
		content = src.Content
	}
	if content == "" {
		writeError(w, http.StatusBadRequest, "content or sourceId is required", "bad_request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AnalyzeTimeout)
	defer cancel()

	res, err := s.analyzer.Analyze(ctx, content)
	if err != nil {
		s.log.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, sanitizeError(err), "analysis_failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) requireLibrary(w http.ResponseWriter) bool {
	if s.lib == nil {
		writeError(w, http.StatusServiceUnavailable, "source library is disabled", "library_disabled")
		return false
	}
	return true
}

func (s *Server) handleLibrarySave(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}

	res, err := parseJSON[types.ExtractionResult](r, 32<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}
	if strings.TrimSpace(res.Filename) == "" || res.Content == "" {
		writeError(w, http.StatusBadRequest, "filename and content are required", "bad_request")
		return
	}

	src, err := s.lib.Save(r.Context(), res)
	if err != nil {
		s.log.Error("library save failed", "filename", res.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save source", "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}

	all, err := s.lib.List(r.Context())
	if err != nil {
		s.log.Error("library list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources", "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": all})
}

func (s *Server) handleLibraryGet(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}

	id := chi.URLParam(r, "id")
	src, err := s.lib.Get(r.Context(), id)
	if errors.Is(err, library.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found", "not_found")
		return
	}
	if err != nil {
		s.log.Error("library get failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load source", "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleLibraryDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}

	id := chi.URLParam(r, "id")
	err := s.lib.Delete(r.Context(), id)
	if errors.Is(err, library.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found", "not_found")
		return
	}
	if err != nil {
		s.log.Error("library delete failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete source", "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
