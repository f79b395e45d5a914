package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eliaszeru/Excel-splitter/dataset"
	"github.com/eliaszeru/Excel-splitter/history"
	"github.com/eliaszeru/Excel-splitter/internal/logger"
	"github.com/eliaszeru/Excel-splitter/output"
	"github.com/eliaszeru/Excel-splitter/rules"
	"github.com/eliaszeru/Excel-splitter/session"
	"github.com/eliaszeru/Excel-splitter/split"
)

// maxRequestBody caps JSON request bodies
const maxRequestBody = 10 << 20

// multipartOverhead allows for form boundaries and headers around the file
const multipartOverhead = 1 << 20

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Sessions: s.sessions.Len(),
	}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "connected"
	}

	respondJSON(w, http.StatusOK, resp)
}

// Metrics handler
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Snapshot())
}

// Upload handler: stores the file, loads it and opens a session for it
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage(), nil)
		case errors.Is(err, http.ErrMissingFile):
			respondError(w, http.StatusBadRequest, "no file uploaded", nil)
		default:
			respondError(w, http.StatusBadRequest, "invalid upload", err)
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "no file selected", nil)
		return
	}

	name := uploadName(header.Filename)
	if _, err := dataset.LoaderFor(name); err != nil {
		respondError(w, http.StatusBadRequest, "invalid file type, please upload .xlsx or .csv files (legacy .xls workbooks are not supported)", err)
		return
	}

	if header.Size > s.config.MaxFileSize {
		respondError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage(), nil)
		return
	}

	id := uuid.NewString()
	path := filepath.Join(s.config.UploadFolder, id+"_"+name)
	if err := saveUpload(path, file, s.config.MaxFileSize); err != nil {
		if errors.Is(err, errUploadTooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to store upload", err)
		return
	}

	ds, err := dataset.OpenAs(r.Context(), path, name)
	if err != nil {
		_ = os.Remove(path)
		respondError(w, http.StatusBadRequest, "error reading file", err)
		return
	}

	sess, err := s.sessions.Create(id, ds, path)
	if err != nil {
		_ = os.Remove(path)
		respondError(w, http.StatusInternalServerError, "failed to create session", err)
		return
	}

	logger.Info("Dataset uploaded", "session_id", sess.ID, "file", name, "rows", ds.Len(), "columns", len(ds.Columns()))

	summary := ds.Summary(dataset.DefaultSummaryLimit)
	respondJSON(w, http.StatusOK, UploadResponse{
		Success:      true,
		SessionID:    sess.ID,
		Columns:      summary.Columns,
		ColumnValues: summary.ColumnValues,
		TotalRows:    summary.TotalRows,
	})
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("file too large, maximum size is %dMB", s.config.MaxFileSize>>20)
}

// uploadName makes a client file name safe to store. A name that sanitizes to
// nothing keeps only its extension.
func uploadName(filename string) string {
	// Browsers on Windows may send the full client path
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	name := rules.Sanitize(filename)
	if name == "" || strings.HasPrefix(name, ".") {
		name = "upload" + strings.ToLower(filepath.Ext(filename))
	}
	return name
}

var errUploadTooLarge = errors.New("upload too large")

// saveUpload copies at most limit bytes of r to path
func saveUpload(path string, r io.Reader, limit int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = errUploadTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// Process handler: runs the rules against the session's dataset
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if len(req.Rules) == 0 {
		respondError(w, http.StatusBadRequest, split.ErrNoRulesProvided.Error(), nil)
		return
	}

	rs := rules.FromDescriptors(req.Rules)
	if err := rules.ValidateBatch(rs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rules", err)
		return
	}

	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "no file uploaded or session expired", err)
		return
	}

	// Outputs live under the session so same-named files of other sessions
	// are never replaced or served
	writer, err := s.writer.Scope(sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to prepare output", err)
		return
	}

	started := time.Now()
	manifest, err := s.orchestrator.WithWriter(writer).Run(r.Context(), sess.Dataset, rs)
	if errors.Is(err, split.ErrNoRulesProvided) {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if manifest == nil {
		respondError(w, http.StatusInternalServerError, "split failed", err)
		return
	}

	s.recordRun(sess, len(rs), manifest, started)

	resp := manifest.Response()
	if err != nil {
		// Cancelled or timed out: report what was produced
		resp.Success = false
		respondJSON(w, http.StatusServiceUnavailable, resp)
		logger.ErrorHttp5xx()
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// recordRun stores a run summary. Failures are logged; they never fail the request.
func (s *Server) recordRun(sess *session.Session, ruleCount int, manifest *split.Manifest, started time.Time) {
	resp := manifest.Response()

	run := &history.Run{
		ID:           uuid.NewString(),
		SessionID:    sess.ID,
		Source:       sess.Dataset.Name(),
		RuleCount:    ruleCount,
		TotalFiles:   resp.TotalFiles,
		RulesSkipped: resp.RulesSkipped,
		RulesFailed:  resp.RulesFailed,
		Partial:      resp.Partial,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	for _, f := range resp.Files {
		run.Files = append(run.Files, history.File{Name: f.Name, Rows: f.Rows, Reference: string(f.Reference)})
	}
	for _, f := range resp.Failures {
		run.Failures = append(run.Failures, history.Failure{Index: f.RuleIndex, Name: f.Name, Error: f.Error})
	}

	// The request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Add(ctx, run); err != nil {
		logger.Error("Failed to record run", "session_id", sess.ID, "error", err)
	}
}

// Download handler
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID, err := url.PathUnescape(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id", err)
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid file name", err)
		return
	}

	writer, err := s.writer.Scope(sessionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id", err)
		return
	}
	path, err := writer.Path(name)
	if errors.Is(err, output.ErrPathInvalid) {
		respondError(w, http.StatusBadRequest, "invalid file name", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusNotFound, "file not found", nil)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", contentType(name))
	http.ServeFile(w, r, path)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Cleanup handler: drops the session and its stored upload
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil && err != io.EOF {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	removed := false
	if req.SessionID != "" {
		sess, err := s.sessions.Delete(req.SessionID)
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusInternalServerError, "failed to clean up", err)
			return
		}
		if sess != nil {
			s.removeSessionFiles(*sess)
			removed = true
		}
	}

	respondJSON(w, http.StatusOK, CleanupResponse{Success: true, Removed: removed})
}

// List runs handler
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	runs, err := s.runs.ListBySession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}

	respondJSON(w, http.StatusOK, RunsResponse{SessionID: sessionID, Runs: runs})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
		logger.Error("Request failed", "status", status, "error", message, "details", err)
	case status >= 400:
		logger.WarnHttp4xx(status)
	}

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
