package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/eliaszeru/Excel-splitter/history"
	"github.com/eliaszeru/Excel-splitter/internal/logger"
	"github.com/eliaszeru/Excel-splitter/output"
	"github.com/eliaszeru/Excel-splitter/rules"
	"github.com/eliaszeru/Excel-splitter/session"
	"github.com/eliaszeru/Excel-splitter/split"
)

// downloadPrefix is the route generated files are served from
const downloadPrefix = "/api/v1/download/"

type Server struct {
	config       Config
	db           *sql.DB
	sessions     *session.InMemoryStore
	runs         history.RunStore
	writer       *output.FS
	orchestrator *split.Orchestrator
	router       *chi.Mux
}

// NewServer wires the server. db may be nil, in which case run history is
// kept in memory.
func NewServer(cfg Config, db *sql.DB) (*Server, error) {
	for _, dir := range []string{cfg.UploadFolder, cfg.OutputFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	writer, err := output.New(&output.Options{
		OutputDir: cfg.OutputFolder,
		URLPrefix: downloadPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create output writer: %w", err)
	}

	engine, err := rules.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	var runs history.RunStore = history.NewInMemoryRunStore()
	if db != nil {
		runs = history.NewPostgresRunStore(db)
	}

	s := &Server{
		config: cfg,
		db:     db,
		runs:   runs,
		writer: writer,
		orchestrator: split.New(engine, rules.NewSynthesizer(), writer, split.Config{
			Workers:   cfg.SplitWorkers,
			Collision: cfg.Collision,
		}),
	}
	s.sessions = session.NewInMemoryStore(session.Config{
		TTL:     cfg.SessionTTL,
		OnEvict: s.removeSessionFiles,
	})

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/upload", s.handleUpload)
		r.Post("/process", s.handleProcess)
		r.Post("/cleanup", s.handleCleanup)
		r.Get("/download/{sessionId}/{filename}", s.handleDownload)

		r.Get("/sessions/{sessionId}/runs", s.handleListRuns)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// removeSessionFiles deletes a session's stored upload and its outputs
func (s *Server) removeSessionFiles(sess session.Session) {
	if sess.UploadPath != "" {
		if err := os.Remove(sess.UploadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove upload", "session_id", sess.ID, "path", sess.UploadPath, "error", err)
		}
	}

	outputs, err := s.writer.Scope(sess.ID)
	if err == nil {
		err = outputs.RemoveAll()
	}
	if err != nil {
		logger.Warn("Failed to remove outputs", "session_id", sess.ID, "error", err)
		return
	}
	logger.Debug("Removed session files", "session_id", sess.ID)
}

func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = openDatabase(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()
		logger.Info("Run history stored in Postgres")
	} else {
		logger.Info("DATABASE_URL not set, run history kept in memory")
	}

	server, err := NewServer(cfg, db)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go server.sessions.RunJanitor(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "upload_folder", cfg.UploadFolder, "output_folder", cfg.OutputFolder)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
