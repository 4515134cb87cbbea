// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package webview serves the reconciled checklist over HTTP: a refreshing
// HTML page, a JSON API, a WebSocket feed and Prometheus metrics.
package webview

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

//go:embed templates/checklist.html
var templateFS embed.FS

// Title is the page heading.
const Title = "Тестирование R3-МС-КП"

// Config holds configuration for the HTTP server.
type Config struct {
	Listen   string
	Username string
	Password string
	Version  string
	// Refresh is the page auto-refresh period in seconds.
	Refresh int
}

// Server serves a Board.
type Server struct {
	cfg      Config
	board    *r3status.Board
	metrics  http.Handler
	logger   *slog.Logger
	mux      *http.ServeMux
	page     *template.Template
	upgrader websocket.Upgrader
}

// New creates a server. metrics may be nil.
func New(cfg Config, board *r3status.Board, metrics http.Handler, logger *slog.Logger) (*Server, error) {
	if board == nil {
		return nil, errors.New("webview: board required")
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	page, err := template.ParseFS(templateFS, "templates/checklist.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		board:   board,
		metrics: metrics,
		logger:  logger.With("component", "webview"),
		mux:     http.NewServeMux(),
		page:    page,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.Handle("/api/v1/checklist", s.requireAuth(http.HandlerFunc(s.handleChecklist)))
	s.mux.Handle("/ws", s.requireAuth(http.HandlerFunc(s.handleWebSocket)))
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.requireAuth(s.metrics))
	}
	s.mux.Handle("/", s.requireAuth(http.HandlerFunc(s.handleIndex)))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web server shutdown: %w", err)
		}
		return nil
	}
}

// requireAuth enforces HTTP Basic auth when a username is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.cfg.Username == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="panelstat"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	version := s.cfg.Version
	if version == "" {
		version = "dev"
	}
	summary := s.board.Summary()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    version,
		"cycle":      summary.Cycle,
		"updated_at": summary.UpdatedAt,
	})
}

// checklistResponse is the JSON form of a snapshot with rows grouped by
// section.
type checklistResponse struct {
	Summary  r3status.Summary       `json:"summary"`
	Mode     r3status.MatchMode     `json:"match_mode"`
	Sections []r3status.SectionRows `json:"sections"`
	Readings []r3status.Reading     `json:"readings"`
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.board.Snapshot()
	writeJSON(w, http.StatusOK, checklistResponse{
		Summary:  snap.Summary,
		Mode:     snap.Mode,
		Sections: snap.Sections(),
		Readings: snap.Readings,
	})
}

type pageData struct {
	Title    string
	Refresh  int
	Updated  string
	Summary  r3status.Summary
	Sections []r3status.SectionRows
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.board.Snapshot()
	updated := "нет данных"
	if !snap.Summary.UpdatedAt.IsZero() {
		updated = snap.Summary.UpdatedAt.Format("2006-01-02 15:04:05")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.page.Execute(w, pageData{
		Title:    Title,
		Refresh:  s.cfg.Refresh,
		Updated:  updated,
		Summary:  snap.Summary,
		Sections: snap.Sections(),
	})
	if err != nil {
		s.logger.Error("render page", "error", err)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
