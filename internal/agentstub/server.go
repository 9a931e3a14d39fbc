// Package agentstub is a local stand-in for the Percy agent. It speaks the
// same HTTP API as the real agent, stores what it receives in SQLite and
// answers with a small summary, so the SDK can be exercised offline.
package agentstub

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/percy-chromedp/logging"
)

//go:embed dom.js
var domJS []byte

// Server is the stub agent's HTTP surface.
type Server struct {
	cfg    Config
	router chi.Router
	store  *Store
	logger logging.Logger

	mu   sync.Mutex
	mode Mode
	hits map[string]int
}

// New creates a stub agent with its own snapshot store.
func New(cfg Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewStdoutLogger("agentstub")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeWeb
	}
	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  store,
		logger: logger.With(logging.F("component", "agentstub")),
		mode:   cfg.Mode,
		hits:   map[string]int{},
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.countHits)

	r.Get("/percy/healthcheck", s.handleHealthcheck)
	r.Get("/percy/dom.js", s.handleDOMScript)
	r.Post("/percy/snapshot", s.handleSnapshot)
	r.Post("/percy/automateScreenshot", s.handleAutomateScreenshot)

	r.Get("/stub/snapshots", s.handleListSnapshots)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("http_request",
		logging.F("method", r.Method),
		logging.F("path", r.URL.Path))
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on cfg.ListenAddr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("stub agent listening",
			logging.F("addr", s.cfg.ListenAddr),
			logging.F("mode", string(s.Mode())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close releases the snapshot store.
func (s *Server) Close() error {
	return s.store.Close()
}

// Store exposes the snapshot store.
func (s *Server) Store() *Store {
	return s.store
}

// Snapshots lists everything received so far, oldest first.
func (s *Server) Snapshots(ctx context.Context) ([]*Snapshot, error) {
	return s.store.List(ctx)
}

// Mode returns the advertised build type.
func (s *Server) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the advertised build type.
func (s *Server) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Hits returns how many requests path has received.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// --- HTTP handlers ---

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CoreVersion != "" {
		w.Header().Set("x-percy-core-version", s.cfg.CoreVersion)
	}
	mode := s.Mode()
	if mode == ModeDisabled {
		writeFailure(w, http.StatusOK, "build is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "type": string(mode)})
}

func (s *Server) handleDOMScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = w.Write(domJS)
}

// SnapshotRequest is the body of POST /percy/snapshot.
type SnapshotRequest struct {
	Name            string          `json:"name"`
	URL             string          `json:"url"`
	DOMSnapshot     json.RawMessage `json:"dom_snapshot"`
	ClientInfo      string          `json:"client_info"`
	EnvironmentInfo []string        `json:"environment_info"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var req SnapshotRequest
	if err := remarshal(raw, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.URL == "" {
		writeFailure(w, http.StatusBadRequest, "name and url are required")
		return
	}
	html, err := domHTML(req.DOMSnapshot)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := summarize(html)
	if err != nil {
		writeFailure(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx := r.Context()
	prev, err := s.store.Latest(ctx, KindWeb, req.Name)
	if err != nil {
		s.logger.Error("load previous snapshot", logging.Err(err))
		writeFailure(w, http.StatusInternalServerError, "storage error")
		return
	}
	var cmp Comparison
	if prev != nil {
		cmp = compare(prev.ID, prev.HTML, html)
	}

	snap := &Snapshot{
		Kind:            KindWeb,
		Name:            req.Name,
		URL:             req.URL,
		HTML:            html,
		Options:         extraOptions(raw),
		ClientInfo:      req.ClientInfo,
		EnvironmentInfo: req.EnvironmentInfo,
	}
	if err := s.store.Insert(ctx, snap); err != nil {
		s.logger.Error("store snapshot", logging.Err(err))
		writeFailure(w, http.StatusInternalServerError, "storage error")
		return
	}

	s.logger.Info("snapshot received",
		logging.F("name", snap.Name),
		logging.F("url", snap.URL),
		logging.F("changed", cmp.Changed))

	writeData(w, map[string]any{
		"id":          snap.ID,
		"name":        snap.Name,
		"url":         snap.URL,
		"title":       summary.Title,
		"elements":    summary.Elements,
		"previous_id": cmp.PreviousID,
		"changed":     cmp.Changed,
		"added":       cmp.Added,
		"removed":     cmp.Removed,
	})
}

// AutomateRequest is the body of POST /percy/automateScreenshot.
type AutomateRequest struct {
	SessionID       string          `json:"sessionId"`
	PageGUID        string          `json:"pageGuid"`
	FrameGUID       string          `json:"frameGuid"`
	Framework       string          `json:"framework"`
	SnapshotName    string          `json:"snapshotName"`
	Options         json.RawMessage `json:"options"`
	ClientInfo      string          `json:"client_info"`
	EnvironmentInfo []string        `json:"environment_info"`
}

func (s *Server) handleAutomateScreenshot(w http.ResponseWriter, r *http.Request) {
	if s.Mode() != ModeAutomate {
		writeFailure(w, http.StatusBadRequest, "build is not an automate build")
		return
	}

	var req AutomateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.PageGUID == "" || strings.TrimSpace(req.SnapshotName) == "" {
		writeFailure(w, http.StatusBadRequest, "sessionId, pageGuid and snapshotName are required")
		return
	}

	snap := &Snapshot{
		Kind:            KindAutomate,
		Name:            req.SnapshotName,
		SessionID:       req.SessionID,
		PageGUID:        req.PageGUID,
		FrameGUID:       req.FrameGUID,
		Framework:       req.Framework,
		Options:         req.Options,
		ClientInfo:      req.ClientInfo,
		EnvironmentInfo: req.EnvironmentInfo,
	}
	if err := s.store.Insert(r.Context(), snap); err != nil {
		s.logger.Error("store screenshot", logging.Err(err))
		writeFailure(w, http.StatusInternalServerError, "storage error")
		return
	}

	s.logger.Info("automate screenshot received",
		logging.F("name", snap.Name),
		logging.F("session", snap.SessionID))

	writeData(w, map[string]any{
		"id":        snap.ID,
		"name":      snap.Name,
		"sessionId": snap.SessionID,
	})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.List(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snaps == nil {
		snaps = []*Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// domHTML accepts a DOM snapshot as a bare HTML string or as a serialized
// object carrying an html field.
func domHTML(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("dom_snapshot is required")
	}
	var html string
	if err := json.Unmarshal(raw, &html); err == nil {
		return html, nil
	}
	var obj struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("dom_snapshot: %w", err)
	}
	if obj.HTML == "" {
		return "", errors.New("dom_snapshot has no html")
	}
	return obj.HTML, nil
}

var reservedSnapshotKeys = map[string]bool{
	"name": true, "url": true, "dom_snapshot": true,
	"client_info": true, "environment_info": true,
}

// extraOptions collects the top-level keys that are snapshot options.
func extraOptions(raw map[string]json.RawMessage) json.RawMessage {
	opts := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !reservedSnapshotKeys[k] {
			opts[k] = v
		}
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
