// Package api exposes the scrape and chat operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealtalk/dealtalk/internal/ai"
	"github.com/dealtalk/dealtalk/internal/scraper"
	"github.com/dealtalk/dealtalk/internal/types"
)

// ThreadScraper runs a scrape for one thread URL.
type ThreadScraper interface {
	Scrape(ctx context.Context, rawURL string, maxPages int, forceRefresh bool) (*scraper.Result, error)
}

// ThreadStore is the slice of the store the API serves directly.
type ThreadStore interface {
	Load(threadID string) (*types.ThreadRecord, error)
	List() ([]types.ThreadInfo, error)
	Delete(filenames []string) (deleted []string, errs []string)
	DeleteAll() (int, error)
}

// Chatter answers a question about a stored record.
type Chatter interface {
	Chat(ctx context.Context, record *types.ThreadRecord, message string, history []ai.Message, useSummary bool) (string, error)
}

// Server wires the HTTP surface: the embedded frontend plus the JSON API.
type Server struct {
	mux             *http.ServeMux
	addr            string
	defaultMaxPages int
	scraper         ThreadScraper
	store           ThreadStore
	chat            Chatter
	logger          *slog.Logger
}

// NewServer creates the API server.
func NewServer(addr string, defaultMaxPages int, sc ThreadScraper, st ThreadStore, chat Chatter, logger *slog.Logger) *Server {
	s := &Server{
		mux:             http.NewServeMux(),
		addr:            addr,
		defaultMaxPages: defaultMaxPages,
		scraper:         sc,
		store:           st,
		chat:            chat,
		logger:          logger.With("component", "api_server"),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routing handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe runs the server until ctx is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/scrape", s.handleScrape)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/threads", s.handleListThreads)
	s.mux.HandleFunc("POST /api/threads/delete", s.handleDeleteThreads)
	s.mux.HandleFunc("POST /api/threads/delete_all", s.handleDeleteAllThreads)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scrapeRequest struct {
	URL          string `json:"url"`
	MaxPages     int    `json:"max_pages"`
	ForceRefresh bool   `json:"force_refresh"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if body.URL == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "url is required")
		return
	}
	if body.MaxPages < 1 {
		body.MaxPages = s.defaultMaxPages
	}

	result, err := s.scraper.Scrape(r.Context(), body.URL, body.MaxPages, body.ForceRefresh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

type chatRequest struct {
	ThreadID   string       `json:"thread_id"`
	Message    string       `json:"message"`
	History    []ai.Message `json:"history"`
	UseSummary bool         `json:"use_summary"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if body.ThreadID == "" || body.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "thread_id and message are required")
		return
	}

	// The frontend lists records by filename; accept both forms.
	threadID := strings.TrimSuffix(body.ThreadID, ".json")

	record, err := s.store.Load(threadID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	answer, err := s.chat.Chat(r.Context(), record, body.Message, body.History, body.UseSummary)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"response": answer})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, infos)
}

func (s *Server) handleDeleteThreads(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filenames []string `json:"filenames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}

	deleted, errs := s.store.Delete(body.Filenames)
	if deleted == nil {
		deleted = []string{}
	}
	if errs == nil {
		errs = []string{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"errors":  errs,
	})
}

func (s *Server) handleDeleteAllThreads(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.DeleteAll()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"deleted": count})
}

// writeError maps the error taxonomy onto status codes and kinds. Every
// failure leaves as a structured {error, kind} body; there is no ambiguous
// empty success.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		fetchErr    *types.FetchError
		parseErr    *types.ParseError
		storageErr  *types.StorageError
		upstreamErr *types.UpstreamError
	)

	switch {
	case errors.Is(err, types.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "not_found", "no scraped data for thread")
	case errors.As(err, &fetchErr):
		s.errorResponse(w, http.StatusBadGateway, "network_error", fetchErr.Error())
	case errors.As(err, &parseErr):
		s.errorResponse(w, http.StatusBadGateway, "parse_error", parseErr.Error())
	case errors.As(err, &upstreamErr):
		s.errorResponse(w, http.StatusBadGateway, "upstream_error", upstreamErr.Error())
	case errors.As(err, &storageErr):
		s.errorResponse(w, http.StatusInternalServerError, "storage_error", storageErr.Error())
	default:
		s.logger.Error("unclassified error", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, kind, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
		"kind":  kind,
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
