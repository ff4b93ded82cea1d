package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dealtalk/dealtalk/internal/ai"
	"github.com/dealtalk/dealtalk/internal/scraper"
	"github.com/dealtalk/dealtalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type stubScraper struct {
	result   *scraper.Result
	err      error
	gotURL   string
	gotPages int
	gotForce bool
}

func (s *stubScraper) Scrape(ctx context.Context, rawURL string, maxPages int, forceRefresh bool) (*scraper.Result, error) {
	s.gotURL = rawURL
	s.gotPages = maxPages
	s.gotForce = forceRefresh
	return s.result, s.err
}

type stubThreadStore struct {
	records map[string]*types.ThreadRecord
	infos   []types.ThreadInfo
	listErr error
}

func (s *stubThreadStore) Load(threadID string) (*types.ThreadRecord, error) {
	if r, ok := s.records[threadID]; ok {
		return r, nil
	}
	return nil, types.ErrNotFound
}

func (s *stubThreadStore) List() ([]types.ThreadInfo, error) {
	return s.infos, s.listErr
}

func (s *stubThreadStore) Delete(filenames []string) (deleted []string, errs []string) {
	for _, name := range filenames {
		id := strings.TrimSuffix(name, ".json")
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			deleted = append(deleted, name)
		} else {
			errs = append(errs, "file not found: "+name)
		}
	}
	return deleted, errs
}

func (s *stubThreadStore) DeleteAll() (int, error) {
	n := len(s.records)
	s.records = map[string]*types.ThreadRecord{}
	return n, nil
}

type stubChatter struct {
	answer    string
	err       error
	gotRecord *types.ThreadRecord
	gotMsg    string
}

func (c *stubChatter) Chat(ctx context.Context, record *types.ThreadRecord, message string, history []ai.Message, useSummary bool) (string, error) {
	c.gotRecord = record
	c.gotMsg = message
	return c.answer, c.err
}

func newTestServer(sc *stubScraper, st *stubThreadStore, chat *stubChatter) *Server {
	if sc == nil {
		sc = &stubScraper{}
	}
	if st == nil {
		st = &stubThreadStore{records: map[string]*types.ThreadRecord{}}
	}
	if chat == nil {
		chat = &stubChatter{}
	}
	return NewServer("127.0.0.1:0", 10, sc, st, chat, testLogger)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestIndexServesFrontend(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<html") {
		t.Error("index response is not a page")
	}
}

func TestScrapeSuccess(t *testing.T) {
	sc := &stubScraper{result: &scraper.Result{
		ThreadID:        "deal_1",
		CommentCount:    12,
		NewlyAddedCount: 3,
		Source:          "scrape",
	}}
	s := newTestServer(sc, nil, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/scrape", map[string]any{
		"url":       "https://slickdeals.net/f/1-deal",
		"max_pages": 4,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var result scraper.Result
	decodeBody(t, w, &result)
	if result.ThreadID != "deal_1" || result.CommentCount != 12 || result.NewlyAddedCount != 3 {
		t.Errorf("result = %+v", result)
	}
	if sc.gotPages != 4 {
		t.Errorf("max pages = %d", sc.gotPages)
	}
}

func TestScrapeDefaultsMaxPages(t *testing.T) {
	sc := &stubScraper{result: &scraper.Result{ThreadID: "deal_1"}}
	s := newTestServer(sc, nil, nil)

	doJSON(t, s.Handler(), http.MethodPost, "/api/scrape", map[string]any{
		"url": "https://slickdeals.net/f/1-deal",
	})
	if sc.gotPages != 10 {
		t.Errorf("max pages = %d, want server default", sc.gotPages)
	}
}

func TestScrapeRequiresURL(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/scrape", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["kind"] != "bad_request" {
		t.Errorf("kind = %q", body["kind"])
	}
}

func TestScrapeErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{
			name:       "fetch failure",
			err:        &types.FetchError{URL: "u", StatusCode: 503, Err: fmt.Errorf("HTTP 503")},
			wantStatus: http.StatusBadGateway,
			wantKind:   "network_error",
		},
		{
			name:       "parse failure",
			err:        &types.ParseError{URL: "u", Reason: "missing thread payload", Err: types.ErrNotThreadPage},
			wantStatus: http.StatusBadGateway,
			wantKind:   "parse_error",
		},
		{
			name:       "storage failure",
			err:        &types.StorageError{Op: "encode record", Err: fmt.Errorf("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "storage_error",
		},
		{
			name:       "unclassified failure",
			err:        fmt.Errorf("something odd"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubScraper{err: tt.err}, nil, nil)
			w := doJSON(t, s.Handler(), http.MethodPost, "/api/scrape", map[string]any{
				"url": "https://slickdeals.net/f/1-deal",
			})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			decodeBody(t, w, &body)
			if body["kind"] != tt.wantKind {
				t.Errorf("kind = %q, want %q", body["kind"], tt.wantKind)
			}
			if body["error"] == "" {
				t.Error("error message empty")
			}
		})
	}
}

func TestChatSuccess(t *testing.T) {
	st := &stubThreadStore{records: map[string]*types.ThreadRecord{
		"deal_1": {ThreadID: "deal_1", DealTitle: "widgets"},
	}}
	chat := &stubChatter{answer: "looks good"}
	s := newTestServer(nil, st, chat)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]any{
		"thread_id": "deal_1",
		"message":   "worth it?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body map[string]string
	decodeBody(t, w, &body)
	if body["response"] != "looks good" {
		t.Errorf("response = %q", body["response"])
	}
	if chat.gotRecord == nil || chat.gotRecord.ThreadID != "deal_1" {
		t.Errorf("chat record = %+v", chat.gotRecord)
	}
	if chat.gotMsg != "worth it?" {
		t.Errorf("chat message = %q", chat.gotMsg)
	}
}

func TestChatAcceptsFilenameForm(t *testing.T) {
	st := &stubThreadStore{records: map[string]*types.ThreadRecord{
		"deal_1": {ThreadID: "deal_1"},
	}}
	s := newTestServer(nil, st, &stubChatter{answer: "ok"})

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]any{
		"thread_id": "deal_1.json",
		"message":   "q",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestChatUnknownThread(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]any{
		"thread_id": "deal_404",
		"message":   "q",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["kind"] != "not_found" {
		t.Errorf("kind = %q", body["kind"])
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	st := &stubThreadStore{records: map[string]*types.ThreadRecord{
		"deal_1": {ThreadID: "deal_1"},
	}}
	chat := &stubChatter{err: &types.UpstreamError{Provider: "gemini", Err: fmt.Errorf("quota")}}
	s := newTestServer(nil, st, chat)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]any{
		"thread_id": "deal_1",
		"message":   "q",
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["kind"] != "upstream_error" {
		t.Errorf("kind = %q", body["kind"])
	}
}

func TestChatRequiresFields(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]any{
		"thread_id": "deal_1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListThreads(t *testing.T) {
	st := &stubThreadStore{infos: []types.ThreadInfo{
		{Filename: "deal_2.json", Title: "newer", Modified: time.Now(), Size: 900},
		{Filename: "deal_1.json", Title: "older", Modified: time.Now().Add(-time.Hour), Size: 400},
	}}
	s := newTestServer(nil, st, nil)

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/threads", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var infos []types.ThreadInfo
	decodeBody(t, w, &infos)
	if len(infos) != 2 || infos[0].Filename != "deal_2.json" {
		t.Errorf("infos = %+v", infos)
	}
}

func TestDeleteThreads(t *testing.T) {
	st := &stubThreadStore{records: map[string]*types.ThreadRecord{
		"deal_1": {ThreadID: "deal_1"},
	}}
	s := newTestServer(nil, st, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/threads/delete", map[string]any{
		"filenames": []string{"deal_1.json", "deal_9.json"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Deleted []string `json:"deleted"`
		Errors  []string `json:"errors"`
	}
	decodeBody(t, w, &body)
	if len(body.Deleted) != 1 || body.Deleted[0] != "deal_1.json" {
		t.Errorf("deleted = %v", body.Deleted)
	}
	if len(body.Errors) != 1 {
		t.Errorf("errors = %v", body.Errors)
	}
}

func TestDeleteAllThreads(t *testing.T) {
	st := &stubThreadStore{records: map[string]*types.ThreadRecord{
		"deal_1": {ThreadID: "deal_1"},
		"deal_2": {ThreadID: "deal_2"},
	}}
	s := newTestServer(nil, st, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/threads/delete_all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]int
	decodeBody(t, w, &body)
	if body["deleted"] != 2 {
		t.Errorf("deleted = %d", body["deleted"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/scrape", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}
