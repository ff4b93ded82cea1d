package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/dealtalk/dealtalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type genCall struct {
	history []Message
	prompt  string
}

type genResponse struct {
	text string
	err  error
}

// stubGenerator pops one canned response per call and records what it saw.
type stubGenerator struct {
	responses []genResponse
	calls     []genCall
}

func (g *stubGenerator) Generate(ctx context.Context, history []Message, prompt string) (string, error) {
	g.calls = append(g.calls, genCall{history: history, prompt: prompt})
	if len(g.responses) == 0 {
		return "ok", nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp.text, resp.err
}

func (g *stubGenerator) Name() string { return "stub" }

type stubSummaryStore struct {
	saved map[string]string
}

func (s *stubSummaryStore) SaveSummary(threadID, summary string) error {
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[threadID] = summary
	return nil
}

func sampleRecord() *types.ThreadRecord {
	return &types.ThreadRecord{
		ThreadID:        "deal_1",
		DealTitle:       "50% off widgets",
		DealDescription: "All widgets half price.",
		Comments: []types.Comment{
			{Author: "alice", Text: "Great deal!", Date: "Yesterday"},
			{Author: "bob", Text: "Shipping is slow though.", Date: "Today"},
		},
	}
}

func TestChatFirstTurn(t *testing.T) {
	gen := &stubGenerator{responses: []genResponse{{text: "the answer"}}}
	a := NewChatAdapter(gen, nil, 30000, testLogger)

	answer, err := a.Chat(context.Background(), sampleRecord(), "is it worth it?", nil, false)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("answer = %q", answer)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("calls = %d", len(gen.calls))
	}

	call := gen.calls[0]
	if call.history != nil {
		t.Error("first turn should carry no history")
	}
	for _, want := range []string{
		"DEAL TITLE: 50% off widgets",
		"All widgets half price.",
		"COMMENTS FROM USERS:",
		"alice (Yesterday): Great deal!",
		"User Question: is it worth it?",
	} {
		if !strings.Contains(call.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestChatEnforcesBudget(t *testing.T) {
	record := sampleRecord()
	record.Comments = []types.Comment{
		{Author: "alice", Text: strings.Repeat("very long comment ", 100), Date: "d1"},
	}
	gen := &stubGenerator{}
	a := NewChatAdapter(gen, nil, 200, testLogger)

	if _, err := a.Chat(context.Background(), record, "q", nil, false); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	prompt := gen.calls[0].prompt
	if !strings.Contains(prompt, truncationNote) {
		t.Error("oversized context not marked as truncated")
	}
	if strings.Contains(prompt, joinComments(record, true)) {
		t.Error("full comment text leaked past the budget")
	}
}

func TestTruncateNeverExceedsBudget(t *testing.T) {
	a := NewChatAdapter(&stubGenerator{}, nil, 50, testLogger)

	for _, n := range []int{0, 10, 50, 51, 500} {
		got := a.truncate(strings.Repeat("x", n))
		if len(got) > 50 {
			t.Errorf("len(truncate(%d chars)) = %d, exceeds budget", n, len(got))
		}
		if n > 50 && !strings.HasSuffix(got, truncationNote) {
			t.Errorf("truncated text missing note: %q", got)
		}
	}
}

func TestChatInjectsContextIntoHistory(t *testing.T) {
	gen := &stubGenerator{}
	a := NewChatAdapter(gen, nil, 30000, testLogger)

	history := []Message{
		{Role: "user", Content: "what is this deal?"},
		{Role: "model", Content: "widgets at half price"},
	}
	if _, err := a.Chat(context.Background(), sampleRecord(), "any complaints?", history, false); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	call := gen.calls[0]
	if len(call.history) != 2 {
		t.Fatalf("history = %d turns", len(call.history))
	}
	if !strings.Contains(call.history[0].Content, contextMarker) {
		t.Error("thread context not injected into first user turn")
	}
	if !strings.Contains(call.history[0].Content, "what is this deal?") {
		t.Error("original question dropped during injection")
	}
	if call.prompt != "any complaints?" {
		t.Errorf("prompt = %q", call.prompt)
	}

	// The caller's slice must stay untouched.
	if history[0].Content != "what is this deal?" {
		t.Errorf("caller history mutated: %q", history[0].Content)
	}
}

func TestChatDoesNotReinjectContext(t *testing.T) {
	gen := &stubGenerator{}
	a := NewChatAdapter(gen, nil, 30000, testLogger)

	first := contextMarker + " something\n\nUser Question: earlier"
	history := []Message{
		{Role: "user", Content: first},
		{Role: "model", Content: "earlier answer"},
	}
	if _, err := a.Chat(context.Background(), sampleRecord(), "next", history, false); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gen.calls[0].history[0].Content != first {
		t.Error("context injected twice")
	}
}

func TestChatGeneratesAndCachesSummary(t *testing.T) {
	gen := &stubGenerator{responses: []genResponse{
		{text: "a tidy summary"},
		{text: "the answer"},
	}}
	store := &stubSummaryStore{}
	a := NewChatAdapter(gen, store, 30000, testLogger)

	answer, err := a.Chat(context.Background(), sampleRecord(), "q", nil, true)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("answer = %q", answer)
	}
	if len(gen.calls) != 2 {
		t.Fatalf("calls = %d, want summary + answer", len(gen.calls))
	}
	if !strings.Contains(gen.calls[0].prompt, "Summarize the following deal thread.") {
		t.Errorf("first call is not the summary prompt: %q", gen.calls[0].prompt)
	}
	if !strings.Contains(gen.calls[1].prompt, "SUMMARY OF COMMENTS:\na tidy summary") {
		t.Error("answer prompt missing generated summary")
	}
	if store.saved["deal_1"] != "a tidy summary" {
		t.Errorf("summary not cached: %v", store.saved)
	}
}

func TestChatUsesCachedSummary(t *testing.T) {
	record := sampleRecord()
	record.DealSummary = "cached summary"
	gen := &stubGenerator{}
	store := &stubSummaryStore{}
	a := NewChatAdapter(gen, store, 30000, testLogger)

	if _, err := a.Chat(context.Background(), record, "q", nil, true); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("calls = %d, cached summary must skip generation", len(gen.calls))
	}
	if !strings.Contains(gen.calls[0].prompt, "SUMMARY OF COMMENTS:\ncached summary") {
		t.Error("prompt missing cached summary")
	}
	if len(store.saved) != 0 {
		t.Error("cached summary re-saved")
	}
}

func TestChatSummaryFailureFallsBack(t *testing.T) {
	gen := &stubGenerator{responses: []genResponse{
		{err: fmt.Errorf("quota exceeded")},
		{text: "the answer"},
	}}
	a := NewChatAdapter(gen, &stubSummaryStore{}, 30000, testLogger)

	answer, err := a.Chat(context.Background(), sampleRecord(), "q", nil, true)
	if err != nil {
		t.Fatalf("summary failure must not fail the chat: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(gen.calls[1].prompt, "Error generating summary. Using raw comments.") {
		t.Error("fallback context missing")
	}
}

func TestChatWrapsUpstreamError(t *testing.T) {
	gen := &stubGenerator{responses: []genResponse{{err: fmt.Errorf("boom")}}}
	a := NewChatAdapter(gen, nil, 30000, testLogger)

	_, err := a.Chat(context.Background(), sampleRecord(), "q", nil, false)
	var upstream *types.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *types.UpstreamError, got %v", err)
	}
	if upstream.Provider != "stub" {
		t.Errorf("provider = %q", upstream.Provider)
	}
}
