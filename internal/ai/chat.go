package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dealtalk/dealtalk/internal/types"
)

// contextMarker identifies a history turn that already carries the thread
// context, so it is injected at most once per conversation.
const contextMarker = "DEAL TITLE:"

const truncationNote = "...(truncated)"

// SummaryStore caches generated summaries back onto stored records.
type SummaryStore interface {
	SaveSummary(threadID, summary string) error
}

// ChatAdapter composes prompts from a thread record and forwards them to the
// chat API. Comment text is reduced to the character budget before any call
// leaves the process.
type ChatAdapter struct {
	gen       Generator
	summaries SummaryStore
	budget    int
	logger    *slog.Logger
}

// NewChatAdapter creates a chat adapter. summaries may be nil, in which case
// generated summaries are used but not cached.
func NewChatAdapter(gen Generator, summaries SummaryStore, budget int, logger *slog.Logger) *ChatAdapter {
	return &ChatAdapter{
		gen:       gen,
		summaries: summaries,
		budget:    budget,
		logger:    logger.With("component", "chat_adapter"),
	}
}

// Chat answers one question about the record. The frontend is stateless and
// sends plain question/answer history; the thread context is injected into
// the first user turn so the model keeps it across the whole conversation.
func (a *ChatAdapter) Chat(ctx context.Context, record *types.ThreadRecord, message string, history []Message, useSummary bool) (string, error) {
	system := a.systemPrompt(ctx, record, useSummary)

	if len(history) == 0 {
		answer, err := a.gen.Generate(ctx, nil, system+"\n\nUser Question: "+message)
		if err != nil {
			return "", &types.UpstreamError{Provider: a.gen.Name(), Err: err}
		}
		return answer, nil
	}

	turns := make([]Message, len(history))
	copy(turns, history)
	if turns[0].Role == "user" && !strings.Contains(turns[0].Content, contextMarker) {
		turns[0].Content = system + "\n\nUser Question: " + turns[0].Content
	}

	answer, err := a.gen.Generate(ctx, turns, message)
	if err != nil {
		return "", &types.UpstreamError{Provider: a.gen.Name(), Err: err}
	}
	return answer, nil
}

func (a *ChatAdapter) systemPrompt(ctx context.Context, record *types.ThreadRecord, useSummary bool) string {
	return fmt.Sprintf(`You are a helpful assistant analyzing a deal-forum thread.

DEAL TITLE: %s

DEAL DESCRIPTION:
%s

%s

Answer the user's questions based on the deal details and the user comments.`,
		record.DealTitle,
		record.DealDescription,
		a.contextText(ctx, record, useSummary),
	)
}

// contextText assembles the comment context, either the (possibly cached)
// summary or the raw comments, always within the character budget.
func (a *ChatAdapter) contextText(ctx context.Context, record *types.ThreadRecord, useSummary bool) string {
	if !useSummary {
		return "COMMENTS FROM USERS:\n" + a.truncate(joinComments(record, true))
	}

	if record.DealSummary != "" {
		return "SUMMARY OF COMMENTS:\n" + record.DealSummary
	}

	comments := a.truncate(joinComments(record, false))
	summaryPrompt := fmt.Sprintf(`Summarize the following deal thread.
Focus on the general sentiment, key questions asked, answers given, and any important warnings or tips from users.

Comments:
%s`, comments)

	summary, err := a.gen.Generate(ctx, nil, summaryPrompt)
	if err != nil {
		// Summarization is an optimization; fall back to the raw comments.
		a.logger.Warn("summary generation failed, using raw comments",
			"thread_id", record.ThreadID, "error", err)
		return "Error generating summary. Using raw comments.\n" + comments
	}

	if a.summaries != nil {
		if err := a.summaries.SaveSummary(record.ThreadID, summary); err != nil {
			a.logger.Warn("summary cache write failed", "thread_id", record.ThreadID, "error", err)
		}
	}
	return "SUMMARY OF COMMENTS:\n" + summary
}

// truncate cuts text to the budget, leaving room for the truncation note so
// the result never exceeds it.
func (a *ChatAdapter) truncate(text string) string {
	if len(text) <= a.budget {
		return text
	}
	cut := a.budget - len(truncationNote)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + truncationNote
}

// joinComments renders the comments one per line.
func joinComments(record *types.ThreadRecord, withDates bool) string {
	var sb strings.Builder
	for i, c := range record.Comments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if withDates && c.Date != "" {
			fmt.Fprintf(&sb, "%s (%s): %s", c.Author, c.Date, c.Text)
		} else {
			fmt.Fprintf(&sb, "%s: %s", c.Author, c.Text)
		}
	}
	return sb.String()
}
