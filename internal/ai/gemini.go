// Package ai answers questions about stored threads through the Gemini API.
package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/dealtalk/dealtalk/internal/config"
	"github.com/dealtalk/dealtalk/internal/types"
)

// Message is one turn of a chat conversation. Role is "user" or "model".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a completion for a prompt, optionally preceded by
// conversation history.
type Generator interface {
	Generate(ctx context.Context, history []Message, prompt string) (string, error)
	Name() string
}

// Gemini implements Generator using Google GenAI.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini generator. A missing API key fails here, at
// construction, never per request.
func NewGemini(ctx context.Context, cfg config.AIConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, types.ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.RequestTimeout,
	}, nil
}

// Generate sends the history plus prompt to Gemini and returns the text of
// the first candidate.
func (g *Gemini) Generate(ctx context.Context, history []Message, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := "model"
		if m.Role == "user" {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	})

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var result string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result += part.Text
		}
	}
	return result, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string { return "gemini" }

// Model returns the model name in use.
func (g *Gemini) Model() string { return g.model }
