package agent

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// Turn is one entry in the model conversation.
type Turn struct {
	Role    string // RoleUser or RoleModel
	Content string
}

// Conversation roles understood by the LLM client.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// LLM produces one streamed completion per call. Implemented by the Gemini
// client; tests substitute a scripted fake.
type LLM interface {
	// Generate streams text chunks of a single completion for the given
	// conversation.
	Generate(ctx context.Context, turns []Turn) iter.Seq2[string, error]
}

// GeminiLLM talks to the hosted Gemini chat-completion endpoint.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM creates a client bound to one API key and model.
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	return &GeminiLLM{client: client, model: model}, nil
}

// toContents maps conversation turns onto the wire representation.
func toContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return contents
}

// Generate streams one completion, token chunks as they arrive.
func (g *GeminiLLM) Generate(ctx context.Context, turns []Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents := toContents(turns)

		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				yield("", fmt.Errorf("model stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}
