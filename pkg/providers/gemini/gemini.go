// Package gemini implements the completion provider on the Gemini API.
// Transcription and synthesis stay on the primary provider; only the reply
// generation is switchable.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/camarero-ai/camarero/pkg/session"
)

const defaultModel = "gemini-2.0-flash"

// Client implements session.Completer on the Gemini SDK.
type Client struct {
	model  string
	client *genai.Client
}

// New dials the Gemini API with the given key.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if model == "" {
		model = defaultModel
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{model: model, client: gc}, nil
}

// Complete sends the history window and utterance as a multi-turn content
// list with the persona as system instruction.
func (c *Client) Complete(ctx context.Context, system string, history []session.Turn, utterance string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := genai.Role(genai.RoleUser)
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(utterance, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	out := resp.Text()
	if out == "" {
		return "", fmt.Errorf("gemini completion: empty response")
	}
	return out, nil
}
