// Package openai implements transcription, completion, and speech synthesis
// against the OpenAI REST API (or any compatible endpoint).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/camarero-ai/camarero/pkg/session"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config selects models and voices.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	CompletionModel    string
	SpeechModel        string
	// Voices maps language code to TTS voice; missing languages use
	// DefaultVoice.
	Voices       map[string]string
	DefaultVoice string
}

// DefaultConfig returns the production model selection.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:             apiKey,
		BaseURL:            defaultBaseURL,
		TranscriptionModel: "whisper-1",
		CompletionModel:    "gpt-4o-mini",
		SpeechModel:        "tts-1",
		Voices: map[string]string{
			"es": "nova",
			"en": "alloy",
			"fr": "shimmer",
			"it": "onyx",
		},
		DefaultVoice: "nova",
	}
}

// Client talks to the OpenAI API. It implements session.Transcriber,
// session.Completer, and session.Synthesizer.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client with the default HTTP client.
func New(cfg Config) *Client {
	return NewWithClient(cfg, nil)
}

// NewWithClient creates a client with a caller-supplied HTTP client.
func NewWithClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// Transcribe sends audio to the transcriptions endpoint.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	_ = w.WriteField("model", c.cfg.TranscriptionModel)
	if language != "" {
		_ = w.WriteField("language", language)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError("transcription", resp)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return out.Text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends the system prompt, history window, and utterance to the
// chat completions endpoint.
func (c *Client) Complete(ctx context.Context, system string, history []session.Turn, utterance string) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	for _, t := range history {
		msgs = append(msgs, chatMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: utterance})

	payload, err := json.Marshal(map[string]any{
		"model":    c.cfg.CompletionModel,
		"messages": msgs,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError("completion", resp)
	}

	var out struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Synthesize renders text with the voice configured for language.
func (c *Client) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	voice := c.cfg.Voices[language]
	if voice == "" {
		voice = c.cfg.DefaultVoice
	}
	payload, err := json.Marshal(map[string]any{
		"model":           c.cfg.SpeechModel,
		"input":           text,
		"voice":           voice,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("speech", resp)
	}
	return io.ReadAll(resp.Body)
}

func apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("%s: %s (%s)", op, envelope.Error.Message, envelope.Error.Type)
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
