package session

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/camarero-ai/camarero/pkg/core"
	"github.com/camarero-ai/camarero/pkg/text"
	"github.com/camarero-ai/camarero/pkg/wake"
)

// Transcriber converts captured audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Completer produces the assistant reply for an utterance.
type Completer interface {
	Complete(ctx context.Context, system string, history []Turn, utterance string) (string, error)
}

// Synthesizer renders reply text as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// PromptSource supplies the per-language system prompt. The menu or content
// catalog behind it is an external collaborator.
type PromptSource interface {
	SystemPrompt(language string) string
}

// PipelineConfig bounds the request pipeline.
type PipelineConfig struct {
	// MinAudioBytes rejects blobs below this size as noise before any
	// provider call.
	MinAudioBytes int
	// MaxTTSChars caps how much text goes into a single synthesis call;
	// longer replies are split into chunks on sentence boundaries.
	MaxTTSChars int
	// CallTimeout bounds each external provider call.
	CallTimeout time.Duration
	// ChunkPause is the gap between delivered audio chunks.
	ChunkPause time.Duration
}

// DefaultPipelineConfig returns the production pipeline bounds.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinAudioBytes: 1000,
		MaxTTSChars:   4000,
		CallTimeout:   30 * time.Second,
		ChunkPause:    300 * time.Millisecond,
	}
}

// Ignore reasons reported in the transcribe action response.
const (
	ReasonAudioTooSmall   = "audio_too_small"
	ReasonEmptyTranscript = "empty_transcript"
	ReasonDuplicate       = "duplicate"
)

// Result is what the transcribe action returns to the client. The reply
// itself arrives later through the outbox.
type Result struct {
	Text        string
	ResponseID  string
	Ignored     bool
	Reason      string
	Interrupted bool
}

// Pipeline runs an accepted utterance through transcription, duplicate
// screening, interruption detection, completion, and synthesis. The
// transcription half runs synchronously in the request handler; everything
// after the transcription message is a goroutine fenced by the turn token.
type Pipeline struct {
	Transcriber Transcriber
	Completer   Completer
	Synthesizer Synthesizer
	Prompts     PromptSource
	Logger      *slog.Logger
	Config      PipelineConfig
}

// HandleAudio processes one captured blob for sess. lastText is the
// client's view of its previous utterance, preferred over the server's for
// duplicate screening when present.
func (p *Pipeline) HandleAudio(ctx context.Context, sess *Session, audio []byte, lastText string) (Result, error) {
	log := p.logger().With("client_id", sess.ClientID)

	if len(audio) < p.Config.MinAudioBytes {
		log.Debug("audio rejected", "reason", ReasonAudioTooSmall, "bytes", len(audio))
		return Result{Ignored: true, Reason: ReasonAudioTooSmall}, nil
	}

	// Captured before this utterance claims the session: it decides whether
	// the interruption screen applies.
	wasProcessing := sess.Processing()
	lang := sess.Language()

	tctx, cancel := context.WithTimeout(ctx, p.Config.CallTimeout)
	transcript, err := p.Transcriber.Transcribe(tctx, audio, lang)
	cancel()
	if err != nil {
		return Result{}, core.NewProviderError("transcription", err)
	}

	transcript = text.FilterTranscript(transcript)
	if transcript == "" {
		log.Debug("audio rejected", "reason", ReasonEmptyTranscript)
		return Result{Ignored: true, Reason: ReasonEmptyTranscript}, nil
	}

	reference := lastText
	if reference == "" {
		reference = sess.LastTranscript()
	}
	if text.NearDuplicate(transcript, reference) {
		log.Debug("transcript deduplicated", "text", transcript)
		return Result{Text: transcript, Ignored: true, Reason: ReasonDuplicate}, nil
	}

	if wasProcessing {
		if verdict := wake.Classify(transcript, lang); verdict.Interrupt {
			log.Info("interruption detected", "text", transcript, "reason", verdict.Reason)
			sess.Interrupt()
			sess.Outbox.Append(EventWakeWord, map[string]any{
				"text":   transcript,
				"reason": string(verdict.Reason),
			})
			sess.Outbox.Append(EventInterrupted, nil)
			return Result{Text: transcript, Interrupted: true}, nil
		}
	}

	sess.SetLastTranscript(transcript)
	token := sess.BeginTurn()
	if !sess.PushIfCurrent(token, EventTranscription, map[string]any{
		"text":       transcript,
		"responseId": token,
	}) {
		log.Debug("turn superseded before transcription message")
		return Result{Text: transcript, ResponseID: token, Interrupted: true}, nil
	}
	log.Info("turn started", "response_id", token, "text", transcript)

	go p.respond(sess, token, transcript, lang)

	return Result{Text: transcript, ResponseID: token}, nil
}

// respond runs the asynchronous half of a turn. Every externally visible
// step commits through the session's fenced helpers, which re-check the
// token under the session lock; once the token is stale the remaining work
// is dropped without output.
func (p *Pipeline) respond(sess *Session, token, utterance, lang string) {
	log := p.logger().With("client_id", sess.ClientID, "response_id", token)
	ctx := context.Background()

	if !sess.StillCurrent(token) {
		log.Debug("turn superseded before completion")
		return
	}

	system := ""
	if p.Prompts != nil {
		system = p.Prompts.SystemPrompt(lang)
	}
	history := sess.RecentHistory()

	cctx, cancel := context.WithTimeout(ctx, p.Config.CallTimeout)
	reply, err := p.Completer.Complete(cctx, system, history, utterance)
	cancel()
	if err != nil {
		p.fail(sess, token, log, core.NewProviderError("completion", err))
		return
	}

	reply = text.StripMarkup(reply)
	if reply == "" {
		log.Warn("empty completion")
		sess.FinishTurn(token)
		return
	}

	if !sess.CommitExchangeIfCurrent(token, utterance, reply) {
		log.Debug("completion discarded, turn superseded")
		return
	}

	for i, chunk := range splitChunks(reply, p.Config.MaxTTSChars) {
		if i > 0 {
			time.Sleep(p.Config.ChunkPause)
		}
		if !sess.PushIfCurrent(token, EventResponseChunk, map[string]any{
			"text":       chunk,
			"responseId": token,
		}) {
			log.Debug("delivery abandoned, turn superseded", "chunk", i)
			return
		}

		speech := chunk
		if lang == "es" {
			speech = text.PrepareSpanishTTS(chunk)
		}
		sctx, cancel := context.WithTimeout(ctx, p.Config.CallTimeout)
		audio, err := p.Synthesizer.Synthesize(sctx, speech, lang)
		cancel()
		if err != nil {
			p.fail(sess, token, log, core.NewProviderError("synthesis", err))
			return
		}

		if !sess.PushIfCurrent(token, EventAudioResponse, map[string]any{
			"audio":      base64.StdEncoding.EncodeToString(audio),
			"responseId": token,
		}) {
			log.Debug("synthesized audio discarded, turn superseded", "chunk", i)
			return
		}
	}

	sess.FinishTurn(token)
	log.Info("turn delivered")
}

// fail reports a provider failure to the client, unless a newer turn has
// already taken over.
func (p *Pipeline) fail(sess *Session, token string, log *slog.Logger, err *core.Error) {
	if !sess.PushIfCurrent(token, EventError, map[string]any{
		"message": err.Message,
		"type":    string(err.Type),
	}) {
		log.Debug("provider failure on superseded turn", "err", err)
		return
	}
	log.Error("turn failed", "err", err)
	sess.FinishTurn(token)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// splitChunks breaks s into pieces of at most max runes, preferring
// sentence boundaries, falling back to word boundaries, and finally to a
// hard cut for pathological unbroken runs.
func splitChunks(s string, max int) []string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return []string{s}
	}

	var chunks []string
	for len(runes) > max {
		cut := -1
		for i := max - 1; i > 0; i-- {
			if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
				cut = i + 1
				break
			}
		}
		if cut <= 0 {
			for i := max - 1; i > 0; i-- {
				if runes[i] == ' ' {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = max
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}
