package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/harube/kakeai/internal/config"
	"github.com/harube/kakeai/internal/retry"
)

// ErrInvalidOutput is returned when the model keeps producing output
// that fails to parse or validate after all repair attempts.
var ErrInvalidOutput = errors.New("model output failed validation")

// textSource produces one completion for a prompt. The gemini-backed
// implementation handles transport retries; callers see only the final
// result.
type textSource interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator turns a topic into a validated Script. Malformed model
// output triggers a repair round that quotes the previous output and
// the error back to the model.
type Generator struct {
	source     textSource
	maxRetries int
	log        zerolog.Logger
	closer     func() error
}

// NewGenerator builds a gemini-backed Generator.
func NewGenerator(ctx context.Context, cfg config.ScriptConfig, apiKey string, log zerolog.Logger) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	src := &geminiSource{
		model:      model,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
	return &Generator{
		source:     src,
		maxRetries: cfg.MaxRetries,
		log:        log,
		closer:     client.Close,
	}, nil
}

// newGeneratorWithSource wires a Generator to an arbitrary text source.
func newGeneratorWithSource(src textSource, maxRetries int, log zerolog.Logger) *Generator {
	return &Generator{source: src, maxRetries: maxRetries, log: log}
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	if g.closer != nil {
		return g.closer()
	}
	return nil
}

// Generate produces a validated script for the topic. The first
// request uses the plain topic prompt; each subsequent round feeds the
// previous output and its error back for repair.
func (g *Generator) Generate(ctx context.Context, topic string) (*Script, error) {
	prompt := buildUserPrompt(topic)

	var lastRaw string
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			g.log.Warn().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Script output rejected, requesting repair")
			prompt = buildRepairPrompt(topic, lastRaw, lastErr)
		}

		raw, err := g.source.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("script request failed: %w", err)
		}

		s, err := parseScript(raw)
		if err == nil {
			g.log.Info().
				Str("title", s.Meta.Title).
				Int("lines", len(s.Dialogue)).
				Msg("Script generated")
			return s, nil
		}
		lastRaw, lastErr = raw, err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrInvalidOutput, g.maxRetries+1, lastErr)
}

// parseScript decodes and validates one model response.
func parseScript(raw string) (*Script, error) {
	cleaned := stripCodeFence(raw)
	var s Script
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		return nil, fmt.Errorf("failed to parse script JSON: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// stripCodeFence unwraps a markdown code fence. Models occasionally
// wrap their answer in one even in JSON mode.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// geminiSource is the production text source. Transport failures are
// retried with exponential backoff; response content problems are left
// to the Generator's repair loop.
type geminiSource struct {
	model      *genai.GenerativeModel
	maxRetries int
	log        zerolog.Logger
}

func (g *geminiSource) Complete(ctx context.Context, prompt string) (string, error) {
	var text string
	err := retry.Do(ctx, g.maxRetries, 2*time.Second, 30*time.Second, func() error {
		resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			g.log.Warn().Err(err).Msg("Model request failed, will retry")
			return err
		}
		extracted, err := extractText(resp)
		if err != nil {
			// An empty candidate list will not improve on resend.
			return retry.Stop(err)
		}
		text = extracted
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("model returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("model returned no text parts")
	}
	return b.String(), nil
}
