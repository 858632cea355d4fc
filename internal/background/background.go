// Package background generates theme background images, with a solid
// fill fallback so the pipeline can always proceed.
package background

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/harube/kakeai/internal/config"
	"github.com/harube/kakeai/internal/retry"
)

// FallbackColor is the solid fill used when image generation is
// unavailable or keeps failing. Dark navy, matching the caption
// styling.
var FallbackColor = color.RGBA{R: 20, G: 20, B: 40, A: 255}

// imageSource produces raw image bytes for a prompt.
type imageSource interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Generator produces one background image per layout. Generation
// failures degrade to the solid fallback and are never fatal.
type Generator struct {
	source      imageSource
	maxAttempts int
	baseWait    time.Duration
	log         zerolog.Logger
	closer      func() error
}

// NewGenerator builds a gemini-backed Generator. An empty API key is
// not an error: the Generator runs in fallback-only mode.
func NewGenerator(ctx context.Context, cfg config.BackgroundConfig, apiKey string, log zerolog.Logger) (*Generator, error) {
	g := &Generator{
		maxAttempts: cfg.MaxAttempts,
		baseWait:    3 * time.Second,
		log:         log,
	}
	if apiKey == "" {
		log.Warn().Msg("No image service key configured, backgrounds will use the solid fallback")
		return g, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.source = &geminiImageSource{model: client.GenerativeModel(cfg.Model)}
	g.closer = client.Close
	return g, nil
}

func newGeneratorWithSource(src imageSource, maxAttempts int, baseWait time.Duration, log zerolog.Logger) *Generator {
	return &Generator{source: src, maxAttempts: maxAttempts, baseWait: baseWait, log: log}
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	if g.closer != nil {
		return g.closer()
	}
	return nil
}

// Generate returns PNG-encodable image bytes for the theme at the
// given size. The second return value reports whether the solid
// fallback was used. Only context cancellation is returned as an
// error; service failures degrade silently to the fallback.
func (g *Generator) Generate(ctx context.Context, theme string, width, height int) ([]byte, bool, error) {
	if g.source == nil {
		data, err := FallbackPNG(width, height)
		return data, true, err
	}

	prompt := buildPrompt(theme, width, height)
	var img []byte
	err := retry.Do(ctx, g.maxAttempts, g.baseWait, time.Minute, func() error {
		data, err := g.source.Generate(ctx, prompt)
		if err != nil {
			g.log.Warn().Err(err).Msg("Background generation attempt failed")
			return err
		}
		img = data
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		g.log.Warn().Err(err).Int("width", width).Int("height", height).
			Msg("Background generation failed, using solid fallback")
		data, ferr := FallbackPNG(width, height)
		return data, true, ferr
	}

	g.log.Info().Int("width", width).Int("height", height).Int("bytes", len(img)).
		Msg("Background generated")
	return img, false, nil
}

// buildPrompt constrains the image to the video's visual style. The
// bottom band stays dark because captions render there.
func buildPrompt(theme string, width, height int) string {
	orientation := "horizontal landscape"
	if height > width {
		orientation = "vertical portrait"
	}
	return fmt.Sprintf(`Generate a background image for a YouTube video about: %s

Requirements:
- Image size: %dx%d pixels, %s orientation
- Style: atmospheric, cinematic, slightly blurred/bokeh feel
- Color tone: dark and moody (similar to dark navy/indigo base)
- The bottom 20%% should be especially dark for subtitle readability
- No text, no characters, no faces, no logos
- Abstract or environmental scene that evokes the theme
- Suitable as a background behind animated characters
- Not too busy or distracting - keep it subtle
`, theme, width, height, orientation)
}

// FallbackPNG renders a solid FallbackColor image.
func FallbackPNG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(FallbackColor), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode fallback image: %w", err)
	}
	return buf.Bytes(), nil
}

// geminiImageSource extracts the first inline image part from a model
// response.
type geminiImageSource struct {
	model *genai.GenerativeModel
}

func (s *geminiImageSource) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("model returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && strings.HasPrefix(blob.MIMEType, "image/") {
			return blob.Data, nil
		}
	}
	return nil, errors.New("model returned no image part")
}
