package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harube/kakeai/internal/config"
	"github.com/harube/kakeai/internal/retry"
)

const (
	healthTimeout  = 5 * time.Second
	prosodyTimeout = 30 * time.Second
)

// CoeiroinkClient talks to a local COEIROINK server. Synthesis is a
// two-step exchange: estimate prosody for the text, then synthesize
// with the estimated detail passed through unchanged.
type CoeiroinkClient struct {
	baseURL    string
	cfg        config.SpeechConfig
	client     *http.Client
	logger     zerolog.Logger
	maxRetries int
	retryBase  time.Duration
}

// NewCoeiroinkClient creates a client for the configured service.
func NewCoeiroinkClient(cfg config.SpeechConfig, logger zerolog.Logger) *CoeiroinkClient {
	return &CoeiroinkClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("backend", "coeiroink").Logger(),
		maxRetries: cfg.MaxRetries,
		retryBase:  2 * time.Second,
	}
}

// Name returns the backend identifier.
func (c *CoeiroinkClient) Name() string {
	return "coeiroink"
}

// IsAvailable checks the speaker listing endpoint.
func (c *CoeiroinkClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/speakers", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Speech service not reachable")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Synthesize runs the prosody and synthesis exchange for one line.
// Server errors and transport failures are retried with backoff;
// client errors fail immediately.
func (c *CoeiroinkClient) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrUnsupportedInput
	}
	if req.VoiceUUID == "" {
		return nil, ErrVoiceNotFound
	}

	reqID := uuid.NewString()[:8]
	log := c.logger.With().Str("req", reqID).Logger()
	startTime := time.Now()

	var audio []byte
	err := retry.Do(ctx, c.maxRetries, c.retryBase, 30*time.Second, func() error {
		prosody, err := c.estimateProsody(ctx, req.Text)
		if err != nil {
			return err
		}
		audio, err = c.synthesize(ctx, req, prosody)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("Synthesis failed")
		return nil, err
	}

	processingTime := time.Since(startTime)
	log.Info().
		Int("textLen", len(req.Text)).
		Int("audioBytes", len(audio)).
		Dur("processingTime", processingTime).
		Msg("Synthesis complete")

	return &Result{
		Audio:          audio,
		SampleRate:     c.cfg.SampleRate,
		ProcessingTime: processingTime,
	}, nil
}

// estimateProsody asks the server for pitch and duration detail. The
// detail payload is opaque to us and forwarded as-is.
func (c *CoeiroinkClient) estimateProsody(ctx context.Context, text string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, prosodyTimeout)
	defer cancel()

	body, err := c.postJSON(ctx, "/v1/estimate_prosody", map[string]any{"text": text})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, retry.Stop(fmt.Errorf("failed to parse prosody response: %w", err))
	}
	if len(parsed.Detail) == 0 {
		return nil, retry.Stop(fmt.Errorf("prosody response has no detail"))
	}
	return parsed.Detail, nil
}

// synthesize requests WAV audio for the text with the given prosody.
func (c *CoeiroinkClient) synthesize(ctx context.Context, req *Request, prosody json.RawMessage) ([]byte, error) {
	payload := map[string]any{
		"speakerUuid":        req.VoiceUUID,
		"styleId":            req.StyleID,
		"text":               req.Text,
		"prosodyDetail":      prosody,
		"speedScale":         c.cfg.SpeedScale,
		"volumeScale":        1.0,
		"pitchScale":         0.0,
		"intonationScale":    1.0,
		"prePhonemeLength":   0.1,
		"postPhonemeLength":  0.1,
		"outputSamplingRate": c.cfg.SampleRate,
	}
	return c.postJSON(ctx, "/v1/synthesis", payload)
}

// postJSON posts a JSON payload and returns the response body. A 5xx
// status is returned as a retryable error, any other non-200 stops
// the retry loop.
func (c *CoeiroinkClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Stop(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, retry.Stop(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("speech service error %d on %s: %s", resp.StatusCode, path, truncate(body, 200))
	default:
		return nil, retry.Stop(fmt.Errorf("speech request rejected %d on %s: %s", resp.StatusCode, path, truncate(body, 200)))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
