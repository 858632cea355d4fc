package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const tweetEndpoint = "https://api.twitter.com/2/tweets"

// XTokenFromEnv reads the X API bearer token.
func XTokenFromEnv() string {
	return os.Getenv("X_BEARER_TOKEN")
}

// XPoster publishes announcement posts through the v2 API.
type XPoster struct {
	token    string
	endpoint string
	log      zerolog.Logger
}

// NewXPoster creates a poster for the given bearer token.
func NewXPoster(token string, log zerolog.Logger) *XPoster {
	return &XPoster{
		token:    token,
		endpoint: tweetEndpoint,
		log:      log.With().Str("component", "publish").Logger(),
	}
}

// Post publishes text and returns the post URL.
func (p *XPoster) Post(ctx context.Context, text string) (string, error) {
	if p.token == "" {
		return "", fmt.Errorf("%w: X_BEARER_TOKEN is not set", ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("post text is empty")
	}
	if strings.Contains(text, URLPlaceholder) {
		return "", fmt.Errorf("post text still contains %s, upload the video first", URLPlaceholder)
	}

	body, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token}))
	client.Timeout = 30 * time.Second
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read post response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("post rejected %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Data.ID == "" {
		return "", fmt.Errorf("unexpected post response: %s", truncate(data, 200))
	}

	url := "https://x.com/i/status/" + out.Data.ID
	p.log.Info().Str("url", url).Msg("Posted to X")
	return url, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
