// Package speech synthesizes dialogue audio through a local
// COEIROINK-compatible voice service.
package speech

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrUnavailable      = errors.New("speech service unavailable")
	ErrUnsupportedInput = errors.New("text cannot be synthesized")
	ErrVoiceNotFound    = errors.New("no voice configured for speaker")
)

// Synthesizer converts one narration string to audio.
type Synthesizer interface {
	// Name returns the backend identifier.
	Name() string

	// Synthesize converts text to WAV audio with the given voice.
	Synthesize(ctx context.Context, req *Request) (*Result, error)

	// IsAvailable reports whether the backend can take requests.
	IsAvailable(ctx context.Context) bool
}

// Request is one synthesis job. Text must already be narration text,
// with display-only markup stripped and readings substituted.
type Request struct {
	Text      string `json:"text"`
	VoiceUUID string `json:"voice_uuid"`
	StyleID   int    `json:"style_id"`
}

// Result is the synthesized audio.
type Result struct {
	Audio          []byte        `json:"-"`
	SampleRate     int           `json:"sample_rate"`
	ProcessingTime time.Duration `json:"processing_time"`
}
