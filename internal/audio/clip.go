package audio

import "fmt"

// SilenceDuration is the fixed length in seconds of the placeholder
// clip used for lines whose narration has no speakable characters.
const SilenceDuration = 0.5

// Clip references one dialogue line's synthesized audio on disk. Clips
// are never mutated after creation; regeneration replaces the whole
// value.
type Clip struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Silence  bool    `json:"silence,omitempty"`
}

// WriteSilenceClip writes the fixed-duration placeholder clip to path.
func WriteSilenceClip(path string, sampleRate int) (*Clip, error) {
	w := Silence(SilenceDuration, sampleRate)
	if err := WriteWAVFile(path, w); err != nil {
		return nil, err
	}
	return &Clip{Path: path, Duration: SilenceDuration, Silence: true}, nil
}

// LoadClip decodes the WAV at path, returning the clip record with its
// measured duration alongside the decoded waveform so callers can feed
// it straight into viseme extraction without a second decode.
func LoadClip(path string) (*Clip, *Waveform, error) {
	w, err := DecodeWAVFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load clip %s: %w", path, err)
	}
	return &Clip{Path: path, Duration: w.Duration()}, w, nil
}
