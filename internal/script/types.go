// Package script defines the dialogue script model and generates
// scripts from a topic via the language-model service.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Package-level errors
var (
	ErrEmptyDialogue  = errors.New("script has no dialogue lines")
	ErrUnknownSpeaker = errors.New("unknown speaker")
	ErrEmptyText      = errors.New("dialogue line has empty text")
	ErrMissingTitle   = errors.New("script meta has no title")
)

// Speaker identifies a cast member. The cast is fixed: tsuno plays the
// sharp-tongued boke, megane the calm tsukkomi.
type Speaker string

const (
	SpeakerTsuno  Speaker = "tsuno"
	SpeakerMegane Speaker = "megane"
)

// Speakers returns the cast in on-screen order (tsuno left, megane
// right in the wide layout).
func Speakers() []Speaker {
	return []Speaker{SpeakerTsuno, SpeakerMegane}
}

// Valid reports whether s is a known cast member.
func (s Speaker) Valid() bool {
	return s == SpeakerTsuno || s == SpeakerMegane
}

// DisplayName returns the on-screen name for the speaker.
func (s Speaker) DisplayName() string {
	switch s {
	case SpeakerTsuno:
		return "ツノ"
	case SpeakerMegane:
		return "メガネ"
	}
	return string(s)
}

// Other returns the non-speaking half of the duo.
func (s Speaker) Other() Speaker {
	if s == SpeakerTsuno {
		return SpeakerMegane
	}
	return SpeakerTsuno
}

// Emotion selects a character expression.
type Emotion string

const (
	EmotionNormal    Emotion = "normal"
	EmotionHappy     Emotion = "happy"
	EmotionAngry     Emotion = "angry"
	EmotionSad       Emotion = "sad"
	EmotionSurprised Emotion = "surprised"
)

// Emotions returns all known emotions.
func Emotions() []Emotion {
	return []Emotion{EmotionNormal, EmotionHappy, EmotionAngry, EmotionSad, EmotionSurprised}
}

// Valid reports whether e is a known emotion.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionNormal, EmotionHappy, EmotionAngry, EmotionSad, EmotionSurprised:
		return true
	}
	return false
}

// Normalize maps unknown or empty emotion labels to normal. The script
// source occasionally invents labels; rendering only knows these five.
func (e Emotion) Normalize() Emotion {
	if e.Valid() {
		return e
	}
	return EmotionNormal
}

// DialogueLine is one authored line of the script. Text may contain
// annotation markup resolved by the annotate package. ShortsSkip marks
// lines the tall cut may drop when it runs over length.
type DialogueLine struct {
	Speaker    Speaker `json:"speaker"`
	Text       string  `json:"text"`
	Emotion    Emotion `json:"emotion"`
	ShortsSkip bool    `json:"shorts_skip,omitempty"`
}

// Meta holds the script's theme and published title.
type Meta struct {
	Theme string `json:"theme"`
	Title string `json:"title"`
}

// Script is the structured document produced by the script source and
// edited by humans between stages.
type Script struct {
	Meta         Meta           `json:"meta"`
	Dialogue     []DialogueLine `json:"dialogue"`
	NoteContent  string         `json:"note_content"`
	XPostContent string         `json:"x_post_content"`
}

// Validate checks structural integrity and normalizes emotions in
// place. Unknown speakers and empty lines are errors; unknown emotions
// are coerced to normal.
func (s *Script) Validate() error {
	if len(s.Dialogue) == 0 {
		return ErrEmptyDialogue
	}
	if s.Meta.Title == "" {
		return ErrMissingTitle
	}
	for i := range s.Dialogue {
		line := &s.Dialogue[i]
		if !line.Speaker.Valid() {
			return fmt.Errorf("%w: %q (line %d)", ErrUnknownSpeaker, line.Speaker, i)
		}
		if line.Text == "" {
			return fmt.Errorf("%w (line %d)", ErrEmptyText, i)
		}
		line.Emotion = line.Emotion.Normalize()
	}
	return nil
}

// Load reads and validates a script document from path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the script document to path, indented for hand editing.
func (s *Script) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal script: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}
