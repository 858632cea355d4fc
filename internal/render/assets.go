package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harube/kakeai/internal/config"
	"github.com/harube/kakeai/internal/script"
)

// Assets resolves character art, the logo, and the caption font from
// the assets directory.
//
// Character art is structured as images/<speaker>/<emotion>_<state>.png
// with state "open" or "closed". A missing emotion falls back to the
// normal expression, and a speaker with no structured directory falls
// back to a single legacy images/<speaker>.png used for every state.
type Assets struct {
	dir      string
	fontFile string
}

// NewAssets wires asset resolution to the configured directories.
func NewAssets(cfg config.AssetsConfig) *Assets {
	return &Assets{dir: cfg.Dir, fontFile: cfg.FontFile}
}

// FontFile returns the caption font path.
func (a *Assets) FontFile() string {
	return a.fontFile
}

// LogoPath returns the channel logo path, or "" when no logo is
// installed. The logo is decorative; rendering proceeds without it.
func (a *Assets) LogoPath() string {
	p := filepath.Join(a.dir, "images", "logo.png")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// CharacterImage resolves the sprite for a speaker, expression, and
// mouth state.
func (a *Assets) CharacterImage(sp script.Speaker, emo script.Emotion, mouthOpen bool) (string, error) {
	state := "closed"
	if mouthOpen {
		state = "open"
	}
	charDir := filepath.Join(a.dir, "images", string(sp))

	candidates := []string{
		filepath.Join(charDir, fmt.Sprintf("%s_%s.png", emo, state)),
		filepath.Join(charDir, fmt.Sprintf("%s_%s.png", script.EmotionNormal, state)),
		filepath.Join(charDir, fmt.Sprintf("%s_closed.png", script.EmotionNormal)),
		filepath.Join(a.dir, "images", string(sp)+".png"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no sprite for %s/%s", ErrMissingArtifact, sp, emo)
}
