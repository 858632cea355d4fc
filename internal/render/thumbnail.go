package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harube/kakeai/internal/background"
)

const (
	thumbWidth  = 1280
	thumbHeight = 720

	thumbTitleFontSize = 64
	thumbTitleBorder   = 4
	thumbTitleWrap     = 18
	thumbLogoFrac      = 0.55
	thumbMarginFrac    = 0.05
)

// Leading 【...】 tags read fine in a YouTube title but crowd the
// thumbnail, so they are stripped before drawing.
var bracketPattern = regexp.MustCompile(`【[^】]*】\s*`)

// RenderThumbnail writes a 1280x720 PNG with the logo centered up top
// and the cleaned title along the bottom. A missing background falls
// back to the same solid color the background generator uses.
func (r *Renderer) RenderThumbnail(ctx context.Context, title, bgPath, workDir, outPath string) error {
	if _, err := os.Stat(r.assets.FontFile()); err != nil {
		return fmt.Errorf("%w: font %s", ErrMissingArtifact, r.assets.FontFile())
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	margin := int(thumbMarginFrac * thumbHeight)

	args := []string{"-y"}
	g := &graphBuilder{}

	haveBG := false
	if bgPath != "" {
		if _, err := os.Stat(bgPath); err == nil {
			haveBG = true
		}
	}
	if haveBG {
		args = append(args, "-i", bgPath)
	} else {
		c := background.FallbackColor
		args = append(args, "-f", "lavfi", "-i",
			fmt.Sprintf("color=c=0x%02X%02X%02X:s=%dx%d", c.R, c.G, c.B, thumbWidth, thumbHeight))
	}
	cur := g.next()
	g.add("[0:v]scale=%d:%d:flags=lanczos,setsar=1[%s]", thumbWidth, thumbHeight, cur)

	// The logo is always input 1 when present; the background claims 0.
	if logo := r.assets.LogoPath(); logo != "" {
		args = append(args, "-i", logo)
		logoH := int(thumbLogoFrac * thumbHeight)
		sprite := g.next()
		g.add("[1:v]format=rgba,scale=-1:%d[%s]", logoH, sprite)
		out := g.next()
		g.add("[%s][%s]overlay=x='(W-w)/2':y=%d[%s]", cur, sprite, margin, out)
		cur = out
	}

	display := strings.TrimSpace(bracketPattern.ReplaceAllString(title, ""))
	if display != "" {
		tf := filepath.Join(workDir, "thumb_title.txt")
		if err := os.WriteFile(tf, []byte(wrapRunes(display, thumbTitleWrap)), 0644); err != nil {
			return fmt.Errorf("failed to write title file: %w", err)
		}
		out := g.next()
		g.add("[%s]drawtext=fontfile='%s':textfile='%s':fontsize=%d:fontcolor=white:borderw=%d:bordercolor=black:x='(w-text_w)/2':y='h-text_h-%d'[%s]",
			cur, r.assets.FontFile(), tf, thumbTitleFontSize, thumbTitleBorder, margin, out)
		cur = out
	}

	g.add("[%s]format=rgb24[out]", cur)

	graphPath := filepath.Join(workDir, "thumbnail.filter")
	if err := os.WriteFile(graphPath, []byte(g.String()), 0644); err != nil {
		return fmt.Errorf("failed to write filter script: %w", err)
	}

	args = append(args,
		"-filter_complex_script", graphPath,
		"-map", "[out]",
		"-frames:v", "1",
		outPath,
	)
	if err := r.run.run(ctx, args...); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}

	r.log.Info().Str("path", outPath).Msg("Thumbnail rendered")
	return nil
}
