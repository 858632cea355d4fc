package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderThumbnail(t *testing.T) {
	r, fr := newTestRenderer(t, true)
	bg := filepath.Join(t.TempDir(), "bg_landscape.png")
	touch(t, bg)
	workDir := t.TempDir()
	out := filepath.Join(workDir, "thumbnail.png")

	require.NoError(t, r.RenderThumbnail(context.Background(), "【衝撃】猫の昼寝の真実", bg, workDir, out))
	require.Len(t, fr.calls, 1)

	args := fr.calls[0]
	assert.Contains(t, args, bg)
	assert.Equal(t, "1", argAfter(t, args, "-frames:v"))
	assert.Equal(t, out, args[len(args)-1])

	b, err := os.ReadFile(filepath.Join(workDir, "thumbnail.filter"))
	require.NoError(t, err)
	graph := string(b)
	assert.Contains(t, graph, "scale=1280:720:flags=lanczos")
	assert.Contains(t, graph, "scale=-1:396")
	assert.Contains(t, graph, "overlay=x='(W-w)/2':y=36")
	assert.Contains(t, graph, "fontsize=64")
	assert.Contains(t, graph, "borderw=4")
	assert.Contains(t, graph, "y='h-text_h-36'")
	assert.Contains(t, graph, "format=rgb24[out]")

	title, err := os.ReadFile(filepath.Join(workDir, "thumb_title.txt"))
	require.NoError(t, err)
	assert.Equal(t, "猫の昼寝の真実", string(title))
}

func TestRenderThumbnailSolidFallback(t *testing.T) {
	r, fr := newTestRenderer(t, true)
	workDir := t.TempDir()

	err := r.RenderThumbnail(context.Background(), "タイトル", "", workDir, filepath.Join(workDir, "t.png"))
	require.NoError(t, err)

	args := fr.calls[0]
	assert.Contains(t, args, "lavfi")
	assert.Contains(t, args, "color=c=0x141428:s=1280x720")
}

func TestRenderThumbnailSkipsEmptyTitle(t *testing.T) {
	r, _ := newTestRenderer(t, true)
	workDir := t.TempDir()

	err := r.RenderThumbnail(context.Background(), "【タグだけ】", "", workDir, filepath.Join(workDir, "t.png"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(workDir, "thumbnail.filter"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "drawtext")
}

func TestRenderThumbnailNoLogo(t *testing.T) {
	r, _ := newTestRenderer(t, false)
	workDir := t.TempDir()

	err := r.RenderThumbnail(context.Background(), "ロゴなし", "", workDir, filepath.Join(workDir, "t.png"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(workDir, "thumbnail.filter"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "overlay")
}
