// Package render drives ffmpeg to turn a render schedule into finished
// video files. Each dialogue line becomes one encoded segment; segments
// are stream-copied together so a re-render of a single line never
// touches the others' bytes.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/timeline"
	"github.com/harube/kakeai/internal/viseme"
)

// Rendering errors
var (
	ErrFFmpegNotFound  = errors.New("ffmpeg not found in PATH")
	ErrMissingArtifact = errors.New("required render artifact missing")
)

// Caption and decoration constants. Bubble text wraps harder than the
// wide caption because the tall frame is narrower.
const (
	wideCaptionWrap = 30
	bubbleWrap      = 16

	bubbleFontSize    = 42
	bubbleLineSpacing = 10
	bubblePadX        = 24
	bubblePadY        = 16
	bubbleWidthFrac   = 0.72
	bubbleMarginFrac  = 0.04

	logoHeightFrac = 0.09
	logoMargin     = 40

	endCardSeconds    = 3.0
	endCardPeriod     = 1.5
	endCardHeightFrac = 0.18
	endCardMargin     = 60
)

// runner abstracts ffmpeg invocation.
type runner interface {
	run(ctx context.Context, args ...string) error
}

type ffmpegRunner struct {
	bin string
	log zerolog.Logger
}

func (f *ffmpegRunner) run(ctx context.Context, args ...string) error {
	if _, err := exec.LookPath(f.bin); err != nil {
		return fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}

	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		f.log.Error().Err(err).Str("stderr", tail(stderr.Bytes(), 500)).Msg("ffmpeg failed")
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.Bytes(), 500))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}

// Renderer turns schedules into video files.
type Renderer struct {
	assets *Assets
	run    runner
	log    zerolog.Logger
}

// New creates a Renderer using the ffmpeg binary from PATH.
func New(assets *Assets, log zerolog.Logger) *Renderer {
	return &Renderer{
		assets: assets,
		run:    &ffmpegRunner{bin: "ffmpeg", log: log},
		log:    log.With().Str("component", "render").Logger(),
	}
}

// Inputs names the per-render file locations.
type Inputs struct {
	Background string
	WorkDir    string
	OutPath    string
}

// RenderVideo renders every segment of the schedule and concatenates
// them into in.OutPath. Intermediate segment files, filter scripts,
// and caption text files land in in.WorkDir with deterministic names.
func (r *Renderer) RenderVideo(ctx context.Context, sched *timeline.RenderSchedule, in Inputs) error {
	if len(sched.Segments) == 0 {
		return fmt.Errorf("%w: schedule has no segments", ErrMissingArtifact)
	}
	if _, err := os.Stat(in.Background); err != nil {
		return fmt.Errorf("%w: background %s", ErrMissingArtifact, in.Background)
	}
	if _, err := os.Stat(r.assets.FontFile()); err != nil {
		return fmt.Errorf("%w: font %s", ErrMissingArtifact, r.assets.FontFile())
	}
	if err := os.MkdirAll(in.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	r.log.Info().
		Str("layout", string(sched.Layout)).
		Int("segments", len(sched.Segments)).
		Int("frames", sched.FrameCount()).
		Msg("Rendering video")

	segPaths := make([]string, 0, len(sched.Segments))
	for i := range sched.Segments {
		plan, err := r.buildSegmentPlan(sched, i, in)
		if err != nil {
			return err
		}
		if err := plan.write(); err != nil {
			return err
		}

		r.log.Debug().Int("segment", i).Int("line", sched.Segments[i].Line).Msg("Rendering segment")
		if err := r.run.run(ctx, plan.Args...); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		segPaths = append(segPaths, plan.OutPath)
	}

	if err := r.concatSegments(ctx, segPaths, in); err != nil {
		return err
	}

	r.log.Info().Str("path", in.OutPath).Msg("Video rendered")
	return nil
}

// concatSegments stream-copies the per-line segments into the final
// container.
func (r *Renderer) concatSegments(ctx context.Context, segPaths []string, in Inputs) error {
	listPath := filepath.Join(in.WorkDir, "concat.txt")
	var list bytes.Buffer
	for _, p := range segPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve segment path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	return r.run.run(ctx, "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		in.OutPath,
	)
}

// segmentPlan is one fully prepared ffmpeg invocation plus the side
// files it references.
type segmentPlan struct {
	Index     int
	OutPath   string
	GraphPath string
	Graph     string
	Args      []string
	textFiles map[string]string
}

func (p *segmentPlan) write() error {
	if err := os.WriteFile(p.GraphPath, []byte(p.Graph), 0644); err != nil {
		return fmt.Errorf("failed to write filter script: %w", err)
	}
	for path, content := range p.textFiles {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write caption file: %w", err)
		}
	}
	return nil
}

// buildSegmentPlan assembles the filtergraph and argument list for one
// line's segment. Input order: background, character sprites in draw
// order, optional logo, then the line's audio.
func (r *Renderer) buildSegmentPlan(sched *timeline.RenderSchedule, index int, in Inputs) (*segmentPlan, error) {
	seg := &sched.Segments[index]
	if _, err := os.Stat(seg.AudioPath); err != nil {
		return nil, fmt.Errorf("%w: audio for line %d at %s", ErrMissingArtifact, seg.Line, seg.AudioPath)
	}

	frames := sched.Frames[seg.StartFrame:seg.EndFrame]
	track := make(viseme.Track, len(frames))
	for i, fs := range frames {
		track[i] = fs.MouthOpen
	}
	segFrames := len(frames)
	fps := strconv.Itoa(sched.FrameRate)
	segDur := float64(segFrames) / float64(sched.FrameRate)
	t0 := seg.StartTime

	plan := &segmentPlan{
		Index:     index,
		OutPath:   filepath.Join(in.WorkDir, fmt.Sprintf("seg_%03d.mp4", index)),
		GraphPath: filepath.Join(in.WorkDir, fmt.Sprintf("seg_%03d.filter", index)),
		textFiles: map[string]string{},
	}

	var inputArgs []string
	imageInputs := 0
	addImage := func(path string) int {
		inputArgs = append(inputArgs, "-loop", "1", "-framerate", fps, "-i", path)
		idx := imageInputs
		imageInputs++
		return idx
	}

	g := &graphBuilder{}
	bgIdx := addImage(in.Background)
	cur := g.next()
	g.add("[%d:v]scale=%d:%d,setsar=1[%s]", bgIdx, sched.Width, sched.Height, cur)

	// Idle characters go under the active one.
	for _, cs := range seg.Characters {
		if cs.Foreground {
			continue
		}
		next, err := r.addIdleCharacter(g, addImage, cur, cs, t0, sched.Motion)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	for _, cs := range seg.Characters {
		if !cs.Foreground {
			continue
		}
		next, err := r.addActiveCharacter(g, addImage, cur, cs, track.OpenRuns(), t0, sched.Motion)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if logo := r.assets.LogoPath(); logo != "" {
		cur = r.addLogo(g, addImage, cur, sched, index, segDur, t0, logo)
	}

	switch sched.Layout {
	case timeline.LayoutTall:
		cur = r.addBubbles(g, cur, sched, seg, in.WorkDir, plan.textFiles)
	default:
		cur = r.addCaption(g, cur, sched, seg, in.WorkDir, plan.textFiles)
	}

	g.add("[%s]format=yuv420p[out]", cur)
	plan.Graph = g.String()

	audioIdx := imageInputs
	inputArgs = append(inputArgs, "-i", seg.AudioPath)

	args := []string{"-y"}
	args = append(args, inputArgs...)
	args = append(args,
		"-filter_complex_script", plan.GraphPath,
		"-map", "[out]",
		"-map", fmt.Sprintf("%d:a", audioIdx),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-r", fps,
		"-c:a", "aac",
		"-b:a", "192k",
		"-frames:v", strconv.Itoa(segFrames),
		"-shortest",
		plan.OutPath,
	)
	plan.Args = args
	return plan, nil
}

func (r *Renderer) addIdleCharacter(g *graphBuilder, addImage func(string) int, cur string, cs timeline.CharacterState, t0 float64, m motion.Params) (string, error) {
	img, err := r.assets.CharacterImage(cs.Speaker, cs.Emotion, false)
	if err != nil {
		return "", err
	}
	idx := addImage(img)
	scaledH := int(math.Round(cs.Height * cs.Scale))

	sprite := g.next()
	if cs.Brightness < 1.0 {
		b := ffNum(cs.Brightness)
		g.add("[%d:v]format=rgba,scale=-1:%d,colorchannelmixer=rr=%s:gg=%s:bb=%s[%s]",
			idx, scaledH, b, b, b, sprite)
	} else {
		g.add("[%d:v]format=rgba,scale=-1:%d[%s]", idx, scaledH, sprite)
	}

	out := g.next()
	g.add("[%s][%s]overlay=x='%s-w/2':y='%s-h/2+%s'[%s]",
		cur, sprite, ffNum(cs.X), ffNum(cs.Y), floatExpr(m, t0), out)
	return out, nil
}

func (r *Renderer) addActiveCharacter(g *graphBuilder, addImage func(string) int, cur string, cs timeline.CharacterState, runs []viseme.Run, t0 float64, m motion.Params) (string, error) {
	closedImg, err := r.assets.CharacterImage(cs.Speaker, cs.Emotion, false)
	if err != nil {
		return "", err
	}
	openImg, err := r.assets.CharacterImage(cs.Speaker, cs.Emotion, true)
	if err != nil {
		return "", err
	}

	scaledH := int(math.Round(cs.Height * cs.Scale))
	x := fmt.Sprintf("%s-w/2", ffNum(cs.X))
	y := fmt.Sprintf("%s-h/2+%s", ffNum(cs.Y), floatExpr(m, t0))

	closedIdx := addImage(closedImg)
	sprite := g.next()
	g.add("[%d:v]format=rgba,scale=-1:%d[%s]", closedIdx, scaledH, sprite)
	out := g.next()
	g.add("[%s][%s]overlay=x='%s':y='%s'[%s]", cur, sprite, x, y, out)
	cur = out

	// The open-mouth sprite sits on top, enabled only during open
	// runs, so closed frames need no second branch.
	openIdx := addImage(openImg)
	sprite = g.next()
	g.add("[%d:v]format=rgba,scale=-1:%d[%s]", openIdx, scaledH, sprite)
	out = g.next()
	g.add("[%s][%s]overlay=x='%s':y='%s':enable='%s'[%s]", cur, sprite, x, y, enableRuns(runs), out)
	return out, nil
}

// addLogo overlays the trembling corner logo, plus the bouncing end
// card during the final seconds of the last segment.
func (r *Renderer) addLogo(g *graphBuilder, addImage func(string) int, cur string, sched *timeline.RenderSchedule, index int, segDur, t0 float64, logoPath string) string {
	logoH := int(math.Round(logoHeightFrac * float64(sched.Height)))
	endCard := index == len(sched.Segments)-1 && segDur > endCardSeconds

	idx := addImage(logoPath)
	if endCard {
		g.add("[%d:v]format=rgba,split[lgsmall][lgcard]", idx)
		g.add("[lgsmall]scale=-1:%d[logo]", logoH)
	} else {
		g.add("[%d:v]format=rgba,scale=-1:%d[logo]", idx, logoH)
	}

	out := g.next()
	g.add("[%s][logo]overlay=x='W-w-%d+%s':y='%d'[%s]",
		cur, logoMargin, shakeExpr(sched.Motion, t0), logoMargin, out)
	cur = out

	if endCard {
		cardH := int(math.Round(endCardHeightFrac * float64(sched.Height)))
		start := segDur - endCardSeconds
		g.add("[lgcard]scale=-1:%d[card]", cardH)
		out = g.next()
		g.add("[%s][card]overlay=x='%s':y='H-h-%d':enable='gte(t,%s)'[%s]",
			cur, bounceExpr("W-w", start, endCardPeriod), endCardMargin, ffNum(start), out)
		cur = out
	}
	return cur
}

func (r *Renderer) addCaption(g *graphBuilder, cur string, sched *timeline.RenderSchedule, seg *timeline.LineSegment, workDir string, textFiles map[string]string) string {
	if seg.Caption == "" {
		return cur
	}
	tf := filepath.Join(workDir, fmt.Sprintf("txt_%03d.txt", seg.Line))
	textFiles[tf] = wrapRunes(seg.Caption, wideCaptionWrap)

	out := g.next()
	g.add("[%s]drawtext=fontfile='%s':textfile='%s':fontsize=%d:fontcolor=white:borderw=%d:bordercolor=black:x='(w-text_w)/2':y='%s-text_h/2'[%s]",
		cur, r.assets.FontFile(), tf,
		timeline.CaptionFontSize, timeline.CaptionBorderWidth,
		ffNum(sched.Layout.CaptionY()), out)
	return out
}

// addBubbles draws the chat stack, oldest first so the current line
// lands on top. Bubbles pushed above the frame are culled here, not in
// the schedule.
func (r *Renderer) addBubbles(g *graphBuilder, cur string, sched *timeline.RenderSchedule, seg *timeline.LineSegment, workDir string, textFiles map[string]string) string {
	bw := int(bubbleWidthFrac * float64(sched.Width))
	margin := int(bubbleMarginFrac * float64(sched.Width))

	for _, b := range seg.Bubbles {
		if b.Y < 0 {
			continue
		}
		if b.Text == "" {
			continue
		}

		wrapped := wrapRunes(b.Text, bubbleWrap)
		lines := countLines(wrapped)
		bh := 2*bubblePadY + lines*(bubbleFontSize+bubbleLineSpacing)

		bx := margin
		if b.Side == timeline.SideRight {
			bx = sched.Width - margin - bw
		}
		by := int(math.Round(b.Y))

		tf := filepath.Join(workDir, fmt.Sprintf("txt_%03d.txt", b.Line))
		textFiles[tf] = wrapped

		out := g.next()
		g.add("[%s]drawbox=x=%d:y=%d:w=%d:h=%d:color=black@%.2f:t=fill[%s]",
			cur, bx, by, bw, bh, 0.55*b.Opacity, out)
		cur = out

		out = g.next()
		g.add("[%s]drawtext=fontfile='%s':textfile='%s':fontsize=%d:fontcolor=white:alpha=%.2f:line_spacing=%d:x=%d:y=%d[%s]",
			cur, r.assets.FontFile(), tf, bubbleFontSize, b.Opacity, bubbleLineSpacing,
			bx+bubblePadX, by+bubblePadY, out)
		cur = out
	}
	return cur
}
