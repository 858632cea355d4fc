// Package pipeline drives a run through its stages: script, backgrounds,
// audio, schedules, renders, publish. Every stage transition persists
// state.json before the next stage starts, so a run interrupted at any
// point resumes from its last completed stage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harube/kakeai/internal/annotate"
	"github.com/harube/kakeai/internal/audio"
	"github.com/harube/kakeai/internal/bus"
	"github.com/harube/kakeai/internal/config"
	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/publish"
	"github.com/harube/kakeai/internal/render"
	"github.com/harube/kakeai/internal/script"
	"github.com/harube/kakeai/internal/speech"
	"github.com/harube/kakeai/internal/timeline"
	"github.com/harube/kakeai/internal/viseme"
)

// DictionaryFile is the reading dictionary's name under the assets
// directory. A missing file means no substitutions.
const DictionaryFile = "dictionary.txt"

// backgroundPause spaces the two background generations apart so the
// image model's rate limit is not tripped by back-to-back calls.
const backgroundPause = 3 * time.Second

// layouts is the render order: wide first, matching the upload order.
var layouts = []timeline.Layout{timeline.LayoutWide, timeline.LayoutTall}

// ScriptGenerator produces a dialogue script for a topic.
type ScriptGenerator interface {
	Generate(ctx context.Context, topic string) (*script.Script, error)
}

// BackgroundGenerator produces one background image. The bool reports
// whether the image is the solid-color fallback.
type BackgroundGenerator interface {
	Generate(ctx context.Context, theme string, width, height int) ([]byte, bool, error)
}

// VideoRenderer turns schedules into video files.
type VideoRenderer interface {
	RenderVideo(ctx context.Context, sched *timeline.RenderSchedule, in render.Inputs) error
	RenderThumbnail(ctx context.Context, title, bgPath, workDir, outPath string) error
}

// Uploader pushes one finished video to the hosting service.
type Uploader interface {
	UploadVideo(ctx context.Context, up publish.Upload) (*publish.UploadInfo, error)
}

// Poster publishes one announcement text, returning its URL.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// Deps bundles the orchestrator's collaborators. Renderer is required;
// the rest may be nil when the corresponding stages are not driven.
type Deps struct {
	Scripts     ScriptGenerator
	Backgrounds BackgroundGenerator
	Synthesizer speech.Synthesizer
	Renderer    VideoRenderer
	Uploader    Uploader
	Poster      Poster
}

// Orchestrator owns the stage methods. Each method drives exactly one
// transition; state.json is written before the method returns.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	events *bus.EventBus
	dict   annotate.Dictionary
	log    zerolog.Logger

	bgPause time.Duration
	now     func() time.Time
}

// New builds an orchestrator. The reading dictionary is loaded from
// the assets directory once, here.
func New(cfg *config.Config, deps Deps, events *bus.EventBus, log zerolog.Logger) (*Orchestrator, error) {
	dict, err := annotate.LoadDictionary(filepath.Join(cfg.Assets.Dir, DictionaryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load reading dictionary: %w", err)
	}
	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		events:  events,
		dict:    dict,
		log:     log.With().Str("component", "pipeline").Logger(),
		bgPause: backgroundPause,
		now:     time.Now,
	}
	if dict.Len() > 0 {
		o.log.Debug().Int("entries", dict.Len()).Msg("Reading dictionary loaded")
	}
	return o, nil
}

// CreateRun allocates a run directory, draws the run's motion
// parameters, and persists the initial state.
func (o *Orchestrator) CreateRun(topic string) (*Run, error) {
	now := o.now()
	rng := rand.New(rand.NewSource(now.UnixNano()))
	run := NewRun(o.cfg.Output.Dir, topic, motion.DefaultParams(rng), now)
	if err := run.Save(); err != nil {
		return nil, err
	}
	o.log.Info().Str("run", run.ID).Str("topic", topic).Msg("Run created")
	o.events.Publish(bus.Event{Type: bus.EventTypeRunCreated, Data: map[string]any{
		"run_id": run.ID,
		"topic":  topic,
	}})
	return run, nil
}

// GenerateScript drives ScriptPending to ScriptReady.
func (o *Orchestrator) GenerateScript(ctx context.Context, run *Run) error {
	s, err := o.deps.Scripts.Generate(ctx, run.Topic)
	if err != nil {
		return o.fail(run, fmt.Errorf("script generation: %w", err))
	}
	if err := s.Save(run.Path(ScriptFile)); err != nil {
		return o.fail(run, err)
	}
	if err := o.advance(run, StageScriptReady); err != nil {
		return err
	}
	o.events.Publish(bus.Event{Type: bus.EventTypeScriptGenerated, Data: map[string]any{
		"run_id": run.ID,
		"title":  s.Meta.Title,
		"lines":  len(s.Dialogue),
	}})
	return nil
}

// RegenerateScript replaces a ScriptReady run's script in place,
// optionally steering the model with a corrective instruction. The
// stage does not move and a failure here leaves the previous script
// untouched, so the interactive loop can just re-prompt.
func (o *Orchestrator) RegenerateScript(ctx context.Context, run *Run, instruction string) error {
	if run.Stage != StageScriptReady {
		return fmt.Errorf("%w: script regeneration needs %s, stage is %s", ErrIllegalTransition, StageScriptReady, run.Stage)
	}
	topic := run.Topic
	if instruction != "" {
		topic += "\n追加の指示: " + instruction
	}
	s, err := o.deps.Scripts.Generate(ctx, topic)
	if err != nil {
		return fmt.Errorf("script regeneration: %w", err)
	}
	if err := s.Save(run.Path(ScriptFile)); err != nil {
		return err
	}
	o.events.Publish(bus.Event{Type: bus.EventTypeScriptGenerated, Data: map[string]any{
		"run_id": run.ID,
		"title":  s.Meta.Title,
		"lines":  len(s.Dialogue),
	}})
	return run.Save()
}

// GenerateBackgrounds drives ScriptReady to BackgroundReady, writing
// one image per layout. Layouts whose image already exists are kept
// as-is, so a rewound run does not spend image-model calls again.
func (o *Orchestrator) GenerateBackgrounds(ctx context.Context, run *Run) error {
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return o.fail(run, err)
	}
	theme := s.Meta.Theme
	if theme == "" {
		theme = run.Topic
	}

	generated := false
	for _, l := range layouts {
		name := BackgroundFile(l)
		path := run.Path(name)
		if _, err := os.Stat(path); err == nil {
			run.Backgrounds[string(l)] = name
			o.log.Debug().Str("run", run.ID).Str("layout", string(l)).Msg("Background already present, keeping it")
			continue
		}
		if generated {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.bgPause):
			}
		}
		w, h := l.Dimensions()
		img, fallback, err := o.deps.Backgrounds.Generate(ctx, theme, w, h)
		if err != nil {
			return o.fail(run, fmt.Errorf("background %s: %w", l, err))
		}
		if err := os.WriteFile(path, img, 0644); err != nil {
			return o.fail(run, fmt.Errorf("failed to write background: %w", err))
		}
		generated = true
		run.Backgrounds[string(l)] = name
		evt := bus.EventTypeBackgroundReady
		if fallback {
			evt = bus.EventTypeBackgroundFallback
			run.BackgroundFallback = true
		}
		o.events.Publish(bus.Event{Type: evt, Data: map[string]any{
			"run_id": run.ID,
			"layout": string(l),
		}})
	}
	return o.advance(run, StageBackgroundReady)
}

// lineAudio is one worker's output, keyed back by line index at the
// join barrier.
type lineAudio struct {
	clip *audio.Clip
	err  error
}

// SynthesizeAudio drives BackgroundReady to AudioReady. Lines are
// synthesized concurrently in a bounded pool; each worker writes only
// its own slice element, and the join barrier reassembles clips in
// script order.
func (o *Orchestrator) SynthesizeAudio(ctx context.Context, run *Run) error {
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return o.fail(run, err)
	}
	if !o.deps.Synthesizer.IsAvailable(ctx) {
		return o.fail(run, fmt.Errorf("%w: %s is not reachable", speech.ErrUnavailable, o.deps.Synthesizer.Name()))
	}
	if err := os.MkdirAll(run.Path(AudioDir), 0755); err != nil {
		return o.fail(run, fmt.Errorf("failed to create audio directory: %w", err))
	}

	results := make([]lineAudio, len(s.Dialogue))
	sem := make(chan struct{}, o.workers())
	var wg sync.WaitGroup
	for i, line := range s.Dialogue {
		wg.Add(1)
		go func(i int, line script.DialogueLine) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.synthesizeLine(ctx, run, i+1, line)
		}(i, line)
	}
	wg.Wait()

	clips := make([]LineClip, len(results))
	for i, res := range results {
		if res.err != nil {
			return o.fail(run, fmt.Errorf("line %d: %w", i+1, res.err))
		}
		clips[i] = LineClip{Line: i + 1, Speaker: s.Dialogue[i].Speaker, Clip: *res.clip}
	}
	run.Clips = clips
	return o.advance(run, StageAudioReady)
}

// synthesizeLine produces one line's clip: silence for unspeakable
// narration, synthesized audio otherwise. Clip paths are stored
// relative to the run directory.
func (o *Orchestrator) synthesizeLine(ctx context.Context, run *Run, lineNo int, line script.DialogueLine) lineAudio {
	narration := annotate.Narration(line.Text, o.dict)
	rel := filepath.Join(AudioDir, AudioFileName(lineNo, line.Speaker))
	path := run.Path(rel)

	if !annotate.Speakable(narration) {
		clip, err := audio.WriteSilenceClip(path, o.cfg.Speech.SampleRate)
		if err != nil {
			return lineAudio{err: err}
		}
		clip.Path = rel
		o.log.Debug().Str("run", run.ID).Int("line", lineNo).Msg("Nothing speakable, wrote silence clip")
		o.events.Publish(bus.Event{Type: bus.EventTypeLineSilence, Data: map[string]any{
			"run_id": run.ID,
			"line":   lineNo,
		}})
		return lineAudio{clip: clip}
	}

	voice, ok := o.cfg.Speech.Voices[string(line.Speaker)]
	if !ok || voice.UUID == "" {
		return lineAudio{err: fmt.Errorf("%w: %s", speech.ErrVoiceNotFound, line.Speaker)}
	}
	res, err := o.deps.Synthesizer.Synthesize(ctx, &speech.Request{
		Text:      narration,
		VoiceUUID: voice.UUID,
		StyleID:   voice.StyleID,
	})
	if err != nil {
		return lineAudio{err: err}
	}
	if err := os.WriteFile(path, res.Audio, 0644); err != nil {
		return lineAudio{err: fmt.Errorf("failed to write clip: %w", err)}
	}
	w, err := audio.DecodeWAV(res.Audio)
	if err != nil {
		return lineAudio{err: fmt.Errorf("synthesized audio unreadable: %w", err)}
	}
	clip := &audio.Clip{Path: rel, Duration: w.Duration()}
	o.events.Publish(bus.Event{Type: bus.EventTypeLineSynthesized, Data: map[string]any{
		"run_id":   run.ID,
		"line":     lineNo,
		"speaker":  string(line.Speaker),
		"duration": clip.Duration,
	}})
	return lineAudio{clip: clip}
}

// entryResult is one line's composition input, built in the extraction
// pool.
type entryResult struct {
	entry timeline.Entry
	err   error
}

// ComposeSchedules drives AudioReady to ScheduleReady. Mouth tracks
// are extracted per line in the same bounded pool as synthesis, then a
// join barrier hands the complete entry list to composition for each
// layout.
func (o *Orchestrator) ComposeSchedules(ctx context.Context, run *Run) error {
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return o.fail(run, err)
	}
	if len(run.Clips) != len(s.Dialogue) {
		return o.fail(run, fmt.Errorf("%w: %d clips for %d dialogue lines", ErrDataIntegrity, len(run.Clips), len(s.Dialogue)))
	}

	results := make([]entryResult, len(s.Dialogue))
	sem := make(chan struct{}, o.workers())
	var wg sync.WaitGroup
	for i := range s.Dialogue {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.buildEntry(run, s.Dialogue[i], run.Clips[i], i+1)
		}(i)
	}
	wg.Wait()

	entries := make([]timeline.Entry, len(results))
	for i, res := range results {
		if res.err != nil {
			return o.fail(run, fmt.Errorf("line %d: %w", i+1, res.err))
		}
		entries[i] = res.entry
	}

	opts := timeline.Options{
		FrameRate:      o.cfg.Output.FPS,
		TallMaxSeconds: o.cfg.Timeline.TallMaxSeconds,
		OpacityFloor:   o.cfg.Timeline.BubbleOpacityFloor,
		Motion:         run.Motion,
	}
	for _, l := range layouts {
		sched, err := timeline.Compose(entries, l, opts)
		if err != nil {
			return o.fail(run, fmt.Errorf("compose %s: %w", l, err))
		}
		if err := saveSchedule(run.Path(ScheduleFile(l)), sched); err != nil {
			return o.fail(run, err)
		}
		run.Schedules[string(l)] = ScheduleFile(l)
	}
	return o.advance(run, StageScheduleReady)
}

// buildEntry loads one line's clip from disk and extracts its mouth
// track. The clip on the entry carries the absolute audio path, which
// composition copies into the schedule for the renderer.
func (o *Orchestrator) buildEntry(run *Run, line script.DialogueLine, lc LineClip, lineNo int) entryResult {
	clip, w, err := audio.LoadClip(run.Path(lc.Clip.Path))
	if err != nil {
		return entryResult{err: err}
	}
	clip.Silence = lc.Clip.Silence
	track := viseme.Extract(w, o.cfg.Output.FPS, o.cfg.Viseme.OpenThreshold, o.cfg.Viseme.MinOpenFrames)
	return entryResult{entry: timeline.Entry{
		Index:      lineNo,
		Speaker:    line.Speaker,
		Emotion:    line.Emotion,
		Caption:    annotate.Caption(line.Text),
		ShortsSkip: line.ShortsSkip,
		Clip:       clip,
		Track:      track,
	}}
}

// Render drives ScheduleReady to Rendered: both layout videos plus the
// thumbnail, from the persisted schedules.
func (o *Orchestrator) Render(ctx context.Context, run *Run) error {
	o.events.Publish(bus.Event{Type: bus.EventTypeRenderStarted, Data: map[string]any{
		"run_id": run.ID,
	}})
	for _, l := range layouts {
		sched, err := loadSchedule(run.Path(ScheduleFile(l)))
		if err != nil {
			return o.fail(run, err)
		}
		in := render.Inputs{
			Background: run.Path(BackgroundFile(l)),
			WorkDir:    run.Path(WorkDirName(l)),
			OutPath:    run.Path(VideoFile(l)),
		}
		if err := o.deps.Renderer.RenderVideo(ctx, sched, in); err != nil {
			return o.fail(run, fmt.Errorf("render %s: %w", l, err))
		}
		run.Renders[string(l)] = VideoFile(l)
	}
	if err := o.renderThumbnail(ctx, run); err != nil {
		return o.fail(run, err)
	}
	o.events.Publish(bus.Event{Type: bus.EventTypeRenderFinished, Data: map[string]any{
		"run_id": run.ID,
	}})
	return o.advance(run, StageRendered)
}

// RegenerateThumbnail rebuilds only the thumbnail against a persisted
// run. Identical inputs reproduce the identical file; the run's stage
// does not move.
func (o *Orchestrator) RegenerateThumbnail(ctx context.Context, run *Run) error {
	if run.Stage == StageFailed || !run.Stage.After(StageBackgroundReady) {
		return fmt.Errorf("%w: thumbnail needs a background, stage is %s", ErrIllegalTransition, run.Stage)
	}
	if err := o.renderThumbnail(ctx, run); err != nil {
		return err
	}
	return run.Save()
}

func (o *Orchestrator) renderThumbnail(ctx context.Context, run *Run) error {
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return err
	}
	err = o.deps.Renderer.RenderThumbnail(ctx,
		s.Meta.Title,
		run.Path(BackgroundFile(timeline.LayoutWide)),
		run.Path(WorkDirName(timeline.LayoutWide)),
		run.Path(ThumbnailFile))
	if err != nil {
		return err
	}
	run.Thumbnail = ThumbnailFile
	return nil
}

// PublishRun drives Rendered to Published: upload the wide render with
// its thumbnail, then write the announcement artifacts with the final
// URL substituted in.
func (o *Orchestrator) PublishRun(ctx context.Context, run *Run) error {
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return o.fail(run, err)
	}
	info, err := o.deps.Uploader.UploadVideo(ctx, publish.Upload{
		VideoPath:     run.Path(VideoFile(timeline.LayoutWide)),
		Title:         s.Meta.Title,
		Description:   publish.BuildDescription(s.NoteContent, o.cfg.Publish.Tags),
		ThumbnailPath: run.Path(ThumbnailFile),
	})
	if err != nil {
		return o.fail(run, fmt.Errorf("upload: %w", err))
	}
	if err := publish.WriteArtifacts(run.Dir(), s, info); err != nil {
		return o.fail(run, err)
	}
	run.Upload = info
	o.events.Publish(bus.Event{Type: bus.EventTypeVideoUploaded, Data: map[string]any{
		"run_id": run.ID,
		"url":    info.YouTubeURL,
	}})
	return o.advance(run, StagePublished)
}

// UploadShorts uploads the tall render of a published run and folds
// the shorts URL into the upload record. The stage does not move.
func (o *Orchestrator) UploadShorts(ctx context.Context, run *Run) error {
	info := run.Upload
	if info == nil {
		loaded, err := publish.LoadUploadInfo(run.Dir())
		if err != nil {
			return err
		}
		info = loaded
	}
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return err
	}
	shorts, err := o.deps.Uploader.UploadVideo(ctx, publish.Upload{
		VideoPath:   run.Path(VideoFile(timeline.LayoutTall)),
		Title:       s.Meta.Title,
		Description: publish.BuildShortsDescription(info.YouTubeURL, s.Meta.Theme, o.cfg.Publish.Tags, o.cfg.Publish.ChannelURL),
	})
	if err != nil {
		return fmt.Errorf("shorts upload: %w", err)
	}
	info.ShortsVideoID = shorts.VideoID
	info.ShortsURL = shorts.YouTubeURL
	if err := publish.SaveUploadInfo(run.Dir(), info); err != nil {
		return err
	}
	run.Upload = info
	o.events.Publish(bus.Event{Type: bus.EventTypeVideoUploaded, Data: map[string]any{
		"run_id": run.ID,
		"url":    info.ShortsURL,
		"shorts": true,
	}})
	return run.Save()
}

// PostAnnouncement publishes the prepared X post for an uploaded run
// and returns the post URL.
func (o *Orchestrator) PostAnnouncement(ctx context.Context, run *Run) (string, error) {
	info := run.Upload
	if info == nil {
		loaded, err := publish.LoadUploadInfo(run.Dir())
		if err != nil {
			return "", err
		}
		info = loaded
	}
	s, err := script.Load(run.Path(ScriptFile))
	if err != nil {
		return "", err
	}
	text := publish.SubstituteURL(s.XPostContent, info.YouTubeURL)
	url, err := o.deps.Poster.Post(ctx, text)
	if err != nil {
		return "", err
	}
	o.events.Publish(bus.Event{Type: bus.EventTypePostPublished, Data: map[string]any{
		"run_id": run.ID,
		"url":    url,
	}})
	return url, nil
}

// MarkDone closes out a published run.
func (o *Orchestrator) MarkDone(run *Run) error {
	return o.advance(run, StageDone)
}

// ResumeFromScript rewinds a composed or rendered run to ScriptReady
// so edited dialogue flows through audio, schedules, and renders
// again.
func (o *Orchestrator) ResumeFromScript(run *Run) error {
	if err := o.advance(run, StageScriptReady); err != nil {
		return err
	}
	o.events.Publish(bus.Event{Type: bus.EventTypeScriptEdited, Data: map[string]any{
		"run_id": run.ID,
	}})
	return nil
}

// Recover puts a failed run back at its last good stage.
func (o *Orchestrator) Recover(run *Run) error {
	if err := run.Recover(); err != nil {
		return err
	}
	o.log.Info().Str("run", run.ID).Str("stage", string(run.Stage)).Msg("Run recovered")
	o.events.Publish(bus.Event{Type: bus.EventTypeRunResumed, Data: map[string]any{
		"run_id": run.ID,
		"stage":  string(run.Stage),
	}})
	return nil
}

// Step drives the single transition the run's current stage calls for.
func (o *Orchestrator) Step(ctx context.Context, run *Run) error {
	switch run.Stage {
	case StageScriptPending:
		return o.GenerateScript(ctx, run)
	case StageScriptReady:
		return o.GenerateBackgrounds(ctx, run)
	case StageBackgroundReady:
		return o.SynthesizeAudio(ctx, run)
	case StageAudioReady:
		return o.ComposeSchedules(ctx, run)
	case StageScheduleReady:
		return o.Render(ctx, run)
	case StageRendered:
		return o.PublishRun(ctx, run)
	case StagePublished:
		return o.MarkDone(run)
	default:
		return fmt.Errorf("%w: nothing to run at %s", ErrIllegalTransition, run.Stage)
	}
}

// workers returns the audio pool size, at least one.
func (o *Orchestrator) workers() int {
	if o.cfg.Speech.Workers < 1 {
		return 1
	}
	return o.cfg.Speech.Workers
}

// advance persists the transition and announces it.
func (o *Orchestrator) advance(run *Run, to Stage) error {
	if err := run.Advance(to); err != nil {
		return err
	}
	o.log.Info().Str("run", run.ID).Str("stage", string(to)).Msg("Stage complete")
	o.events.Publish(bus.Event{Type: bus.EventTypeStageChanged, Data: map[string]any{
		"run_id": run.ID,
		"stage":  string(to),
	}})
	return nil
}

// fail records the failure and re-returns the cause. Cancellation is
// not a failure: the run keeps its last persisted stage and the error
// passes through untouched.
func (o *Orchestrator) fail(run *Run, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	lastGood := run.Stage
	if err := run.MarkFailed(cause); err != nil {
		o.log.Error().Err(err).Str("run", run.ID).Msg("Could not persist failure state")
	}
	o.log.Error().Err(cause).Str("run", run.ID).Str("last_good", string(lastGood)).Msg("Stage failed")
	o.events.Publish(bus.Event{Type: bus.EventTypeRunFailed, Data: map[string]any{
		"run_id": run.ID,
		"stage":  string(lastGood),
		"error":  cause.Error(),
	}})
	return cause
}

func saveSchedule(path string, sched *timeline.RenderSchedule) error {
	data, err := json.MarshalIndent(sched, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schedule: %w", err)
	}
	return nil
}

func loadSchedule(path string) (*timeline.RenderSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}
	var sched timeline.RenderSchedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, fmt.Errorf("invalid schedule %s: %w", path, err)
	}
	return &sched, nil
}
