package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/harube/kakeai/internal/audio"
	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/script"
	"github.com/harube/kakeai/internal/viseme"
)

// Composition errors. These are data-integrity violations: the caller
// must not have reached this stage with inputs in this state.
var (
	ErrNoEntries     = errors.New("no dialogue entries to compose")
	ErrMissingClip   = errors.New("dialogue line has no audio clip")
	ErrTrackMismatch = errors.New("viseme track length does not match clip duration")
)

// Entry is one dialogue line with its synthesized artifacts, ready for
// composition. Index is the line's position in the original script,
// which stays stable across the tall layout's skip filter.
type Entry struct {
	Index      int
	Speaker    script.Speaker
	Emotion    script.Emotion
	Caption    string
	ShortsSkip bool
	Clip       *audio.Clip
	Track      viseme.Track
}

// Options tunes composition. Motion carries the per-run shake
// frequency so a rebuild from persisted state reproduces the same
// schedule.
type Options struct {
	FrameRate      int
	TallMaxSeconds float64
	OpacityFloor   float64
	Motion         motion.Params
}

// DefaultOptions returns composition defaults around the given motion
// parameters.
func DefaultOptions(m motion.Params) Options {
	return Options{
		FrameRate:      DefaultFrameRate,
		TallMaxSeconds: 180,
		OpacityFloor:   0.35,
		Motion:         m,
	}
}

// Compose builds the render schedule for one layout.
//
// The tall layout may drop shortsSkip lines, once, when the unfiltered
// total runs past the ceiling; the wide layout always keeps every
// line. Frames are stamped with the line's speaker, emotion, and
// per-frame mouth state, plus ambient motion evaluated at the frame's
// absolute time.
func Compose(entries []Entry, layout Layout, opts Options) (*RenderSchedule, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}

	for _, e := range entries {
		if e.Clip == nil {
			return nil, fmt.Errorf("%w (line %d)", ErrMissingClip, e.Index)
		}
		want := frameCount(e.Clip.Duration, opts.FrameRate)
		if len(e.Track) != want {
			return nil, fmt.Errorf("%w (line %d: track %d frames, clip %d)",
				ErrTrackMismatch, e.Index, len(e.Track), want)
		}
	}

	included := entries
	if layout == LayoutTall && totalDuration(entries) > opts.TallMaxSeconds {
		// Single pass: drop flagged lines once and accept whatever
		// total remains.
		included = make([]Entry, 0, len(entries))
		for _, e := range entries {
			if !e.ShortsSkip {
				included = append(included, e)
			}
		}
	}
	if len(included) == 0 {
		return nil, ErrNoEntries
	}

	width, height := layout.Dimensions()
	fps := float64(opts.FrameRate)

	schedule := &RenderSchedule{
		Layout:    layout,
		FrameRate: opts.FrameRate,
		Width:     width,
		Height:    height,
		Motion:    opts.Motion,
	}

	var bubbles []Bubble
	frameIdx := 0
	for _, e := range included {
		seg := LineSegment{
			Line:          e.Index,
			Speaker:       e.Speaker,
			Emotion:       e.Emotion,
			Caption:       e.Caption,
			Silence:       e.Clip.Silence,
			StartFrame:    frameIdx,
			StartTime:     float64(frameIdx) / fps,
			AudioPath:     e.Clip.Path,
			AudioDuration: e.Clip.Duration,
		}

		switch layout {
		case LayoutTall:
			bubbles = append(bubbles, Bubble{
				Line:    e.Index,
				Speaker: e.Speaker,
				Text:    e.Caption,
				Side:    SideOf(e.Speaker),
			})
			restackBubbles(bubbles, opts.OpacityFloor, float64(height))
			seg.Bubbles = append([]Bubble(nil), bubbles...)
			seg.Characters = tallCharacters(e, width, height)
		default:
			seg.Characters = wideCharacters(e, width, height)
		}

		for _, open := range e.Track {
			t := float64(frameIdx) / fps
			schedule.Frames = append(schedule.Frames, FrameState{
				Index:     frameIdx,
				TimeSec:   t,
				Line:      e.Index,
				Speaker:   e.Speaker,
				Emotion:   e.Emotion,
				MouthOpen: open,
				FloatY:    motion.Float(t, opts.Motion.FloatAmplitude, opts.Motion.FloatFrequency),
				ShakeX:    motion.Shake(t, opts.Motion.ShakeAmplitude, opts.Motion.ShakeFrequency),
			})
			frameIdx++
		}

		seg.EndFrame = frameIdx
		schedule.Segments = append(schedule.Segments, seg)
	}

	return schedule, nil
}

// frameCount is the schedule length law: frames = round(seconds × fps).
func frameCount(duration float64, frameRate int) int {
	return int(math.Round(duration * float64(frameRate)))
}

func totalDuration(entries []Entry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Clip.Duration
	}
	return total
}

// wideCharacters places both cast members in their fixed slots with
// active-speaker emphasis. The listener drops to a neutral expression.
func wideCharacters(e Entry, width, height int) []CharacterState {
	states := make([]CharacterState, 0, 2)
	for _, sp := range script.Speakers() {
		cs := CharacterState{
			Speaker:    sp,
			Emotion:    script.EmotionNormal,
			Y:          wideCharCenterYFrac * float64(height),
			Height:     wideCharHeightFrac * float64(height),
			Scale:      BackgroundScale,
			Brightness: BackgroundBrightness,
		}
		if SideOf(sp) == SideLeft {
			cs.X = wideLeftXFrac * float64(width)
		} else {
			cs.X = wideRightXFrac * float64(width)
		}
		if sp == e.Speaker {
			cs.Foreground = true
			cs.Emotion = e.Emotion
			cs.Scale = ForegroundScale
			cs.Brightness = ForegroundBrightness
		}
		states = append(states, cs)
	}
	return states
}

// tallCharacters stacks the cast vertically. The chat layout carries
// no brightness emphasis; the speaking character is still marked
// foreground so the renderer can badge it.
func tallCharacters(e Entry, width, height int) []CharacterState {
	states := make([]CharacterState, 0, 2)
	for _, sp := range script.Speakers() {
		cs := CharacterState{
			Speaker:    sp,
			Emotion:    script.EmotionNormal,
			X:          float64(width) / 2,
			Height:     tallCharHeightFrac * float64(height),
			Scale:      1.0,
			Brightness: 1.0,
		}
		if sp == script.SpeakerTsuno {
			cs.Y = tallTopCenterYFrac * float64(height)
		} else {
			cs.Y = tallBottomCenterYFrac * float64(height)
		}
		if sp == e.Speaker {
			cs.Foreground = true
			cs.Emotion = e.Emotion
		}
		states = append(states, cs)
	}
	return states
}

// restackBubbles recomputes age, position, and opacity after a new
// bubble lands. Opacity decays with age but never below the floor.
func restackBubbles(stack []Bubble, floor, height float64) {
	n := len(stack)
	for i := range stack {
		age := n - 1 - i
		stack[i].Age = age
		stack[i].Y = (bubbleAnchorYFrac - float64(age)*bubbleStepYFrac) * height
		stack[i].Opacity = math.Max(floor, 1.0-bubbleOpacityStep*float64(age))
	}
}
