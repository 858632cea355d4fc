package timeline

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harube/kakeai/internal/audio"
	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/script"
	"github.com/harube/kakeai/internal/viseme"
)

func testOptions() Options {
	return DefaultOptions(motion.Params{
		FloatAmplitude: 8,
		FloatFrequency: 0.4,
		ShakeAmplitude: 3,
		ShakeFrequency: 2.75,
	})
}

// entry builds a line whose track length obeys the frame-count law for
// 24 fps.
func entry(idx int, sp script.Speaker, dur float64, skip bool) Entry {
	n := int(math.Round(dur * 24))
	track := make(viseme.Track, n)
	for i := range track {
		track[i] = i%4 < 2
	}
	return Entry{
		Index:      idx,
		Speaker:    sp,
		Emotion:    script.EmotionNormal,
		Caption:    fmt.Sprintf("セリフ%d", idx),
		ShortsSkip: skip,
		Clip: &audio.Clip{
			Path:     fmt.Sprintf("audio/line_%03d.wav", idx),
			Duration: dur,
		},
		Track: track,
	}
}

func TestComposeWideFrameStamping(t *testing.T) {
	e0 := entry(0, script.SpeakerTsuno, 1.0, false)
	e0.Emotion = script.EmotionAngry
	e0.Track = viseme.Track{false, false, true, true, true, true, false, false, false, false, true, true, true, true, false, false, false, false, false, false, true, true, true, false}
	e1 := entry(1, script.SpeakerMegane, 0.5, false)

	s, err := Compose([]Entry{e0, e1}, LayoutWide, testOptions())
	require.NoError(t, err)

	assert.Equal(t, 36, s.FrameCount())
	assert.Equal(t, 1920, s.Width)
	assert.Equal(t, 1080, s.Height)
	assert.InDelta(t, 1.5, s.Duration(), 1e-9)

	require.Len(t, s.Segments, 2)
	assert.Equal(t, 0, s.Segments[0].StartFrame)
	assert.Equal(t, 24, s.Segments[0].EndFrame)
	assert.Equal(t, 24, s.Segments[1].StartFrame)
	assert.Equal(t, 36, s.Segments[1].EndFrame)
	assert.Equal(t, "audio/line_000.wav", s.Segments[0].AudioPath)

	for i, fs := range s.Frames[:24] {
		assert.Equal(t, script.SpeakerTsuno, fs.Speaker)
		assert.Equal(t, script.EmotionAngry, fs.Emotion)
		assert.Equal(t, e0.Track[i], fs.MouthOpen, "frame %d", i)
		assert.Equal(t, 0, fs.Line)
	}
	assert.Equal(t, script.SpeakerMegane, s.Frames[24].Speaker)
	assert.Equal(t, 1, s.Frames[24].Line)

	// Ambient float peaks a quarter period in: t = 0.625s at 0.4 Hz.
	assert.InDelta(t, 0.0, s.Frames[0].FloatY, 1e-9)
	assert.InDelta(t, 8.0, s.Frames[15].FloatY, 1e-9)
	assert.InDelta(t, 0.625, s.Frames[15].TimeSec, 1e-9)
}

func TestComposeWideEmphasis(t *testing.T) {
	e0 := entry(0, script.SpeakerMegane, 1.0, false)
	e0.Emotion = script.EmotionHappy

	s, err := Compose([]Entry{e0}, LayoutWide, testOptions())
	require.NoError(t, err)

	require.Len(t, s.Segments[0].Characters, 2)
	byName := map[script.Speaker]CharacterState{}
	for _, cs := range s.Segments[0].Characters {
		byName[cs.Speaker] = cs
	}

	active := byName[script.SpeakerMegane]
	assert.True(t, active.Foreground)
	assert.Equal(t, ForegroundScale, active.Scale)
	assert.Equal(t, ForegroundBrightness, active.Brightness)
	assert.Equal(t, script.EmotionHappy, active.Emotion)
	assert.Equal(t, wideRightXFrac*1920, active.X)
	assert.Equal(t, wideCharCenterYFrac*1080, active.Y)
	assert.Equal(t, wideCharHeightFrac*1080, active.Height)

	idle := byName[script.SpeakerTsuno]
	assert.False(t, idle.Foreground)
	assert.Equal(t, BackgroundScale, idle.Scale)
	assert.Equal(t, BackgroundBrightness, idle.Brightness)
	assert.Equal(t, script.EmotionNormal, idle.Emotion)
	assert.Equal(t, wideLeftXFrac*1920, idle.X)
}

func TestComposeTallDropsSkipLinesOverCeiling(t *testing.T) {
	entries := []Entry{
		entry(0, script.SpeakerTsuno, 100, false),
		entry(1, script.SpeakerMegane, 30, true),
		entry(2, script.SpeakerTsuno, 70, false),
	}

	s, err := Compose(entries, LayoutTall, testOptions())
	require.NoError(t, err)

	require.Len(t, s.Segments, 2)
	assert.Equal(t, 0, s.Segments[0].Line)
	assert.Equal(t, 2, s.Segments[1].Line)
	assert.Equal(t, (100+70)*24, s.FrameCount())
	assert.InDelta(t, 170.0, s.Duration(), 1e-9)
}

func TestComposeTallSinglePassPolicy(t *testing.T) {
	// Dropping the flagged line still leaves 185s. No further lines
	// are removed.
	entries := []Entry{
		entry(0, script.SpeakerTsuno, 100, false),
		entry(1, script.SpeakerMegane, 10, true),
		entry(2, script.SpeakerTsuno, 85, false),
	}

	s, err := Compose(entries, LayoutTall, testOptions())
	require.NoError(t, err)
	require.Len(t, s.Segments, 2)
	assert.InDelta(t, 185.0, s.Duration(), 1e-9)
}

func TestComposeTallKeepsSkipLinesUnderCeiling(t *testing.T) {
	entries := []Entry{
		entry(0, script.SpeakerTsuno, 50, false),
		entry(1, script.SpeakerMegane, 30, true),
		entry(2, script.SpeakerTsuno, 40, false),
	}

	s, err := Compose(entries, LayoutTall, testOptions())
	require.NoError(t, err)
	assert.Len(t, s.Segments, 3)
}

func TestComposeWideNeverDrops(t *testing.T) {
	entries := []Entry{
		entry(0, script.SpeakerTsuno, 100, false),
		entry(1, script.SpeakerMegane, 30, true),
		entry(2, script.SpeakerTsuno, 70, false),
	}

	s, err := Compose(entries, LayoutWide, testOptions())
	require.NoError(t, err)
	assert.Len(t, s.Segments, 3)
	assert.Equal(t, 200*24, s.FrameCount())
}

func TestComposeBubbleAccumulation(t *testing.T) {
	entries := []Entry{
		entry(0, script.SpeakerTsuno, 1.0, false),
		entry(1, script.SpeakerMegane, 1.0, false),
		entry(2, script.SpeakerTsuno, 1.0, false),
	}

	s, err := Compose(entries, LayoutTall, testOptions())
	require.NoError(t, err)
	require.Len(t, s.Segments, 3)

	assert.Len(t, s.Segments[0].Bubbles, 1)
	assert.Len(t, s.Segments[1].Bubbles, 2)

	last := s.Segments[2].Bubbles
	require.Len(t, last, 3)

	assert.Equal(t, 2, last[0].Age)
	assert.Equal(t, 1, last[1].Age)
	assert.Equal(t, 0, last[2].Age)
	assert.InDelta(t, 0.70, last[0].Opacity, 1e-9)
	assert.InDelta(t, 0.85, last[1].Opacity, 1e-9)
	assert.InDelta(t, 1.00, last[2].Opacity, 1e-9)

	assert.Equal(t, SideLeft, last[0].Side)
	assert.Equal(t, SideRight, last[1].Side)
	assert.Equal(t, SideLeft, last[2].Side)

	// Older bubbles sit higher.
	assert.Less(t, last[0].Y, last[1].Y)
	assert.Less(t, last[1].Y, last[2].Y)
	assert.InDelta(t, bubbleAnchorYFrac*1920, last[2].Y, 1e-9)

	// Earlier segments must not see later bubbles.
	assert.Equal(t, 0, s.Segments[0].Bubbles[0].Age)
	assert.InDelta(t, 1.0, s.Segments[0].Bubbles[0].Opacity, 1e-9)
}

func TestComposeBubbleOpacityFloor(t *testing.T) {
	var entries []Entry
	for i := 0; i < 7; i++ {
		sp := script.SpeakerTsuno
		if i%2 == 1 {
			sp = script.SpeakerMegane
		}
		entries = append(entries, entry(i, sp, 1.0, false))
	}

	s, err := Compose(entries, LayoutTall, testOptions())
	require.NoError(t, err)

	last := s.Segments[6].Bubbles
	require.Len(t, last, 7)
	assert.InDelta(t, 0.35, last[0].Opacity, 1e-9)
	assert.InDelta(t, 0.35, last[1].Opacity, 1e-9)
	assert.InDelta(t, 0.40, last[2].Opacity, 1e-9)

	for i := 1; i < len(last); i++ {
		assert.GreaterOrEqual(t, last[i].Opacity, last[i-1].Opacity)
	}
}

func TestComposeSegmentCompleteness(t *testing.T) {
	entries := []Entry{
		entry(0, script.SpeakerTsuno, 2.3, false),
		entry(1, script.SpeakerMegane, 0.5, false),
		entry(2, script.SpeakerTsuno, 1.75, false),
		entry(3, script.SpeakerMegane, 3.1, false),
	}
	byLine := map[int]int{}
	for _, e := range entries {
		byLine[e.Index] = len(e.Track)
	}

	for _, layout := range []Layout{LayoutWide, LayoutTall} {
		s, err := Compose(entries, layout, testOptions())
		require.NoError(t, err)

		total := 0
		for _, seg := range s.Segments {
			assert.Equal(t, byLine[seg.Line], seg.FrameSpan(), "layout %s line %d", layout, seg.Line)
			total += seg.FrameSpan()
		}
		assert.Equal(t, total, s.FrameCount())

		// Frame indices are contiguous and attributed correctly.
		for _, seg := range s.Segments {
			for i := seg.StartFrame; i < seg.EndFrame; i++ {
				assert.Equal(t, seg.Line, s.Frames[i].Line)
			}
		}
	}
}

func TestComposeSilenceSegment(t *testing.T) {
	e := entry(0, script.SpeakerTsuno, audio.SilenceDuration, false)
	e.Clip.Silence = true
	for i := range e.Track {
		e.Track[i] = false
	}

	s, err := Compose([]Entry{e}, LayoutWide, testOptions())
	require.NoError(t, err)
	assert.True(t, s.Segments[0].Silence)
	assert.Equal(t, 12, s.Segments[0].FrameSpan())
	for _, fs := range s.Frames {
		assert.False(t, fs.MouthOpen)
	}
}

func TestComposeMissingClip(t *testing.T) {
	e := entry(0, script.SpeakerTsuno, 1.0, false)
	e.Clip = nil

	_, err := Compose([]Entry{e}, LayoutWide, testOptions())
	assert.ErrorIs(t, err, ErrMissingClip)
}

func TestComposeTrackMismatch(t *testing.T) {
	e := entry(0, script.SpeakerTsuno, 1.0, false)
	e.Track = e.Track[:20]

	_, err := Compose([]Entry{e}, LayoutWide, testOptions())
	assert.ErrorIs(t, err, ErrTrackMismatch)
}

func TestComposeNoEntries(t *testing.T) {
	_, err := Compose(nil, LayoutWide, testOptions())
	assert.ErrorIs(t, err, ErrNoEntries)
}
