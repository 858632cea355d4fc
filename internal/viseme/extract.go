// Package viseme derives per-frame mouth states from audio loudness.
//
// Each output frame covers 1/frameRate seconds of the waveform; a frame
// is "open" when its RMS amplitude, normalized to the waveform peak,
// exceeds the open threshold. A debounce pass removes single-frame
// chatter caused by transient noise.
package viseme

import (
	"math"

	"github.com/harube/kakeai/internal/audio"
)

// Default extraction parameters.
const (
	DefaultOpenThreshold = 0.15
	DefaultMinOpenFrames = 2
)

// Track is the ordered per-frame mouth-state sequence for one clip,
// aligned 1:1 with the clip duration at the target frame rate.
type Track []bool

// Extract computes the mouth-state track for a waveform. The result
// always has exactly round(duration × frameRate) elements; the trailing
// partial window, if any, is zero-padded before RMS computation. Pure
// function: no state is carried across calls.
func Extract(w *audio.Waveform, frameRate int, openThreshold float64, minOpenFrames int) Track {
	frames := int(math.Round(w.Duration() * float64(frameRate)))
	if frames <= 0 {
		return Track{}
	}

	track := make(Track, frames)

	peak := w.Peak()
	if peak == 0 {
		// Pure silence never opens the mouth
		return track
	}

	samplesPerFrame := float64(w.SampleRate) / float64(frameRate)
	for i := 0; i < frames; i++ {
		start := int(math.Round(float64(i) * samplesPerFrame))
		end := int(math.Round(float64(i+1) * samplesPerFrame))
		windowLen := end - start
		if windowLen <= 0 {
			continue
		}

		var sum float64
		for j := start; j < end && j < len(w.Samples); j++ {
			sum += w.Samples[j] * w.Samples[j]
		}
		rms := math.Sqrt(sum / float64(windowLen))

		track[i] = rms/peak > openThreshold
	}

	debounce(track, minOpenFrames)
	return track
}

// debounce forces any open run shorter than minOpenFrames to closed,
// eliminating one-frame flicker.
func debounce(track Track, minOpenFrames int) {
	if minOpenFrames <= 1 {
		return
	}
	i := 0
	for i < len(track) {
		if !track[i] {
			i++
			continue
		}
		j := i
		for j < len(track) && track[j] {
			j++
		}
		if j-i < minOpenFrames {
			for k := i; k < j; k++ {
				track[k] = false
			}
		}
		i = j
	}
}

// OpenFrames returns the number of open frames in the track.
func (t Track) OpenFrames() int {
	var n int
	for _, open := range t {
		if open {
			n++
		}
	}
	return n
}

// Run is a half-open frame interval [Start, End) with the mouth open.
type Run struct {
	Start int
	End   int
}

// OpenRuns returns the open intervals of the track in order. Renderers
// use these to drive mouth-sprite switching without walking every
// frame.
func (t Track) OpenRuns() []Run {
	var runs []Run
	i := 0
	for i < len(t) {
		if !t[i] {
			i++
			continue
		}
		j := i
		for j < len(t) && t[j] {
			j++
		}
		runs = append(runs, Run{Start: i, End: j})
		i = j
	}
	return runs
}
