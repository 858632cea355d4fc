// Package timeline builds frame-indexed render schedules from dialogue
// lines, measured audio durations, and viseme tracks.
package timeline

import (
	"github.com/harube/kakeai/internal/script"
)

// Layout selects the output geometry and decoration rules.
type Layout string

const (
	LayoutWide Layout = "wide"
	LayoutTall Layout = "tall"
)

// Side is the horizontal anchor for a character or bubble.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// SideOf returns the fixed side for a cast member: tsuno stands left,
// megane right, in both layouts.
func SideOf(s script.Speaker) Side {
	if s == script.SpeakerTsuno {
		return SideLeft
	}
	return SideRight
}

// DefaultFrameRate is the output frame rate for both layouts.
const DefaultFrameRate = 24

// Caption rendering constants shared by both layouts.
const (
	CaptionFontSize    = 48
	CaptionBorderWidth = 2
)

// Active-speaker emphasis. Recomputed per line, held for the line's
// whole frame span.
const (
	ForegroundBrightness = 1.0
	ForegroundScale      = 1.1
	BackgroundBrightness = 0.5
	BackgroundScale      = 1.0
)

// Geometry fractions, relative to the layout's width/height. Character
// Y values are slot centers; bubble Y values are box tops.
const (
	wideCharHeightFrac  = 0.70
	wideCharCenterYFrac = 0.50
	wideLeftXFrac       = 0.25
	wideRightXFrac      = 0.75
	wideCaptionY        = 0.88

	tallCharHeightFrac    = 0.30
	tallTopCenterYFrac    = 0.20
	tallBottomCenterYFrac = 0.70

	bubbleAnchorYFrac = 0.86
	bubbleStepYFrac   = 0.11
	bubbleOpacityStep = 0.15
)

// Dimensions returns the pixel size of the layout.
func (l Layout) Dimensions() (width, height int) {
	if l == LayoutTall {
		return 1080, 1920
	}
	return 1920, 1080
}

// CaptionY returns the vertical center of the wide caption region in
// pixels.
func (l Layout) CaptionY() float64 {
	_, h := l.Dimensions()
	return wideCaptionY * float64(h)
}
