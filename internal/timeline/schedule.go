package timeline

import (
	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/script"
)

// FrameState is one output frame of a schedule. Positions and bubble
// stacks live on the owning LineSegment; a frame carries only the
// values that change frame to frame.
type FrameState struct {
	Index     int            `json:"index"`
	TimeSec   float64        `json:"time_sec"`
	Line      int            `json:"line"`
	Speaker   script.Speaker `json:"speaker"`
	Emotion   script.Emotion `json:"emotion"`
	MouthOpen bool           `json:"mouth_open"`
	FloatY    float64        `json:"float_y"`
	ShakeX    float64        `json:"shake_x"`
}

// CharacterState places one cast member for a line's frame span. X and
// Y locate the slot center; Height is the unscaled sprite height in
// pixels.
type CharacterState struct {
	Speaker    script.Speaker `json:"speaker"`
	Emotion    script.Emotion `json:"emotion"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Height     float64        `json:"height"`
	Scale      float64        `json:"scale"`
	Brightness float64        `json:"brightness"`
	Foreground bool           `json:"foreground"`
}

// Bubble is one chat message in the tall layout's accumulation. Age 0
// is the line currently being spoken; older bubbles sit higher with
// reduced opacity.
type Bubble struct {
	Line    int            `json:"line"`
	Speaker script.Speaker `json:"speaker"`
	Text    string         `json:"text"`
	Side    Side           `json:"side"`
	Age     int            `json:"age"`
	Y       float64        `json:"y"`
	Opacity float64        `json:"opacity"`
}

// LineSegment is the schedule's per-line record: the frame span
// attributable to the line plus its layout decoration. EndFrame is
// exclusive.
type LineSegment struct {
	Line          int              `json:"line"`
	Speaker       script.Speaker   `json:"speaker"`
	Emotion       script.Emotion   `json:"emotion"`
	Caption       string           `json:"caption"`
	Silence       bool             `json:"silence,omitempty"`
	StartFrame    int              `json:"start_frame"`
	EndFrame      int              `json:"end_frame"`
	StartTime     float64          `json:"start_time"`
	AudioPath     string           `json:"audio_path"`
	AudioDuration float64          `json:"audio_duration"`
	Characters    []CharacterState `json:"characters"`
	Bubbles       []Bubble         `json:"bubbles,omitempty"`
}

// FrameSpan returns the number of frames attributable to the line.
func (s *LineSegment) FrameSpan() int {
	return s.EndFrame - s.StartFrame
}

// RenderSchedule is the complete frame plan for one layout. Built once
// by Compose and never mutated; any input change requires a rebuild.
// Motion records the parameters the frames were evaluated with, so a
// renderer can emit continuous motion expressions that agree with the
// per-frame values.
type RenderSchedule struct {
	Layout    Layout        `json:"layout"`
	FrameRate int           `json:"frame_rate"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Motion    motion.Params `json:"motion"`
	Frames    []FrameState  `json:"frames"`
	Segments  []LineSegment `json:"segments"`
}

// FrameCount returns the total number of output frames.
func (s *RenderSchedule) FrameCount() int {
	return len(s.Frames)
}

// Duration returns the schedule length in seconds.
func (s *RenderSchedule) Duration() float64 {
	return float64(len(s.Frames)) / float64(s.FrameRate)
}
