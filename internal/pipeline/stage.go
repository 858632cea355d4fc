package pipeline

import "errors"

// Stage marks how far a run has progressed. Stages form a fixed chain;
// each successful step moves the run exactly one stage forward and
// persists the result, so a run can be picked up again from any point.
type Stage string

const (
	StageScriptPending   Stage = "script_pending"
	StageScriptReady     Stage = "script_ready"
	StageBackgroundReady Stage = "background_ready"
	StageAudioReady      Stage = "audio_ready"
	StageScheduleReady   Stage = "schedule_ready"
	StageRendered        Stage = "rendered"
	StagePublished       Stage = "published"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

var ErrIllegalTransition = errors.New("illegal stage transition")

// stageChain is the forward order. Failed sits outside the chain.
var stageChain = []Stage{
	StageScriptPending,
	StageScriptReady,
	StageBackgroundReady,
	StageAudioReady,
	StageScheduleReady,
	StageRendered,
	StagePublished,
	StageDone,
}

func (s Stage) index() int {
	for i, c := range stageChain {
		if c == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s == StageFailed || s.index() >= 0
}

// Terminal reports whether the run has nothing left to do on the
// normal path.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s on the chain. ok is false for
// Done, Failed, and unknown stages.
func (s Stage) Next() (next Stage, ok bool) {
	i := s.index()
	if i < 0 || i == len(stageChain)-1 {
		return "", false
	}
	return stageChain[i+1], true
}

// After reports whether s sits at or past other on the chain. Failed
// is after nothing.
func (s Stage) After(other Stage) bool {
	i, j := s.index(), other.index()
	return i >= 0 && j >= 0 && i >= j
}

// CanTransition reports whether a run may move from one stage to
// another. Legal moves are one step forward along the chain, Failed
// from any live stage, and the step back to ScriptReady from
// ScheduleReady or Rendered that an edited script forces: derived
// audio, schedules, and renders are stale once the dialogue changes,
// so the run rewinds and walks the chain again.
func CanTransition(from, to Stage) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if to == StageFailed {
		return from != StageFailed
	}
	if next, ok := from.Next(); ok && next == to {
		return true
	}
	if to == StageScriptReady {
		return from == StageScheduleReady || from == StageRendered
	}
	return false
}
