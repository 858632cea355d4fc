package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageChainOrder(t *testing.T) {
	want := []Stage{
		StageScriptPending,
		StageScriptReady,
		StageBackgroundReady,
		StageAudioReady,
		StageScheduleReady,
		StageRendered,
		StagePublished,
		StageDone,
	}
	s := StageScriptPending
	for i := 1; i < len(want); i++ {
		next, ok := s.Next()
		assert.True(t, ok, "stage %s should have a successor", s)
		assert.Equal(t, want[i], next)
		s = next
	}
	_, ok := StageDone.Next()
	assert.False(t, ok)
	_, ok = StageFailed.Next()
	assert.False(t, ok)
}

func TestCanTransitionForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(StageScriptPending, StageScriptReady))
	assert.True(t, CanTransition(StageScriptReady, StageBackgroundReady))
	assert.True(t, CanTransition(StageRendered, StagePublished))
	assert.True(t, CanTransition(StagePublished, StageDone))

	// no skipping
	assert.False(t, CanTransition(StageScriptPending, StageBackgroundReady))
	assert.False(t, CanTransition(StageScriptReady, StageAudioReady))
	assert.False(t, CanTransition(StageScriptPending, StageDone))

	// no going backwards on the chain
	assert.False(t, CanTransition(StageAudioReady, StageBackgroundReady))
	assert.False(t, CanTransition(StageDone, StagePublished))

	// no self loops
	assert.False(t, CanTransition(StageAudioReady, StageAudioReady))
}

func TestCanTransitionFailed(t *testing.T) {
	for _, s := range []Stage{
		StageScriptPending, StageScriptReady, StageBackgroundReady,
		StageAudioReady, StageScheduleReady, StageRendered,
		StagePublished, StageDone,
	} {
		assert.True(t, CanTransition(s, StageFailed), "from %s", s)
	}
	assert.False(t, CanTransition(StageFailed, StageFailed))
	// recovery restores the recorded stage directly, not through the
	// transition table
	assert.False(t, CanTransition(StageFailed, StageScriptReady))
	assert.False(t, CanTransition(StageFailed, StageDone))
}

func TestCanTransitionScriptEditRewind(t *testing.T) {
	assert.True(t, CanTransition(StageScheduleReady, StageScriptReady))
	assert.True(t, CanTransition(StageRendered, StageScriptReady))

	assert.False(t, CanTransition(StageAudioReady, StageScriptReady))
	assert.False(t, CanTransition(StagePublished, StageScriptReady))
	assert.False(t, CanTransition(StageDone, StageScriptReady))
}

func TestCanTransitionUnknownStage(t *testing.T) {
	assert.False(t, CanTransition(Stage("bogus"), StageScriptReady))
	assert.False(t, CanTransition(StageScriptPending, Stage("bogus")))
}

func TestStagePredicates(t *testing.T) {
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageRendered.Terminal())

	assert.True(t, StageFailed.Valid())
	assert.True(t, StageScheduleReady.Valid())
	assert.False(t, Stage("bogus").Valid())

	assert.True(t, StageRendered.After(StageScheduleReady))
	assert.True(t, StageRendered.After(StageRendered))
	assert.False(t, StageScriptReady.After(StageAudioReady))
	assert.False(t, StageFailed.After(StageScriptPending))
}
