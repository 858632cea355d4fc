// Package motion provides the procedural animation primitives used by
// the timeline compositor and the renderer: an ambient sinusoidal bob,
// a per-run randomized tremble, and ping-pong bounce interpolation.
//
// Everything here is a pure function of its inputs. The only
// randomness is the shake frequency, drawn once per run and persisted
// with the run so re-renders reproduce identical motion.
package motion

import (
	"math"
	"math/rand"
)

// Ambient bob defaults (position units, Hz).
const (
	DefaultFloatAmplitude = 8.0
	DefaultFloatFrequency = 0.4
)

// Tremble defaults. The frequency is drawn per run from the band.
const (
	DefaultShakeAmplitude = 3.0
	ShakeFrequencyMin     = 2.5
	ShakeFrequencyMax     = 3.0
)

// Params bundles the motion parameters for one run. ShakeFrequency is
// the per-run draw; the rest are fixed defaults unless overridden.
type Params struct {
	FloatAmplitude float64 `json:"floatAmplitude"`
	FloatFrequency float64 `json:"floatFrequency"`
	ShakeAmplitude float64 `json:"shakeAmplitude"`
	ShakeFrequency float64 `json:"shakeFrequency"`
}

// DefaultParams returns the standard motion parameters with the shake
// frequency drawn from rng.
func DefaultParams(rng *rand.Rand) Params {
	return Params{
		FloatAmplitude: DefaultFloatAmplitude,
		FloatFrequency: DefaultFloatFrequency,
		ShakeAmplitude: DefaultShakeAmplitude,
		ShakeFrequency: DrawShakeFrequency(rng),
	}
}

// Float returns the ambient bob offset at absolute time t.
func Float(t, amplitude, frequency float64) float64 {
	return amplitude * math.Sin(2*math.Pi*frequency*t)
}

// Shake returns the tremble offset at absolute time t for the run's
// drawn frequency. Same waveform as Float; kept separate because the
// two decorate different elements with independent parameters.
func Shake(t, amplitude, frequency float64) float64 {
	return amplitude * math.Sin(2*math.Pi*frequency*t)
}

// DrawShakeFrequency draws the per-run tremble frequency uniformly
// from [ShakeFrequencyMin, ShakeFrequencyMax).
func DrawShakeFrequency(rng *rand.Rand) float64 {
	return ShakeFrequencyMin + rng.Float64()*(ShakeFrequencyMax-ShakeFrequencyMin)
}

// Bounce ping-pongs along the line from start to end over the given
// total duration: the normalized position t/total is reduced modulo 2
// and reflected, then mapped onto [start, end]. Continuous at the
// turnaround; a full out-and-back cycle takes 2*total.
func Bounce(t, total, start, end float64) float64 {
	if total <= 0 {
		return start
	}
	return start + (end-start)*fold(t/total)
}

// fold reduces a position modulo 2 and reflects values above 1 back
// into [0, 1].
func fold(pos float64) float64 {
	m := math.Mod(pos, 2)
	if m < 0 {
		m += 2
	}
	if m > 1 {
		m = 2 - m
	}
	return m
}
