package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// De-emphasis time constants.
const (
	TauNarrow = 75e-6 // North America
	TauWide   = 50e-6 // Europe
)

// Moving-average widths applied after demodulation.
const (
	fmNarrowWindow = 4
	fmWideWindow   = 8
	ssbWindow      = 4
)

// BFOOffset is the beat-frequency oscillator offset used for SSB.
const BFOOffset = 1500.0

// Demodulator turns one IQ batch into one audio batch. Output samples are
// always clamped to [-1, 1]. Implementations carry their own filter state
// and belong to a single goroutine.
type Demodulator interface {
	Demodulate(iq []complex64) []float32
	Reset()
}

// FM is a polar discriminator that carries the previous sample and the
// de-emphasis memory across batches, so it emits one audio sample per IQ
// sample with no seam at batch boundaries.
type FM struct {
	prev   complex128
	window int
	deemph *Deemphasis
}

// NewFM returns a persistent FM demodulator. Wide selects the broadcast
// filter settings.
func NewFM(wide bool) *FM {
	f := &FM{prev: 1}
	if wide {
		f.window = fmWideWindow
		f.deemph = NewDeemphasis(TauWide, AudioRate)
	} else {
		f.window = fmNarrowWindow
		f.deemph = NewDeemphasis(TauNarrow, AudioRate)
	}
	return f
}

func (f *FM) Demodulate(iq []complex64) []float32 {
	if len(iq) == 0 {
		return []float32{}
	}
	raw := make([]float32, len(iq))
	for i, s := range iq {
		cur := complex128(s)
		raw[i] = float32(cmplx.Phase(cur*cmplx.Conj(f.prev)) / math.Pi)
		f.prev = cur
	}
	out := MovingAverage(raw, f.window)
	f.deemph.Process(out)
	return ClampAll(out)
}

// Reset restores the initial phase reference and clears de-emphasis.
func (f *FM) Reset() {
	f.prev = 1
	f.deemph.Reset()
}

// DemodulateFMStateless is the simplified discriminator: each batch starts
// from scratch, yielding len(iq)-1 samples and a fresh de-emphasis filter.
// Batches with fewer than two samples give an empty result.
func DemodulateFMStateless(iq []complex64, wide bool) []float32 {
	if len(iq) < 2 {
		return []float32{}
	}
	raw := make([]float32, len(iq)-1)
	for i := 1; i < len(iq); i++ {
		d := complex128(iq[i]) * cmplx.Conj(complex128(iq[i-1]))
		raw[i-1] = float32(cmplx.Phase(d) / math.Pi)
	}
	w, tau := fmNarrowWindow, TauNarrow
	if wide {
		w, tau = fmWideWindow, TauWide
	}
	out := MovingAverage(raw, w)
	NewDeemphasis(tau, AudioRate).Process(out)
	return ClampAll(out)
}

// StatelessFM adapts DemodulateFMStateless to the Demodulator interface.
type StatelessFM struct {
	Wide bool
}

func (s StatelessFM) Demodulate(iq []complex64) []float32 {
	return DemodulateFMStateless(iq, s.Wide)
}

func (StatelessFM) Reset() {}

// AM is an envelope detector with per-batch DC removal.
type AM struct{}

func (AM) Demodulate(iq []complex64) []float32 {
	if len(iq) == 0 {
		return []float32{}
	}
	env := make([]float64, len(iq))
	for i, s := range iq {
		env[i] = cmplx.Abs(complex128(s))
	}
	mean := stat.Mean(env, nil)
	out := make([]float32, len(iq))
	for i, v := range env {
		out[i] = float32(v - mean)
	}
	return ClampAll(out)
}

func (AM) Reset() {}

// SSB mixes against a beat-frequency oscillator whose phase is carried
// across batches.
type SSB struct {
	upper bool
	phase float64
	step  float64
}

// NewSSB returns an upper (USB) or lower (LSB) sideband demodulator.
func NewSSB(upper bool) *SSB {
	return &SSB{
		upper: upper,
		step:  2 * math.Pi * BFOOffset / AudioRate,
	}
}

func (s *SSB) Demodulate(iq []complex64) []float32 {
	if len(iq) == 0 {
		return []float32{}
	}
	mixed := make([]float32, len(iq))
	for i, v := range iq {
		sin, cos := math.Sincos(s.phase)
		re, im := float64(real(v)), float64(imag(v))
		if s.upper {
			mixed[i] = float32(re*cos - im*sin)
		} else {
			mixed[i] = float32(re*cos + im*sin)
		}
		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return ClampAll(MovingAverage(mixed, ssbWindow))
}

// Reset zeroes the oscillator phase.
func (s *SSB) Reset() { s.phase = 0 }
