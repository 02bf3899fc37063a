package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// FloorDB is reported for bins whose magnitude is at or below MinMagnitude.
	FloorDB = -100.0
	// MinMagnitude avoids taking the log of zero.
	MinMagnitude = 1e-10
)

// Spectrum computes Hann-windowed, DC-centred magnitude spectra in dB.
// The transform size is fixed per instance and scratch buffers are reused
// between calls, so a Spectrum must not be shared between goroutines.
type Spectrum struct {
	size   int
	fft    *fourier.CmplxFFT
	window []float64
	in     []complex128
	out    []complex128
}

// NewSpectrum returns a transform of the given size. A size below one
// yields a transform that always returns an empty row.
func NewSpectrum(size int) *Spectrum {
	if size < 0 {
		size = 0
	}
	s := &Spectrum{
		size:   size,
		window: make([]float64, size),
		in:     make([]complex128, size),
		out:    make([]complex128, size),
	}
	for i := range s.window {
		s.window[i] = 1
	}
	// window.Hann divides by size-1
	if size >= 2 {
		window.Hann(s.window)
	}
	if size > 0 {
		s.fft = fourier.NewCmplxFFT(size)
	}
	return s
}

// Size returns the number of bins produced by Process.
func (s *Spectrum) Size() int { return s.size }

// Process returns a freshly allocated row of Size() dB values for batch.
// Shorter batches are zero padded, longer ones truncated. Bin i of the
// result holds FFT bin (i + size/2) mod size so that DC sits in the middle.
func (s *Spectrum) Process(batch []complex64) []float32 {
	row := make([]float32, s.size)
	if s.size == 0 {
		return row
	}

	for i := range s.in {
		if i < len(batch) {
			v := complex128(batch[i])
			s.in[i] = complex(real(v)*s.window[i], imag(v)*s.window[i])
		} else {
			s.in[i] = 0
		}
	}

	s.fft.Coefficients(s.out, s.in)

	half := s.size / 2
	for i := range row {
		mag := cmplx.Abs(s.out[(i+half)%s.size])
		if mag <= MinMagnitude {
			row[i] = FloorDB
			continue
		}
		row[i] = float32(20 * math.Log10(mag))
	}
	return row
}

// NormalizeDB maps dB values into 0..255 between lo and hi, clipping
// outside that range. It is used to quantize rows for the web display.
func NormalizeDB(row []float32, lo, hi float32) []byte {
	out := make([]byte, len(row))
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range row {
		n := (v - lo) / span
		switch {
		case n <= 0:
			out[i] = 0
		case n >= 1:
			out[i] = 255
		default:
			out[i] = byte(n * 255)
		}
	}
	return out
}
