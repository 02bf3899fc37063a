package dsp

import "math"

// MovingAverage returns a centred boxcar average of in. Each output sample
// averages in[i-w/2 : i+w/2+1], truncated at the batch edges, so the output
// has the same length as the input. A window of one or less copies in.
func MovingAverage(in []float32, w int) []float32 {
	out := make([]float32, len(in))
	if w <= 1 {
		copy(out, in)
		return out
	}
	half := w / 2
	for i := range in {
		start := i - half
		if start < 0 {
			start = 0
		}
		end := i + half + 1
		if end > len(in) {
			end = len(in)
		}
		var sum float32
		for _, v := range in[start:end] {
			sum += v
		}
		out[i] = sum / float32(end-start)
	}
	return out
}

// Deemphasis is a single-pole IIR lowpass whose memory persists across
// calls.
type Deemphasis struct {
	alpha float64
	state float64
}

// NewDeemphasis builds a filter for time constant tau at the given rate.
func NewDeemphasis(tau float64, rate float64) *Deemphasis {
	return &Deemphasis{alpha: DeemphasisAlpha(tau, rate)}
}

// DeemphasisAlpha returns 1 / (1 + 2*pi*tau*rate).
func DeemphasisAlpha(tau float64, rate float64) float64 {
	return 1.0 / (1.0 + 2*math.Pi*tau*rate)
}

// Alpha returns the filter coefficient.
func (d *Deemphasis) Alpha() float64 { return d.alpha }

// Process filters buf in place.
func (d *Deemphasis) Process(buf []float32) []float32 {
	for i, x := range buf {
		d.state = d.state*(1-d.alpha) + float64(x)*d.alpha
		buf[i] = float32(d.state)
	}
	return buf
}

// Reset clears the filter memory.
func (d *Deemphasis) Reset() { d.state = 0 }
