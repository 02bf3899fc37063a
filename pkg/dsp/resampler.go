package dsp

// Resampler converts between sample rates by linear interpolation. The
// fractional read position left over at the end of one call is the
// starting position of the next.
type Resampler struct {
	inRate  int
	outRate int
	ratio   float64
	phase   float64
}

// NewResampler returns a resampler from inRate to outRate.
func NewResampler(inRate, outRate int) *Resampler {
	r := &Resampler{}
	r.SetRates(inRate, outRate)
	return r
}

// Ratio returns outRate / inRate.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Phase returns the carried fractional position.
func (r *Resampler) Phase() float64 { return r.phase }

// Rates returns the configured input and output rates.
func (r *Resampler) Rates() (int, int) { return r.inRate, r.outRate }

// SetRates changes the conversion ratio and resets the phase. Non-positive
// rates leave a pass-through ratio of one.
func (r *Resampler) SetRates(inRate, outRate int) {
	r.inRate, r.outRate = inRate, outRate
	r.ratio = 1
	if inRate > 0 && outRate > 0 {
		r.ratio = float64(outRate) / float64(inRate)
	}
	r.Reset()
}

// Reset zeroes the phase.
func (r *Resampler) Reset() { r.phase = 0 }

// Resample returns roughly len(in)*Ratio() interpolated samples.
func (r *Resampler) Resample(in []float32) []float32 {
	if len(in) == 0 {
		return []float32{}
	}
	step := 1 / r.ratio
	last := float64(len(in) - 1)
	out := make([]float32, 0, int(float64(len(in))*r.ratio)+1)

	pos := r.phase
	for pos < last {
		idx := int(pos)
		frac := float32(pos - float64(idx))
		out = append(out, in[idx]*(1-frac)+in[idx+1]*frac)
		pos += step
	}

	r.phase = pos - last
	if r.phase < 0 {
		r.phase = 0
	}
	return out
}
