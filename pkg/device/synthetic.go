package device

import (
	"math"
	"math/rand/v2"
	"time"
)

// Station is a fixed synthetic transmitter. It is visible whenever the
// tuned frequency is within half the sample rate of Frequency, and then
// appears at (Frequency - tuned) + Offset.
type Station struct {
	Frequency uint32
	Offset    float64
	Amplitude float64
}

// DefaultStations mimic a few well-known allocations.
var DefaultStations = []Station{
	{Frequency: 100_000_000, Offset: 200_000, Amplitude: 0.7},  // FM broadcast
	{Frequency: 144_390_000, Offset: 0, Amplitude: 0.9},        // APRS
	{Frequency: 144_390_000, Offset: 25_000, Amplitude: 0.3},   // weak neighbour
	{Frequency: 162_550_000, Offset: 0, Amplitude: 0.8},        // NOAA weather
	{Frequency: 433_000_000, Offset: -100_000, Amplitude: 0.6}, // ISM
	{Frequency: 1_090_000_000, Offset: 0, Amplitude: 0.7},      // ADS-B
}

const (
	// DefaultBatchSize is the number of IQ samples per synthetic batch.
	DefaultBatchSize = 16384
	noiseAmplitude   = 0.05
	demoAmplitude    = 0.5
	demoSwing        = 100_000.0
)

// Generator produces deterministic synthetic IQ: a set of carriers around
// the tuned frequency, a slowly sweeping demo carrier and uniform noise.
// Carrier phases run on across batches.
type Generator struct {
	rng      *rand.Rand
	stations []Station
	phases   []float64 // one per station, then the demo carrier
	frame    uint32
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64, stations []Station) *Generator {
	if stations == nil {
		stations = DefaultStations
	}
	return &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		stations: stations,
		phases:   make([]float64, len(stations)+1),
	}
}

// Generate appends n samples for the given tuning to dst.
func (g *Generator) Generate(dst []complex64, center, rate uint32, n int) []complex64 {
	start := len(dst)
	for i := 0; i < n; i++ {
		re := (g.rng.Float64() - 0.5) * 2 * noiseAmplitude
		im := (g.rng.Float64() - 0.5) * 2 * noiseAmplitude
		dst = append(dst, complex(float32(re), float32(im)))
	}
	if rate == 0 {
		g.frame++
		return dst
	}

	out := dst[start:]
	half := int64(rate / 2)
	for k, st := range g.stations {
		diff := int64(st.Frequency) - int64(center)
		if diff <= -half || diff >= half {
			continue
		}
		g.phases[k] = addTone(out, float64(diff)+st.Offset, st.Amplitude, rate, g.phases[k])
	}

	demo := math.Sin(float64(g.frame)*0.01) * demoSwing
	last := len(g.phases) - 1
	g.phases[last] = addTone(out, demo, demoAmplitude, rate, g.phases[last])

	g.frame++
	return dst
}

// addTone mixes a complex exponential into buf starting at phase and
// returns the phase after the last sample.
func addTone(buf []complex64, offset, amp float64, rate uint32, phase float64) float64 {
	omega := 2 * math.Pi * offset / float64(rate)
	for i := range buf {
		s, c := math.Sincos(phase)
		buf[i] += complex(float32(amp*c), float32(amp*s))
		phase += omega
	}
	return math.Mod(phase, 2*math.Pi)
}

// BatchDuration is how long n samples last at rate.
func BatchDuration(n int, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
