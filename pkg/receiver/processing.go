package receiver

import (
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/metrics"
	"github.com/ocupoint/sdrrx/pkg/ring"
)

// DefaultRecvTimeout bounds how long processing waits for a batch before
// rechecking the shutdown flag.
const DefaultRecvTimeout = 100 * time.Millisecond

// ProcessingOptions configure the processing stage. Audio, Network and
// Recorder are optional sinks.
type ProcessingOptions struct {
	State    *State
	In       <-chan Batch
	Audio    *ring.Ring
	Network  chan<- []float32
	Recorder Recorder
	FFTSize  int
	// Resample converts demodulated audio from the IQ rate to dsp.AudioRate.
	Resample bool
	// LegacyFM selects the stateless discriminator for the FM modes.
	LegacyFM    bool
	RecvTimeout time.Duration
	Shutdown    *atomic.Bool
	Stats       *Stats
	Metrics     *metrics.Metrics
	Logger      *log.Logger
}

// Processing consumes IQ batches: it updates the spectrum and waterfall,
// demodulates according to the current mode and fans the audio out.
// Every DSP object here is owned by the processing goroutine.
type Processing struct {
	state    *State
	in       <-chan Batch
	audio    *ring.Ring
	network  chan<- []float32
	recorder Recorder
	timeout  time.Duration
	shutdown *atomic.Bool
	stats    *Stats
	metrics  *metrics.Metrics
	logger   *log.Logger
	netDrops *throttle
	recDrops *throttle

	spectrum  *dsp.Spectrum
	demods    map[Mode]dsp.Demodulator
	mode      Mode
	resample  bool
	resampler *dsp.Resampler
}

// NewProcessing builds the stage.
func NewProcessing(opts ProcessingOptions) *Processing {
	if opts.FFTSize <= 0 {
		opts.FFTSize = 2048
	}
	if opts.RecvTimeout <= 0 {
		opts.RecvTimeout = DefaultRecvTimeout
	}
	if opts.Shutdown == nil {
		opts.Shutdown = new(atomic.Bool)
	}
	if opts.Stats == nil {
		opts.Stats = new(Stats)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	logger := opts.Logger.WithPrefix("processing")

	demods := map[Mode]dsp.Demodulator{
		ModeFMNarrow: dsp.NewFM(false),
		ModeFMWide:   dsp.NewFM(true),
		ModeAM:       dsp.AM{},
		ModeUSB:      dsp.NewSSB(true),
		ModeLSB:      dsp.NewSSB(false),
	}
	if opts.LegacyFM {
		demods[ModeFMNarrow] = dsp.StatelessFM{Wide: false}
		demods[ModeFMWide] = dsp.StatelessFM{Wide: true}
	}

	return &Processing{
		state:     opts.State,
		in:        opts.In,
		audio:     opts.Audio,
		network:   opts.Network,
		recorder:  opts.Recorder,
		timeout:   opts.RecvTimeout,
		shutdown:  opts.Shutdown,
		stats:     opts.Stats,
		metrics:   opts.Metrics,
		logger:    logger,
		netDrops:  newThrottle(logger),
		recDrops:  newThrottle(logger),
		spectrum:  dsp.NewSpectrum(opts.FFTSize),
		demods:    demods,
		resample:  opts.Resample,
		resampler: dsp.NewResampler(dsp.AudioRate, dsp.AudioRate),
	}
}

// Run consumes batches until shutdown or until the input channel closes.
func (p *Processing) Run() {
	p.logger.Info("started", "fft", p.spectrum.Size())
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for !p.shutdown.Load() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.timeout)

		select {
		case b, ok := <-p.in:
			if !ok {
				p.logger.Info("acquisition disconnected")
				p.shutdown.Store(true)
				return
			}
			p.Process(b)
		case <-timer.C:
		}
	}
	p.logger.Info("stopped", "processed", p.stats.Processed.Load())
}

// Process handles one batch and returns the audio it produced, if any.
func (p *Processing) Process(b Batch) []float32 {
	start := time.Now()
	defer func() {
		p.stats.Processed.Add(1)
		p.metrics.BatchProcessed(time.Since(start))
	}()

	row := p.spectrum.Process(b.Samples)
	p.state.Update(func(r *Receiver) { r.Spectrum.Push(row) })

	if p.recorder != nil && !p.recorder.Submit(b.Samples) {
		n := p.stats.RecordDropped.Add(1)
		p.metrics.BatchDropped(metrics.StageRecorder)
		p.recDrops.warn("dropping batch, recorder is behind", "dropped", n)
	}

	mode := p.state.Mode()
	demod := p.demodulator(mode)
	if demod == nil {
		return nil
	}

	audio := demod.Demodulate(b.Samples)
	if p.resample && b.SampleRate > 0 {
		if in, _ := p.resampler.Rates(); in != int(b.SampleRate) {
			p.resampler.SetRates(int(b.SampleRate), dsp.AudioRate)
		}
		audio = dsp.ClampAll(p.resampler.Resample(audio))
	}
	if len(audio) == 0 {
		return nil
	}

	if p.audio != nil {
		if dropped := p.audio.PushAll(audio); dropped > 0 {
			p.stats.AudioDropped.Add(uint64(dropped))
			p.metrics.AudioDropped(dropped)
		}
	}
	if p.network != nil {
		select {
		case p.network <- audio:
		default:
			n := p.stats.NetworkDropped.Add(1)
			p.metrics.BatchDropped(metrics.StageNetwork)
			p.netDrops.warn("dropping audio batch, network is behind", "dropped", n)
		}
	}
	return audio
}

// demodulator returns the demodulator for mode, resetting filter state on
// a mode change. Modes without audio return nil.
func (p *Processing) demodulator(mode Mode) dsp.Demodulator {
	d, ok := p.demods[mode]
	if !ok {
		p.mode = mode
		return nil
	}
	if mode != p.mode {
		d.Reset()
		p.resampler.Reset()
		p.mode = mode
	}
	return d
}
