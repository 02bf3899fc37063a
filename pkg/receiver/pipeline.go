package receiver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/metrics"
	"github.com/ocupoint/sdrrx/pkg/ring"
)

// Config sizes the pipeline.
type Config struct {
	FFTSize       int
	WaterfallRows int
	BatchSize     int
	BatchChannel  int
	AudioRing     int
	// StreamChannel is the network channel capacity; zero disables it.
	StreamChannel int
	Resample      bool
	LegacyFM      bool
	Pace          bool
	RecvTimeout   time.Duration
	Seed          uint64
}

// DefaultConfig returns the stock sizes.
func DefaultConfig() Config {
	return Config{
		FFTSize:       2048,
		WaterfallRows: 500,
		BatchSize:     device.DefaultBatchSize,
		BatchChannel:  64,
		AudioRing:     48000,
		Resample:      true,
		Pace:          true,
		RecvTimeout:   DefaultRecvTimeout,
		Seed:          1,
	}
}

// Options wire the pipeline's collaborators.
type Options struct {
	Config   Config
	Settings device.Settings
	Mode     Mode
	// Device may be nil to use the synthetic generator.
	Device   device.Device
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Pipeline owns the acquisition and processing goroutines and the channels
// between them.
type Pipeline struct {
	state    *State
	cmds     *Queue
	audio    *ring.Ring
	batches  chan Batch
	network  chan []float32
	shutdown atomic.Bool
	stats    Stats
	logger   *log.Logger

	acq  *Acquisition
	proc *Processing

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New builds a pipeline without starting it.
func New(opts Options) *Pipeline {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.BatchChannel <= 0 {
		cfg.BatchChannel = def.BatchChannel
	}
	if cfg.AudioRing <= 0 {
		cfg.AudioRing = def.AudioRing
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	p := &Pipeline{
		state: NewState(StateOptions{
			Settings:      opts.Settings,
			WaterfallRows: cfg.WaterfallRows,
			Mode:          opts.Mode,
		}),
		cmds:    NewQueue(),
		audio:   ring.New(cfg.AudioRing),
		batches: make(chan Batch, cfg.BatchChannel),
		logger:  opts.Logger,
		done:    make(chan struct{}),
	}
	if cfg.StreamChannel > 0 {
		p.network = make(chan []float32, cfg.StreamChannel)
	}

	p.acq = NewAcquisition(AcquisitionOptions{
		State:     p.state,
		Commands:  p.cmds,
		Out:       p.batches,
		Device:    opts.Device,
		Generator: device.NewGenerator(cfg.Seed, nil),
		Recorder:  opts.Recorder,
		BatchSize: cfg.BatchSize,
		Pace:      cfg.Pace,
		Shutdown:  &p.shutdown,
		Stats:     &p.stats,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger,
	})

	p.proc = NewProcessing(ProcessingOptions{
		State:       p.state,
		In:          p.batches,
		Audio:       p.audio,
		Network:     p.network,
		Recorder:    opts.Recorder,
		FFTSize:     cfg.FFTSize,
		Resample:    cfg.Resample,
		LegacyFM:    cfg.LegacyFM,
		RecvTimeout: cfg.RecvTimeout,
		Shutdown:    &p.shutdown,
		Stats:       &p.stats,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger,
	})
	return p
}

// State returns the shared receiver state.
func (p *Pipeline) State() *State { return p.state }

// Send queues a command for the acquisition stage.
func (p *Pipeline) Send(cmd Command) error { return p.cmds.Send(cmd) }

// Audio returns the playback ring. The audio backend is its only consumer.
func (p *Pipeline) Audio() *ring.Ring { return p.audio }

// Network returns the audio channel for network distribution, or nil.
func (p *Pipeline) Network() <-chan []float32 { return p.network }

// ShutdownFlag is the process-wide cooperative stop flag.
func (p *Pipeline) ShutdownFlag() *atomic.Bool { return &p.shutdown }

// Stats returns the current counters.
func (p *Pipeline) Stats() StatsSnapshot { return p.stats.Snapshot() }

// Start launches both stages.
func (p *Pipeline) Start() {
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.acq.Run()
	}()
	go func() {
		defer p.wg.Done()
		p.proc.Run()
	}()
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
}

// Stop sets the shutdown flag. Stages finish their current batch and exit.
func (p *Pipeline) Stop() {
	p.once.Do(func() {
		p.logger.Info("shutdown requested")
		p.cmds.Close()
	})
	p.shutdown.Store(true)
}

// Done is closed once both stages have exited.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Wait blocks until both stages have exited. Call it only after Start.
func (p *Pipeline) Wait() { <-p.done }
