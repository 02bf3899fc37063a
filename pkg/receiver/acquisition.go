package receiver

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/metrics"
)

// ErrNoRecorder is returned by recording commands when no recorder is wired.
var ErrNoRecorder = errors.New("recording is not available")

// ErrRecordingActive is returned by StartRecording while a capture runs.
var ErrRecordingActive = errors.New("recording already active")

// AcquisitionOptions configure the acquisition stage.
type AcquisitionOptions struct {
	State    *State
	Commands *Queue
	Out      chan<- Batch
	// Device is the radio. When nil, batches come from Generator.
	Device    device.Device
	Generator *device.Generator
	Recorder  Recorder
	BatchSize int
	// Pace sleeps so synthetic batches arrive at the real sample rate.
	Pace     bool
	Shutdown *atomic.Bool
	Stats    *Stats
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Acquisition owns the radio. Each cycle it applies at most one pending
// command, obtains one batch and offers it downstream without blocking.
type Acquisition struct {
	state    *State
	cmds     *Queue
	out      chan<- Batch
	dev      device.Device
	gen      *device.Generator
	recorder Recorder
	size     int
	pace     bool
	shutdown *atomic.Bool
	stats    *Stats
	metrics  *metrics.Metrics
	logger   *log.Logger
	drops    *throttle

	raw    []byte
	filled int
	next   time.Time
	seq    uint64
}

// NewAcquisition builds the stage. Missing optional parts get defaults.
func NewAcquisition(opts AcquisitionOptions) *Acquisition {
	if opts.BatchSize <= 0 {
		opts.BatchSize = device.DefaultBatchSize
	}
	if opts.Generator == nil {
		opts.Generator = device.NewGenerator(1, nil)
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
	logger := opts.Logger.WithPrefix("acquisition")
	return &Acquisition{
		state:    opts.State,
		cmds:     opts.Commands,
		out:      opts.Out,
		dev:      opts.Device,
		gen:      opts.Generator,
		recorder: opts.Recorder,
		size:     opts.BatchSize,
		pace:     opts.Pace,
		shutdown: opts.Shutdown,
		stats:    opts.Stats,
		metrics:  opts.Metrics,
		logger:   logger,
		drops:    newThrottle(logger),
		raw:      make([]byte, 2*opts.BatchSize),
	}
}

// Run loops until the shutdown flag is set or the device ends, then closes
// the output channel so processing sees the disconnect.
func (a *Acquisition) Run() {
	defer close(a.out)
	a.logger.Info("started", "source", a.sourceName(), "batch", a.size)
	a.state.Update(func(r *Receiver) { r.Device.Running = true })
	defer a.state.Update(func(r *Receiver) { r.Device.Running = false })

	for !a.shutdown.Load() {
		if err := a.Step(); err != nil {
			if errors.Is(err, io.EOF) {
				a.logger.Info("source exhausted")
			} else {
				a.logger.Error("source failed", "err", err)
			}
			a.shutdown.Store(true)
			break
		}
	}
	a.logger.Info("stopped", "acquired", a.stats.Acquired.Load(), "dropped", a.stats.Dropped.Load())
}

// Step runs a single cycle.
func (a *Acquisition) Step() error {
	if cmd, ok := a.cmds.TryRecv(); ok {
		a.Apply(cmd)
		if a.shutdown.Load() {
			return nil
		}
	}

	b, ok, err := a.acquire()
	if err != nil || !ok {
		return err
	}
	a.stats.Acquired.Add(1)
	a.metrics.BatchAcquired()

	select {
	case a.out <- b:
	default:
		n := a.stats.Dropped.Add(1)
		a.metrics.BatchDropped(metrics.StageProcessing)
		a.drops.warn("dropping batch, processing is behind", "dropped", n)
	}
	return nil
}

func (a *Acquisition) sourceName() string {
	if a.dev == nil {
		return "synthetic"
	}
	return fmt.Sprintf("%T", a.dev)
}

// acquire returns the next complete batch. ok is false when the device
// has not yet delivered a full block.
func (a *Acquisition) acquire() (Batch, bool, error) {
	freq, rate := a.state.Tuning()
	b := Batch{Frequency: freq, SampleRate: rate}

	if a.dev == nil {
		b.Samples = a.gen.Generate(make([]complex64, 0, a.size), freq, rate, a.size)
		if a.pace {
			a.wait(device.BatchDuration(a.size, rate))
		}
	} else {
		n, err := a.dev.ReadBlock(a.raw[a.filled:])
		a.filled += n
		if err != nil {
			if device.IsTimeout(err) {
				return b, false, nil
			}
			return b, false, fmt.Errorf("read block: %w", err)
		}
		if a.filled < len(a.raw) {
			return b, false, nil
		}
		b.Samples = dsp.ConvertU8(make([]complex64, 0, a.size), a.raw)
		a.filled = 0
	}

	a.seq++
	b.Seq = a.seq
	return b, true, nil
}

// wait sleeps until the next batch is due, resynchronising after a stall.
// A queued command ends the sleep early; the schedule is kept, so the next
// wait absorbs the difference.
func (a *Acquisition) wait(d time.Duration) {
	now := time.Now()
	if a.next.IsZero() || now.Sub(a.next) > d {
		a.next = now
	}
	a.next = a.next.Add(d)
	pause := time.Until(a.next)
	if pause <= 0 {
		return
	}
	t := time.NewTimer(pause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-a.cmds.Ready():
	}
}

// Apply clamps and applies cmd. On failure the state is left unchanged
// and the error is reported through the log and the status line.
func (a *Acquisition) Apply(cmd Command) {
	status, err := a.apply(cmd)
	a.metrics.Command(cmd.Kind(), err)
	if err != nil {
		a.logger.Error("command failed", "command", cmd.Kind(), "err", err)
		a.state.SetStatus(fmt.Sprintf("Error: %s: %v", cmd.Kind(), err))
		return
	}
	a.logger.Info(status, "command", cmd.Kind())
	a.state.SetStatus(status)
}

func (a *Acquisition) apply(cmd Command) (string, error) {
	switch c := cmd.(type) {
	case SetFrequency:
		return a.setFrequency(int64(c.Hz))

	case AdjustFrequency:
		cur, _ := a.state.Tuning()
		return a.setFrequency(int64(cur) + c.DeltaHz)

	case SetSampleRate:
		hz := ClampSampleRate(int64(c.Hz))
		if hz != c.Hz {
			a.logger.Warn("sample rate clamped", "requested", c.Hz, "applied", hz)
		}
		if !device.IsCommonSampleRate(hz) {
			a.logger.Warn("sample rate is not a common rate, may cause issues", "rate", hz)
		}
		if err := a.configure(func(t device.Tuner) error { return t.SetSampleRate(hz) }); err != nil {
			return "", err
		}
		var freq uint32
		a.state.Update(func(r *Receiver) {
			r.Device.SampleRate = hz
			freq = r.Device.Frequency
		})
		a.metrics.Tuning(freq, hz)
		return fmt.Sprintf("Sample rate: %.3f MS/s", float64(hz)/1e6), nil

	case SetGain:
		g := ClampGain(c.Gain)
		if g != c.Gain {
			a.logger.Warn("gain clamped", "requested", c.Gain, "applied", g)
		}
		if err := a.configure(func(t device.Tuner) error { return t.SetGain(g) }); err != nil {
			return "", err
		}
		a.state.Update(func(r *Receiver) { r.Device.Gain = g })
		return "Gain: " + g.String(), nil

	case SetPPM:
		ppm := ClampPPM(c.PPM)
		if err := a.configure(func(t device.Tuner) error { return t.SetPPM(ppm) }); err != nil {
			return "", err
		}
		a.state.Update(func(r *Receiver) { r.Device.PPM = ppm })
		return fmt.Sprintf("PPM: %d", ppm), nil

	case SetMode:
		if !c.Mode.Valid() {
			return "", fmt.Errorf("invalid mode %d", int(c.Mode))
		}
		a.state.Update(func(r *Receiver) { r.Decoder.Mode = c.Mode })
		return "Mode: " + c.Mode.String(), nil

	case StartRecording:
		if a.recorder == nil {
			return "", ErrNoRecorder
		}
		if c.Path == "" {
			return "", errors.New("empty recording path")
		}
		// Reset the counter before the recorder can report writes.
		var prev RecordingState
		a.state.Update(func(r *Receiver) {
			prev = r.Recording
			if !prev.Active {
				r.Recording.Start(c.Path, time.Now())
			}
		})
		if prev.Active {
			return "", ErrRecordingActive
		}
		freq, rate := a.state.Tuning()
		if err := a.recorder.Start(c.Path, freq, rate); err != nil {
			a.state.Update(func(r *Receiver) { r.Recording = prev })
			return "", err
		}
		return "Recording to " + c.Path, nil

	case StopRecording:
		if a.recorder == nil {
			return "", ErrNoRecorder
		}
		if err := a.recorder.Stop(); err != nil {
			return "", err
		}
		var written uint64
		a.state.Update(func(r *Receiver) {
			r.Recording.Stop()
			written = r.Recording.SamplesWritten
		})
		return fmt.Sprintf("Recording stopped (%d samples)", written), nil

	case Quit:
		a.state.Update(func(r *Receiver) { r.UI.Quit = true })
		a.shutdown.Store(true)
		return "Quitting", nil
	}
	return "", fmt.Errorf("unknown command %T", cmd)
}

func (a *Acquisition) setFrequency(requested int64) (string, error) {
	hz := ClampFrequency(requested)
	if int64(hz) != requested {
		a.logger.Warn("frequency clamped", "requested", requested, "applied", hz)
	}
	if err := a.configure(func(t device.Tuner) error { return t.SetFrequency(hz) }); err != nil {
		return "", err
	}
	var rate uint32
	a.state.Update(func(r *Receiver) {
		r.Device.Frequency = hz
		rate = r.Device.SampleRate
	})
	a.metrics.Tuning(hz, rate)
	return fmt.Sprintf("Frequency: %.3f MHz", float64(hz)/1e6), nil
}

// configure runs fn against the device. The synthetic source accepts any
// setting.
func (a *Acquisition) configure(fn func(device.Tuner) error) error {
	if a.dev == nil {
		return nil
	}
	return fn(a.dev)
}
