package receiver

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

type acqFixture struct {
	state *State
	cmds  *Queue
	out   chan Batch
	acq   *Acquisition
	dev   *fakeDevice
	rec   *fakeRecorder
	stats *Stats
	flag  *atomic.Bool
}

func newAcqFixture(t *testing.T, dev *fakeDevice, outCap, batch int) *acqFixture {
	t.Helper()
	f := &acqFixture{
		state: NewState(StateOptions{WaterfallRows: 4}),
		cmds:  NewQueue(),
		out:   make(chan Batch, outCap),
		dev:   dev,
		rec:   &fakeRecorder{},
		stats: new(Stats),
		flag:  new(atomic.Bool),
	}
	opts := AcquisitionOptions{
		State:     f.state,
		Commands:  f.cmds,
		Out:       f.out,
		Recorder:  f.rec,
		BatchSize: batch,
		Shutdown:  f.flag,
		Stats:     f.stats,
		Logger:    quietLogger(),
	}
	if dev != nil {
		opts.Device = dev
	}
	f.acq = NewAcquisition(opts)
	return f
}

func TestOutOfRangeFrequencyIsClamped(t *testing.T) {
	dev := &fakeDevice{reads: []fakeRead{timeoutRead(nil), timeoutRead(nil)}}
	f := newAcqFixture(t, dev, 4, 64)

	require.NoError(t, f.cmds.Send(SetFrequency{Hz: 3_000_000_000}))
	require.NoError(t, f.acq.Step())
	assert.Equal(t, []uint32{device.MaxFrequency}, f.dev.freqs)
	freq, _ := f.state.Tuning()
	assert.Equal(t, device.MaxFrequency, freq)

	require.NoError(t, f.cmds.Send(SetFrequency{Hz: 1_000}))
	require.NoError(t, f.acq.Step())
	assert.Equal(t, device.MinFrequency, f.dev.freqs[1])
	freq, _ = f.state.Tuning()
	assert.Equal(t, device.MinFrequency, freq)
}

func TestAdjustFrequencySaturates(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)

	f.acq.Apply(AdjustFrequency{DeltaHz: 10_000})
	freq, _ := f.state.Tuning()
	assert.Equal(t, device.DefaultFrequency+10_000, freq)

	f.acq.Apply(AdjustFrequency{DeltaHz: -10_000_000_000})
	freq, _ = f.state.Tuning()
	assert.Equal(t, device.MinFrequency, freq)
}

func TestHardwareFailureLeavesStateUnchanged(t *testing.T) {
	f := newAcqFixture(t, &fakeDevice{fail: true}, 4, 64)
	before := f.state.Snapshot()

	f.acq.Apply(SetFrequency{Hz: 100_000_000})
	f.acq.Apply(SetSampleRate{Hz: 2_400_000})
	f.acq.Apply(SetGain{Gain: device.ManualGain(100)})
	f.acq.Apply(SetPPM{PPM: 5})

	after := f.state.Snapshot()
	assert.Equal(t, before.Device, after.Device)
	assert.Contains(t, after.Status, "Error")
	assert.Contains(t, after.Status, errTuner.Error())
}

func TestSettingsCommandsApply(t *testing.T) {
	f := newAcqFixture(t, &fakeDevice{}, 4, 64)

	f.acq.Apply(SetSampleRate{Hz: 9_000_000})
	f.acq.Apply(SetGain{Gain: device.ManualGain(800)})
	f.acq.Apply(SetPPM{PPM: -900})
	f.acq.Apply(SetMode{Mode: ModeUSB})

	snap := f.state.Snapshot()
	assert.Equal(t, device.MaxSampleRate, snap.Device.SampleRate)
	assert.Equal(t, device.ManualGain(MaxGainTenths), snap.Device.Gain)
	assert.Equal(t, -MaxPPM, snap.Device.PPM)
	assert.Equal(t, ModeUSB, snap.Mode)
	assert.Equal(t, "Mode: USB", snap.Status)

	assert.Equal(t, []uint32{device.MaxSampleRate}, f.dev.rates)
	assert.Equal(t, []device.Gain{device.ManualGain(MaxGainTenths)}, f.dev.gains)
	assert.Equal(t, []int32{-MaxPPM}, f.dev.ppms)

	f.acq.Apply(SetMode{Mode: Mode(99)})
	assert.Equal(t, ModeUSB, f.state.Mode())
}

func TestCommandsAreIdempotent(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)
	f.acq.Apply(SetFrequency{Hz: 433_000_000})
	first := f.state.Snapshot().Device
	f.acq.Apply(SetFrequency{Hz: 433_000_000})
	assert.Equal(t, first, f.state.Snapshot().Device)
}

func TestOneCommandPerCycle(t *testing.T) {
	f := newAcqFixture(t, nil, 8, 64)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.cmds.Send(SetMode{Mode: ModeAM}))
	}
	require.NoError(t, f.acq.Step())
	assert.Equal(t, 2, f.cmds.Len())
	assert.Len(t, f.out, 1)
}

func TestFullChannelDropsNewest(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)
	for i := 0; i < 20; i++ {
		require.NoError(t, f.acq.Step())
	}
	assert.Len(t, f.out, 4)
	assert.Equal(t, uint64(20), f.stats.Acquired.Load())
	assert.Equal(t, uint64(16), f.stats.Dropped.Load())

	// the oldest batches are the ones that survive
	for want := uint64(1); want <= 4; want++ {
		b := <-f.out
		assert.Equal(t, want, b.Seq)
		assert.Len(t, b.Samples, 64)
	}
}

func TestSlowProcessingStaysBounded(t *testing.T) {
	const capacity = 8
	f := newAcqFixture(t, nil, capacity, 256)

	var received atomic.Uint64
	var maxLen atomic.Int64
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-f.out:
				received.Add(1)
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		require.NoError(t, f.acq.Step())
		if l := int64(len(f.out)); l > maxLen.Load() {
			maxLen.Store(l)
		}
	}
	close(done)
	wg.Wait()

	assert.LessOrEqual(t, maxLen.Load(), int64(capacity))
	assert.Greater(t, f.stats.Dropped.Load(), uint64(0))
	assert.Equal(t, f.stats.Acquired.Load(),
		f.stats.Dropped.Load()+received.Load()+uint64(len(f.out)))
}

func TestDeviceBlocksAccumulate(t *testing.T) {
	dev := &fakeDevice{reads: []fakeRead{
		timeoutRead([]byte{0, 255}),
		timeoutRead(nil),
		{data: []byte{128, 128, 10, 20, 30, 40}},
	}}
	f := newAcqFixture(t, dev, 4, 4)

	require.NoError(t, f.acq.Step())
	require.NoError(t, f.acq.Step())
	assert.Empty(t, f.out)

	require.NoError(t, f.acq.Step())
	require.Len(t, f.out, 1)
	b := <-f.out
	require.Len(t, b.Samples, 4)
	assert.InDelta(t, -127.5/128, real(b.Samples[0]), 1e-6)
	assert.Equal(t, device.DefaultSampleRate, b.SampleRate)
}

func TestRunStopsOnDeviceEOF(t *testing.T) {
	f := newAcqFixture(t, &fakeDevice{}, 4, 4)

	finished := make(chan struct{})
	go func() {
		f.acq.Run()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition did not stop on EOF")
	}
	assert.True(t, f.flag.Load())
	_, open := <-f.out
	assert.False(t, open)
	assert.False(t, f.state.Snapshot().Device.Running)
}

func TestQuitCommand(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)
	require.NoError(t, f.cmds.Send(Quit{}))
	require.NoError(t, f.acq.Step())

	assert.True(t, f.flag.Load())
	assert.True(t, f.state.Snapshot().Quit)
	assert.Empty(t, f.out, "no batch after quit")
}

func TestRecordingCommands(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)

	f.acq.Apply(StartRecording{Path: "/tmp/capture.cu8"})
	snap := f.state.Snapshot()
	assert.True(t, snap.Recording.Active)
	assert.Equal(t, "/tmp/capture.cu8", snap.Recording.Path)
	assert.True(t, f.rec.active)

	f.state.AddRecordedSamples(128)
	f.acq.Apply(StartRecording{Path: "/tmp/other.cu8"})
	assert.Contains(t, f.state.Snapshot().Status, ErrRecordingActive.Error())
	assert.Equal(t, "/tmp/capture.cu8", f.state.Snapshot().Recording.Path)
	assert.Equal(t, uint64(128), f.state.Snapshot().Recording.SamplesWritten)

	f.acq.Apply(StopRecording{})
	snap = f.state.Snapshot()
	assert.False(t, snap.Recording.Active)
	assert.Equal(t, "Recording stopped (128 samples)", snap.Status)

	f.acq.Apply(StopRecording{})
	assert.Contains(t, f.state.Snapshot().Status, "Error")

	f.rec.startErr = errors.New("disk full")
	f.acq.Apply(StartRecording{Path: "/tmp/x"})
	snap = f.state.Snapshot()
	assert.False(t, snap.Recording.Active)
	assert.Equal(t, "/tmp/capture.cu8", snap.Recording.Path, "failed start keeps the previous capture")
	assert.Equal(t, uint64(128), snap.Recording.SamplesWritten)

	f.acq.Apply(StartRecording{})
	assert.Contains(t, f.state.Snapshot().Status, "empty recording path")
}

func TestRecordingCountsWritesDuringStart(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)
	f.state.AddRecordedSamples(500)
	f.rec.onStart = func() { f.state.AddRecordedSamples(64) }

	f.acq.Apply(StartRecording{Path: "early.cu8"})
	snap := f.state.Snapshot()
	assert.True(t, snap.Recording.Active)
	assert.Equal(t, uint64(64), snap.Recording.SamplesWritten)
}

func TestPacedWaitWakesOnCommand(t *testing.T) {
	f := newAcqFixture(t, nil, 4, 64)

	woke := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		f.acq.wait(time.Minute)
		woke <- time.Since(start)
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.cmds.Send(SetMode{Mode: ModeAM}))

	select {
	case d := <-woke:
		assert.Less(t, d, 10*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("paced wait ignored a queued command")
	}
	assert.Equal(t, 1, f.cmds.Len(), "wait leaves the command for the next cycle")
}

func TestRecordingWithoutRecorder(t *testing.T) {
	st := NewState(StateOptions{})
	acq := NewAcquisition(AcquisitionOptions{
		State:    st,
		Commands: NewQueue(),
		Out:      make(chan Batch, 1),
		Logger:   quietLogger(),
	})
	acq.Apply(StartRecording{Path: "x"})
	assert.Contains(t, st.Snapshot().Status, ErrNoRecorder.Error())
}
