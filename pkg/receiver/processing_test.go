package receiver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthBatch(n int) Batch {
	g := device.NewGenerator(5, nil)
	return Batch{
		Seq:        1,
		Samples:    g.Generate(nil, device.DefaultFrequency, device.DefaultSampleRate, n),
		Frequency:  device.DefaultFrequency,
		SampleRate: device.DefaultSampleRate,
	}
}

func TestProcessUpdatesSpectrumAndAudio(t *testing.T) {
	st := NewState(StateOptions{WaterfallRows: 3})
	audio := ring.New(48000)
	p := NewProcessing(ProcessingOptions{
		State:    st,
		Audio:    audio,
		FFTSize:  256,
		Resample: true,
		Logger:   quietLogger(),
	})

	out := p.Process(synthBatch(16384))
	// 16384 samples at 2.048 MS/s is 8 ms, or 384 samples at 48 kHz
	assert.InDelta(t, 384, len(out), 2)
	assert.Equal(t, len(out), audio.Len())
	for _, v := range out {
		assert.True(t, v >= -1 && v <= 1)
	}

	latest, rows := st.Spectrum(10)
	assert.Len(t, latest, 256)
	assert.Len(t, rows, 1)
}

func TestProcessWithoutResamplingKeepsLength(t *testing.T) {
	st := NewState(StateOptions{})
	p := NewProcessing(ProcessingOptions{State: st, FFTSize: 64, Logger: quietLogger()})
	assert.Len(t, p.Process(synthBatch(1000)), 1000)

	p = NewProcessing(ProcessingOptions{State: st, FFTSize: 64, LegacyFM: true, Logger: quietLogger()})
	assert.Len(t, p.Process(synthBatch(1000)), 999)
}

func TestSilentModesOnlyUpdateSpectrum(t *testing.T) {
	for _, mode := range []Mode{ModeRaw, ModeAPRS, ModeADSB} {
		st := NewState(StateOptions{Mode: mode})
		audio := ring.New(16)
		p := NewProcessing(ProcessingOptions{State: st, Audio: audio, FFTSize: 64, Logger: quietLogger()})

		assert.Nil(t, p.Process(synthBatch(512)), mode.String())
		assert.Zero(t, audio.Len())
		_, rows := st.Spectrum(5)
		assert.Len(t, rows, 1)
	}
}

func TestEmptyBatchIsHarmless(t *testing.T) {
	st := NewState(StateOptions{})
	p := NewProcessing(ProcessingOptions{State: st, FFTSize: 64, Resample: true, Logger: quietLogger()})
	assert.NotPanics(t, func() {
		assert.Empty(t, p.Process(Batch{SampleRate: device.DefaultSampleRate}))
	})
	latest, _ := st.Spectrum(1)
	for _, v := range latest {
		assert.Equal(t, float32(dsp.FloorDB), v)
	}
}

func TestFullSinksDrop(t *testing.T) {
	st := NewState(StateOptions{})
	stats := new(Stats)
	network := make(chan []float32, 1)
	rec := &fakeRecorder{limit: 1}
	require.NoError(t, rec.Start("x", 0, 0))

	p := NewProcessing(ProcessingOptions{
		State:    st,
		Audio:    ring.New(100),
		Network:  network,
		Recorder: rec,
		FFTSize:  64,
		Stats:    stats,
		Logger:   quietLogger(),
	})
	p.Process(synthBatch(1000))
	p.Process(synthBatch(1000))

	assert.Equal(t, uint64(1900), stats.AudioDropped.Load())
	assert.Equal(t, uint64(1), stats.NetworkDropped.Load())
	assert.Equal(t, uint64(1), stats.RecordDropped.Load())
	assert.Equal(t, uint64(2), stats.Processed.Load())
	assert.Len(t, network, 1)
}

func TestModeSwitchResetsDemodulator(t *testing.T) {
	st := NewState(StateOptions{})
	p := NewProcessing(ProcessingOptions{State: st, FFTSize: 64, Logger: quietLogger()})
	b := synthBatch(256)

	first := p.Process(b)
	st.Update(func(r *Receiver) { r.Decoder.Mode = ModeAM })
	p.Process(b)
	st.Update(func(r *Receiver) { r.Decoder.Mode = ModeFMNarrow })
	again := p.Process(b)

	assert.Equal(t, first, again)
}

func TestRunExitsOnClose(t *testing.T) {
	in := make(chan Batch, 2)
	flag := new(atomic.Bool)
	p := NewProcessing(ProcessingOptions{
		State:    NewState(StateOptions{}),
		In:       in,
		FFTSize:  64,
		Shutdown: flag,
		Logger:   quietLogger(),
	})
	in <- synthBatch(128)
	close(in)

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processing did not exit on closed channel")
	}
	assert.True(t, flag.Load())
}

func TestRunExitsOnShutdownFlag(t *testing.T) {
	flag := new(atomic.Bool)
	p := NewProcessing(ProcessingOptions{
		State:       NewState(StateOptions{}),
		In:          make(chan Batch),
		RecvTimeout: 10 * time.Millisecond,
		Shutdown:    flag,
		Logger:      quietLogger(),
	})

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()
	flag.Store(true)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processing ignored the shutdown flag")
	}
}
