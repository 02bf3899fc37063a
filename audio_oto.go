//go:build !headless

package main

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/ocupoint/sdrrx/pkg/ring"
)

// audioOutput plays the audio ring through the system mixer. Oto pulls
// samples from Read on its own goroutine, which makes it the ring's only
// consumer; an empty ring plays silence.
type audioOutput struct {
	ctx    *oto.Context
	player *oto.Player
	ring   *ring.Ring
	buf    []float32
	mu     sync.Mutex
}

func newAudioOutput(r *ring.Ring, sampleRate int) (*audioOutput, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	a := &audioOutput{ctx: ctx, ring: r, buf: make([]float32, 4096)}
	a.player = ctx.NewPlayer(a)
	return a, nil
}

func (a *audioOutput) Read(p []byte) (int, error) {
	n := len(p) / 4
	if len(a.buf) < n {
		a.buf = make([]float32, n)
	}
	samples := a.buf[:n]
	a.ring.Fill(samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(s))
	}
	return n * 4, nil
}

func (a *audioOutput) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.player.Play()
}

func (a *audioOutput) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.player.Close()
}
