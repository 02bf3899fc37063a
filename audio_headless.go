//go:build headless

package main

import "github.com/ocupoint/sdrrx/pkg/ring"

// audioOutput is a no-op for builds without a sound device. Audio is still
// available on the PCM stream.
type audioOutput struct{}

func newAudioOutput(r *ring.Ring, sampleRate int) (*audioOutput, error) {
	return &audioOutput{}, nil
}

func (a *audioOutput) Start() {}

func (a *audioOutput) Close() error { return nil }
