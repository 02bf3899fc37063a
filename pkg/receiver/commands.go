package receiver

import (
	"github.com/ocupoint/sdrrx/pkg/device"
)

// Manual gain and PPM limits applied before a command reaches the device.
const (
	MinGainTenths int32 = 0
	MaxGainTenths int32 = 500
	MaxPPM        int32 = 500
)

// Command is a control message consumed by the acquisition stage. The set
// is closed: only the types in this file implement it.
type Command interface {
	// Kind names the command for logs and metrics.
	Kind() string
	command()
}

// SetFrequency tunes to Hz.
type SetFrequency struct{ Hz uint32 }

// AdjustFrequency moves the centre frequency by DeltaHz.
type AdjustFrequency struct{ DeltaHz int64 }

// SetSampleRate changes the sample rate.
type SetSampleRate struct{ Hz uint32 }

// SetGain selects automatic or manual gain.
type SetGain struct{ Gain device.Gain }

// SetPPM sets the frequency correction.
type SetPPM struct{ PPM int32 }

// SetMode selects the demodulator.
type SetMode struct{ Mode Mode }

// StartRecording starts an IQ capture to Path.
type StartRecording struct{ Path string }

// StopRecording ends the active capture.
type StopRecording struct{}

// Quit asks every stage to stop.
type Quit struct{}

func (SetFrequency) Kind() string    { return "set_frequency" }
func (AdjustFrequency) Kind() string { return "adjust_frequency" }
func (SetSampleRate) Kind() string   { return "set_sample_rate" }
func (SetGain) Kind() string         { return "set_gain" }
func (SetPPM) Kind() string          { return "set_ppm" }
func (SetMode) Kind() string         { return "set_mode" }
func (StartRecording) Kind() string  { return "start_recording" }
func (StopRecording) Kind() string   { return "stop_recording" }
func (Quit) Kind() string            { return "quit" }

func (SetFrequency) command()    {}
func (AdjustFrequency) command() {}
func (SetSampleRate) command()   {}
func (SetGain) command()         {}
func (SetPPM) command()          {}
func (SetMode) command()         {}
func (StartRecording) command()  {}
func (StopRecording) command()   {}
func (Quit) command()            {}

// ClampFrequency limits hz to the tuner range.
func ClampFrequency(hz int64) uint32 {
	return uint32(clamp64(hz, int64(device.MinFrequency), int64(device.MaxFrequency)))
}

// ClampSampleRate limits hz to the supported sample rates.
func ClampSampleRate(hz int64) uint32 {
	return uint32(clamp64(hz, int64(device.MinSampleRate), int64(device.MaxSampleRate)))
}

// ClampGain limits a manual gain; automatic gain passes through.
func ClampGain(g device.Gain) device.Gain {
	if g.Auto {
		return device.AutoGain()
	}
	return device.ManualGain(int32(clamp64(int64(g.TenthsDB), int64(MinGainTenths), int64(MaxGainTenths))))
}

// ClampPPM limits the correction to +-MaxPPM.
func ClampPPM(ppm int32) int32 {
	return int32(clamp64(int64(ppm), -int64(MaxPPM), int64(MaxPPM)))
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
