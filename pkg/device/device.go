// Package device contains the radio sources the receiver can read IQ bytes
// from: an rtl_tcp network client, a FIFO or capture file, and a synthetic
// generator used when no hardware is attached.
package device

import (
	"errors"
	"fmt"
	"slices"
)

// Hardware limits of the RTL2832U family.
const (
	MinFrequency  uint32 = 24_000_000
	MaxFrequency  uint32 = 1_766_000_000
	MinSampleRate uint32 = 225_000
	MaxSampleRate uint32 = 3_200_000
)

// Hardware-safe startup values.
const (
	DefaultFrequency  uint32 = 144_390_000
	DefaultSampleRate uint32 = 2_048_000
)

// CommonSampleRates are the rates the tuner is known to run cleanly at.
var CommonSampleRates = []uint32{
	225_000, 900_000, 1_024_000, 1_400_000, 1_800_000, 1_920_000,
	2_048_000, 2_400_000, 2_560_000, 2_800_000, 3_200_000,
}

// IsCommonSampleRate reports whether rate is in CommonSampleRates.
func IsCommonSampleRate(rate uint32) bool {
	return slices.Contains(CommonSampleRates, rate)
}

var (
	// ErrUnsupported is returned by sources that cannot honour a
	// configuration change.
	ErrUnsupported = errors.New("device: operation not supported by source")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("device: closed")
)

// Gain is either automatic or a manual value in tenths of a dB.
type Gain struct {
	Auto     bool  `json:"auto" yaml:"auto"`
	TenthsDB int32 `json:"tenths_db" yaml:"tenths_db"`
}

// AutoGain selects the tuner AGC.
func AutoGain() Gain { return Gain{Auto: true} }

// ManualGain selects a fixed gain.
func ManualGain(tenthsDB int32) Gain { return Gain{TenthsDB: tenthsDB} }

func (g Gain) String() string {
	if g.Auto {
		return "auto"
	}
	sign := ""
	v := g.TenthsDB
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%d dB", sign, v/10, v%10)
}

// Tuner accepts configuration changes. Every call may fail.
type Tuner interface {
	SetFrequency(hz uint32) error
	SetSampleRate(hz uint32) error
	SetGain(g Gain) error
	SetPPM(ppm int32) error
}

// Device is a tuner that also yields raw unsigned 8-bit interleaved I/Q.
type Device interface {
	Tuner
	// ReadBlock fills buf with raw bytes and returns how many were read.
	// io.EOF means the source is exhausted.
	ReadBlock(buf []byte) (int, error)
	Close() error
}

// Settings is the initial configuration applied when a device is opened.
type Settings struct {
	Frequency  uint32
	SampleRate uint32
	Gain       Gain
	PPM        int32
	// DigitalAGC enables the demodulator AGC on devices that have one.
	DigitalAGC bool
}

// AGCSetter is implemented by devices with a digital AGC separate from
// the tuner gain.
type AGCSetter interface {
	SetAGC(on bool) error
}

// DefaultSettings returns the hardware-safe defaults.
func DefaultSettings() Settings {
	return Settings{
		Frequency:  DefaultFrequency,
		SampleRate: DefaultSampleRate,
		Gain:       AutoGain(),
	}
}

// Apply pushes every setting to t, stopping at the first failure.
func (s Settings) Apply(t Tuner) error {
	if err := t.SetSampleRate(s.SampleRate); err != nil {
		return fmt.Errorf("set sample rate %d: %w", s.SampleRate, err)
	}
	if err := t.SetFrequency(s.Frequency); err != nil {
		return fmt.Errorf("set frequency %d: %w", s.Frequency, err)
	}
	if err := t.SetGain(s.Gain); err != nil {
		return fmt.Errorf("set gain %s: %w", s.Gain, err)
	}
	if err := t.SetPPM(s.PPM); err != nil {
		return fmt.Errorf("set ppm %d: %w", s.PPM, err)
	}
	if a, ok := t.(AGCSetter); ok && s.DigitalAGC {
		if err := a.SetAGC(true); err != nil {
			return fmt.Errorf("enable agc: %w", err)
		}
	}
	return nil
}
