package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/receiver"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdrrx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  source: rtltcp
  address: radio.local:1234
  frequency_hz: 433920000
  gain_db: 29.7
  dial_timeout: 3s
  digital_agc: true
dsp:
  legacy_fm: true
stream:
  audio_port: 7355
recording:
  format: parquet
  compress: zstd
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SourceRTLTCP, cfg.Device.Source)
	assert.Equal(t, uint32(433_920_000), cfg.Device.FrequencyHz)
	assert.Equal(t, device.DefaultSampleRate, cfg.Device.SampleRateHz)
	assert.Equal(t, 3*time.Second, cfg.Device.DialTimeout)
	assert.Equal(t, device.ManualGain(297), cfg.Device.Gain())
	assert.Equal(t, receiver.ModeFMNarrow, cfg.Mode())
	assert.True(t, cfg.Settings().DigitalAGC)

	pc := cfg.Pipeline()
	assert.True(t, pc.LegacyFM)
	assert.True(t, pc.Resample)
	assert.Equal(t, 2048, pc.FFTSize)
	assert.Equal(t, 64, pc.StreamChannel)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [1, 2"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateClampsDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.FrequencyHz = 3_000_000_000
	cfg.Device.SampleRateHz = 10
	cfg.Device.PPM = -9000
	db := 80.0
	cfg.Device.GainDB = &db
	require.NoError(t, cfg.Validate())

	s := cfg.Settings()
	assert.Equal(t, device.MaxFrequency, s.Frequency)
	assert.Equal(t, device.MinSampleRate, s.SampleRate)
	assert.Equal(t, -receiver.MaxPPM, s.PPM)
	assert.Equal(t, device.ManualGain(receiver.MaxGainTenths), s.Gain)
	assert.Zero(t, cfg.Pipeline().StreamChannel, "stream disabled without a port")
}

func TestValidateRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"source":      func(c *Config) { c.Device.Source = "hackrf" },
		"mode":        func(c *Config) { c.Device.Mode = "CW" },
		"fifo path":   func(c *Config) { c.Device.Source = SourceFIFO },
		"fft size":    func(c *Config) { c.DSP.FFTSize = 1 },
		"batch size":  func(c *Config) { c.DSP.BatchSize = 0 },
		"audio rate":  func(c *Config) { c.DSP.AudioRate = 44100 },
		"audio port":  func(c *Config) { c.Stream.AudioPort = 70000 },
		"format":      func(c *Config) { c.Recording.Format = "wav" },
		"compression": func(c *Config) { c.Recording.Compress = "gzip" },
		"log level":   func(c *Config) { c.Logging.Level = "chatty" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSetTarget(t *testing.T) {
	var d DeviceConfig
	d.SetTarget("127.0.0.1:1234")
	assert.Equal(t, SourceRTLTCP, d.Source)
	assert.Equal(t, "127.0.0.1:1234", d.Address)

	d = DeviceConfig{}
	d.SetTarget("/tmp/iq")
	assert.Equal(t, SourceFIFO, d.Source)
	assert.Equal(t, "/tmp/iq", d.Path)

	d = DeviceConfig{}
	d.SetTarget("captures/a:b")
	assert.Equal(t, SourceFIFO, d.Source)
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts := bindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-f", "145.825", "-p", "7355", "-g", "20", "-d", "localhost:1234", "--no-audio"}))

	cfg := DefaultConfig()
	cfg.Device.Mode = "AM"
	require.NoError(t, opts.apply(fs, &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint32(145_825_000), cfg.Device.FrequencyHz)
	assert.Equal(t, 7355, cfg.Stream.AudioPort)
	assert.Equal(t, device.ManualGain(200), cfg.Device.Gain())
	assert.Equal(t, SourceRTLTCP, cfg.Device.Source)
	assert.False(t, cfg.Audio.Enabled)
	assert.Equal(t, receiver.ModeAM, cfg.Mode(), "unset flag keeps the file value")
}

func TestFlagsGain(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts := bindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-g", "auto", "--sim"}))

	cfg := DefaultConfig()
	db := 10.0
	cfg.Device.GainDB = &db
	require.NoError(t, opts.apply(fs, &cfg))
	assert.Equal(t, device.AutoGain(), cfg.Device.Gain())
	assert.Equal(t, SourceFIFO, cfg.Device.Source)
	assert.Equal(t, "/tmp/sdrrx_iq", cfg.Device.Path)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts = bindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-g", "loud"}))
	assert.Error(t, opts.apply(fs, &cfg))
}
