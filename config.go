package main

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/receiver"
	"github.com/ocupoint/sdrrx/pkg/record"
	"gopkg.in/yaml.v3"
)

// Device sources.
const (
	SourceSynthetic = "synthetic"
	SourceRTLTCP    = "rtltcp"
	SourceFIFO      = "fifo"
)

// Config is the YAML configuration file. Unset fields keep DefaultConfig.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	DSP       DSPConfig       `yaml:"dsp"`
	Stream    StreamConfig    `yaml:"stream"`
	Server    ServerConfig    `yaml:"server"`
	Recording RecordingConfig `yaml:"recording"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audio     AudioConfig     `yaml:"audio"`
}

type DeviceConfig struct {
	Source       string        `yaml:"source"`  // synthetic, rtltcp or fifo
	Address      string        `yaml:"address"` // rtl_tcp host:port
	Path         string        `yaml:"path"`    // FIFO or capture file
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	FrequencyHz  uint32        `yaml:"frequency_hz"`
	SampleRateHz uint32        `yaml:"sample_rate_hz"`
	GainDB       *float64      `yaml:"gain_db"` // nil selects automatic gain
	PPM          int32         `yaml:"ppm"`
	DigitalAGC   bool          `yaml:"digital_agc"` // RTL2832 AGC, rtl_tcp only
	Mode         string        `yaml:"mode"`
}

type DSPConfig struct {
	FFTSize       int  `yaml:"fft_size"`
	WaterfallRows int  `yaml:"waterfall_rows"`
	BatchSize     int  `yaml:"batch_size"`
	AudioRate     int  `yaml:"audio_rate"`
	BatchChannel  int  `yaml:"batch_channel"`
	AudioRing     int  `yaml:"audio_ring"`
	Resample      bool `yaml:"resample"`
	LegacyFM      bool `yaml:"legacy_fm"`
}

type StreamConfig struct {
	AudioPort    int           `yaml:"audio_port"` // 0 disables the PCM stream
	Channel      int           `yaml:"channel"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"` // empty disables the web UI
	FPS      int    `yaml:"fps"`
}

type RecordingConfig struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`
	Compress string `yaml:"compress"`
	Buffer   int    `yaml:"buffer"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type AudioConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a configuration that is safe for any RTL-SDR.
func DefaultConfig() Config {
	def := receiver.DefaultConfig()
	return Config{
		Device: DeviceConfig{
			Source:       SourceSynthetic,
			Address:      "127.0.0.1:1234",
			DialTimeout:  5 * time.Second,
			FrequencyHz:  device.DefaultFrequency,
			SampleRateHz: device.DefaultSampleRate,
			Mode:         receiver.DefaultMode.String(),
		},
		DSP: DSPConfig{
			FFTSize:       def.FFTSize,
			WaterfallRows: def.WaterfallRows,
			BatchSize:     def.BatchSize,
			AudioRate:     dsp.AudioRate,
			BatchChannel:  def.BatchChannel,
			AudioRing:     def.AudioRing,
			Resample:      def.Resample,
		},
		Stream: StreamConfig{
			Channel:      64,
			WriteTimeout: 2 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			FPS:      20,
		},
		Recording: RecordingConfig{
			Dir:      "data",
			Format:   string(record.FormatCU8),
			Compress: string(record.CompressNone),
			Buffer:   record.DefaultBuffer,
		},
		Logging: LoggingConfig{Level: "info"},
		Audio:   AudioConfig{Enabled: true},
	}
}

// LoadConfig reads filename over the defaults.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown names and clamps device values into the
// supported ranges.
func (c *Config) Validate() error {
	d := &c.Device
	switch d.Source {
	case SourceSynthetic:
	case SourceRTLTCP:
		if d.Address == "" {
			return fmt.Errorf("device address is required for the %s source", SourceRTLTCP)
		}
	case SourceFIFO:
		if d.Path == "" {
			return fmt.Errorf("device path is required for the %s source", SourceFIFO)
		}
	default:
		return fmt.Errorf("unknown device source %q", d.Source)
	}
	if _, err := receiver.ParseMode(d.Mode); err != nil {
		return err
	}
	d.FrequencyHz = receiver.ClampFrequency(int64(d.FrequencyHz))
	d.SampleRateHz = receiver.ClampSampleRate(int64(d.SampleRateHz))
	d.PPM = receiver.ClampPPM(d.PPM)

	if c.DSP.FFTSize < 2 {
		return fmt.Errorf("fft_size must be at least 2, got %d", c.DSP.FFTSize)
	}
	if c.DSP.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.DSP.BatchSize)
	}
	if c.DSP.AudioRate != dsp.AudioRate {
		return fmt.Errorf("audio_rate must be %d", dsp.AudioRate)
	}
	if c.Stream.AudioPort < 0 || c.Stream.AudioPort > 65535 {
		return fmt.Errorf("invalid audio port %d", c.Stream.AudioPort)
	}
	if c.Stream.Channel < 1 {
		c.Stream.Channel = 64
	}
	if c.Server.FPS < 1 {
		c.Server.FPS = 1
	}
	if _, err := record.ParseFormat(c.Recording.Format); err != nil {
		return err
	}
	if _, err := record.ParseCompression(c.Recording.Compress); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// SetTarget points the device at s: host:port selects rtl_tcp, anything
// else is a FIFO or capture file path.
func (d *DeviceConfig) SetTarget(s string) {
	if host, port, err := net.SplitHostPort(s); err == nil && !strings.Contains(host, "/") {
		if _, err := strconv.ParseUint(port, 10, 16); err == nil {
			d.Source, d.Address = SourceRTLTCP, s
			return
		}
	}
	d.Source, d.Path = SourceFIFO, s
}

// Gain converts gain_db into a device gain.
func (d DeviceConfig) Gain() device.Gain {
	if d.GainDB == nil {
		return device.AutoGain()
	}
	return receiver.ClampGain(device.ManualGain(int32(math.Round(*d.GainDB * 10))))
}

// Settings returns the initial tuner settings.
func (c Config) Settings() device.Settings {
	return device.Settings{
		Frequency:  c.Device.FrequencyHz,
		SampleRate: c.Device.SampleRateHz,
		Gain:       c.Device.Gain(),
		PPM:        c.Device.PPM,
		DigitalAGC: c.Device.DigitalAGC,
	}
}

// Mode returns the startup mode. Call Validate first.
func (c Config) Mode() receiver.Mode {
	m, _ := receiver.ParseMode(c.Device.Mode)
	return m
}

// Pipeline returns the pipeline sizing.
func (c Config) Pipeline() receiver.Config {
	rc := receiver.DefaultConfig()
	rc.FFTSize = c.DSP.FFTSize
	rc.WaterfallRows = c.DSP.WaterfallRows
	rc.BatchSize = c.DSP.BatchSize
	rc.BatchChannel = c.DSP.BatchChannel
	rc.AudioRing = c.DSP.AudioRing
	rc.Resample = c.DSP.Resample
	rc.LegacyFM = c.DSP.LegacyFM
	if c.Stream.AudioPort > 0 {
		rc.StreamChannel = c.Stream.Channel
	}
	return rc
}
