package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// options holds command-line values. Only flags the user set override the
// configuration file.
type options struct {
	configFile string
	frequency  float64 // MHz
	sampleRate uint32
	audioPort  int
	target     string
	gain       string
	ppm        int32
	mode       string
	httpAddr   string
	logLevel   string
	logFile    string
	noAudio    bool
	recordDir  string
	format     string
	legacyFM   bool
	sim        bool
	simPath    string
}

func bindFlags(fs *pflag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.configFile, "config", "", "YAML configuration file")
	fs.Float64VarP(&o.frequency, "frequency", "f", 144.390, "Centre frequency in MHz")
	fs.Uint32Var(&o.sampleRate, "sample-rate", 2_048_000, "Sample rate in Hz")
	fs.IntVarP(&o.audioPort, "audio-port", "p", 0, "TCP port for the raw PCM audio stream (0 disables)")
	fs.StringVarP(&o.target, "device", "d", "", "rtl_tcp host:port, or a FIFO/file of u8 IQ")
	fs.StringVarP(&o.gain, "gain", "g", "auto", `Tuner gain in dB, or "auto"`)
	fs.Int32Var(&o.ppm, "ppm", 0, "Frequency correction in ppm")
	fs.StringVarP(&o.mode, "mode", "m", "FM-NFM", "Demodulation mode (RAW, FM-NFM, FM-WFM, AM, USB, LSB, APRS, ADS-B)")
	fs.StringVar(&o.httpAddr, "http", ":8080", `Web UI and API listen address ("" disables)`)
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.BoolVar(&o.noAudio, "no-audio", false, "Disable local audio output")
	fs.StringVar(&o.recordDir, "record-dir", "data", "Directory recordings are written to")
	fs.StringVar(&o.format, "record-format", "cu8", "Recording format (cu8, cf32, parquet)")
	fs.BoolVar(&o.legacyFM, "legacy-fm", false, "Use the stateless FM discriminator")
	fs.BoolVar(&o.sim, "sim", false, "Feed the receiver from the built-in IQ simulator through a FIFO")
	fs.StringVar(&o.simPath, "sim-path", "/tmp/sdrrx_iq", "FIFO used by --sim")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", fs.Name())
		fmt.Fprintln(os.Stderr, "  Synthetic: sdrrx [options]")
		fmt.Fprintln(os.Stderr, "  rtl_tcp:   sdrrx -d 127.0.0.1:1234 [options]")
		fmt.Fprintln(os.Stderr, "  FIFO:      rtl_sdr -f 144390000 - > /tmp/iq & sdrrx -d /tmp/iq [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	return o
}

// apply copies every flag the user set into cfg.
func (o *options) apply(fs *pflag.FlagSet, cfg *Config) error {
	if fs.Changed("frequency") {
		hz := math.Round(o.frequency * 1e6)
		cfg.Device.FrequencyHz = uint32(max(0, min(hz, math.MaxUint32)))
	}
	if fs.Changed("sample-rate") {
		cfg.Device.SampleRateHz = o.sampleRate
	}
	if fs.Changed("audio-port") {
		cfg.Stream.AudioPort = o.audioPort
	}
	if fs.Changed("device") {
		cfg.Device.SetTarget(o.target)
	}
	if fs.Changed("gain") {
		if strings.EqualFold(o.gain, "auto") {
			cfg.Device.GainDB = nil
		} else {
			db, err := strconv.ParseFloat(o.gain, 64)
			if err != nil {
				return fmt.Errorf("invalid gain %q: %w", o.gain, err)
			}
			cfg.Device.GainDB = &db
		}
	}
	if fs.Changed("ppm") {
		cfg.Device.PPM = o.ppm
	}
	if fs.Changed("mode") {
		cfg.Device.Mode = o.mode
	}
	if fs.Changed("http") {
		cfg.Server.HTTPAddr = o.httpAddr
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if fs.Changed("log-file") {
		cfg.Logging.File = o.logFile
	}
	if o.noAudio {
		cfg.Audio.Enabled = false
	}
	if fs.Changed("record-dir") {
		cfg.Recording.Dir = o.recordDir
	}
	if fs.Changed("record-format") {
		cfg.Recording.Format = o.format
	}
	if o.legacyFM {
		cfg.DSP.LegacyFM = true
	}
	if o.sim {
		cfg.Device.Source, cfg.Device.Path = SourceFIFO, o.simPath
	}
	return nil
}
