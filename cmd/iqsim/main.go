// Command iqsim writes synthetic unsigned 8-bit IQ into a FIFO at the
// configured sample rate, standing in for rtl_sdr during development.
//
//	iqsim --path /tmp/sdrrx_iq &
//	sdrrx -d /tmp/sdrrx_iq
package main

import (
	"context"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/spf13/pflag"
)

func main() {
	path := pflag.String("path", "/tmp/sdrrx_iq", "FIFO to create and write")
	freqMHz := pflag.Float64P("frequency", "f", 144.390, "Simulated centre frequency in MHz")
	rate := pflag.Uint32("sample-rate", device.DefaultSampleRate, "Sample rate in Hz")
	batch := pflag.Int("batch", device.DefaultBatchSize, "Samples per write")
	seed := pflag.Uint64("seed", 1, "Noise seed")
	verbose := pflag.BoolP("verbose", "v", false, "Debug logging")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	settings := device.DefaultSettings()
	settings.Frequency = uint32(math.Round(*freqMHz * 1e6))
	settings.SampleRate = *rate

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("simulating", "path", *path, "frequency", settings.Frequency, "sample_rate", settings.SampleRate)
	err := device.RunSimulator(ctx, *path, device.SimulatorOptions{
		Settings:  settings,
		Seed:      *seed,
		BatchSize: *batch,
		Logger:    logger,
	})
	os.Remove(*path)
	if err != nil {
		logger.Fatal("simulator failed", "err", err)
	}
}
