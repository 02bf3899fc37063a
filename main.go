package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/metrics"
	"github.com/ocupoint/sdrrx/pkg/receiver"
	"github.com/ocupoint/sdrrx/pkg/record"
	"github.com/ocupoint/sdrrx/pkg/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

//go:embed templates/*
var templatesFS embed.FS

func main() {
	os.Exit(start())
}

// start runs the receiver and returns the process exit code.
func start() int {
	fs := pflag.NewFlagSet("sdrrx", pflag.ExitOnError)
	opts := bindFlags(fs)
	fs.Parse(os.Args[1:])

	cfg := DefaultConfig()
	if opts.configFile != "" {
		var err error
		if cfg, err = LoadConfig(opts.configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	if err := opts.apply(fs, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 2
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("receiver failed", "err", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg Config, opts *options, logger *log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	settings := cfg.Settings()

	var background sync.WaitGroup
	simCtx, stopSim := context.WithCancel(context.Background())
	defer func() {
		stopSim()
		background.Wait()
	}()

	if opts.sim {
		background.Add(1)
		go func() {
			defer background.Done()
			err := device.RunSimulator(simCtx, cfg.Device.Path, device.SimulatorOptions{
				Settings:  settings,
				BatchSize: cfg.DSP.BatchSize,
				Logger:    logger,
			})
			if err != nil {
				logger.Error("simulator stopped", "err", err)
			}
		}()
		if err := waitForPath(ctx, cfg.Device.Path, 2*time.Second); err != nil {
			return err
		}
	}

	// Open the device before starting anything else so a missing radio
	// aborts the run cleanly.
	dev, err := openDevice(ctx, cfg.Device, settings, logger)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	if dev != nil {
		defer dev.Close()
	}

	var pipe *receiver.Pipeline
	format, _ := record.ParseFormat(cfg.Recording.Format)
	compression, _ := record.ParseCompression(cfg.Recording.Compress)
	rec := record.New(record.Options{
		Dir:         cfg.Recording.Dir,
		Format:      format,
		Compression: compression,
		Buffer:      cfg.Recording.Buffer,
		OnWrite:     func(n int) { pipe.State().AddRecordedSamples(n) },
		Metrics:     m,
		Logger:      logger,
	})

	pipe = receiver.New(receiver.Options{
		Config:   cfg.Pipeline(),
		Settings: settings,
		Mode:     cfg.Mode(),
		Device:   dev,
		Recorder: rec,
		Metrics:  m,
		Logger:   logger,
	})

	var bc *stream.Broadcaster
	if cfg.Stream.AudioPort > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Stream.AudioPort))
		if err != nil {
			return fmt.Errorf("audio stream: %w", err)
		}
		bc = stream.New(ln, stream.Options{
			WriteTimeout: cfg.Stream.WriteTimeout,
			Shutdown:     pipe.ShutdownFlag(),
			Metrics:      m,
			Logger:       logger,
		})
	}

	var audio *audioOutput
	if cfg.Audio.Enabled {
		if audio, err = newAudioOutput(pipe.Audio(), dsp.AudioRate); err != nil {
			logger.Warn("audio output unavailable, continuing without it", "err", err)
			audio = nil
		}
	}

	var httpSrv *http.Server
	uiCtx, stopUI := context.WithCancel(ctx)
	defer stopUI()
	if cfg.Server.HTTPAddr != "" {
		srv := NewServer(ServerOptions{
			State:     pipe.State(),
			Commands:  pipe,
			Stats:     pipe.Stats,
			Recorder:  rec,
			RecordExt: string(format),
			Gatherer:  reg,
			FPS:       cfg.Server.FPS,
			Logger:    logger,
		})
		httpSrv = &http.Server{Addr: cfg.Server.HTTPAddr, Handler: srv.Handler()}
		background.Add(2)
		go func() {
			defer background.Done()
			srv.Run(uiCtx)
		}()
		go func() {
			defer background.Done()
			logger.Info("web UI listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "err", err)
			}
		}()
	}

	logger.Info("starting receiver",
		"source", cfg.Device.Source,
		"frequency", settings.Frequency,
		"sample_rate", settings.SampleRate,
		"gain", settings.Gain,
		"mode", cfg.Mode())

	pipe.Start()
	var network sync.WaitGroup
	if bc != nil {
		network.Add(1)
		go func() {
			defer network.Done()
			bc.Run(pipe.Network())
		}()
	}
	if audio != nil {
		audio.Start()
	}

	select {
	case <-ctx.Done():
		logger.Info("signal received")
	case <-pipe.Done():
	}

	pipe.Stop()
	pipe.Wait()
	network.Wait()

	if err := rec.Stop(); err != nil && !errors.Is(err, record.ErrNotActive) {
		logger.Error("finish recording", "err", err)
	}
	stopUI()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if audio != nil {
		audio.Close()
	}

	s := pipe.Stats()
	logger.Info("stopped",
		"acquired", s.Acquired,
		"dropped", s.Dropped,
		"processed", s.Processed,
		"audio_dropped", s.AudioDropped)
	return nil
}

// openDevice returns nil for the synthetic source.
func openDevice(ctx context.Context, cfg DeviceConfig, settings device.Settings, logger *log.Logger) (device.Device, error) {
	switch cfg.Source {
	case SourceRTLTCP:
		d, err := device.DialRTLTCP(ctx, cfg.Address, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		info := d.Info()
		logger.Info("connected to rtl_tcp", "addr", cfg.Address, "tuner", info.Tuner, "gains", info.GainCount)
		if err := settings.Apply(d); err != nil {
			d.Close()
			return nil, err
		}
		return d, nil
	case SourceFIFO:
		d, err := device.OpenFIFO(cfg.Path, settings)
		if err != nil {
			return nil, err
		}
		logger.Info("reading IQ", "path", cfg.Path)
		return d, nil
	}
	return nil, nil
}

// waitForPath polls until path exists.
func waitForPath(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not appear within %v", path, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}
