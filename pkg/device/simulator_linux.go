//go:build linux

package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ocupoint/sdrrx/pkg/dsp"
	"golang.org/x/sys/unix"
)

// RunSimulator creates a named pipe at path and streams synthetic u8 IQ
// into it at real time until ctx is cancelled. A reader that goes away is
// waited for again.
func RunSimulator(ctx context.Context, path string, opts SimulatorOptions) error {
	opts.defaults()
	logger := opts.Logger

	_ = os.Remove(path)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	defer os.Remove(path)

	logger.Info("streaming synthetic u8 IQ", "path", path,
		"frequency", opts.Settings.Frequency, "rate", opts.Settings.SampleRate)

	gen := NewGenerator(opts.Seed, nil)
	samples := make([]complex64, 0, opts.BatchSize)
	raw := make([]byte, 0, 2*opts.BatchSize)
	period := BatchDuration(opts.BatchSize, opts.Settings.SampleRate)

	fd, err := openWriter(ctx, path)
	if err != nil {
		return ignoreCancel(ctx, err)
	}
	defer func() { unix.Close(fd) }()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		samples = gen.Generate(samples[:0], opts.Settings.Frequency, opts.Settings.SampleRate, opts.BatchSize)
		raw = dsp.EncodeU8(raw[:0], samples)

		if err := writeAll(fd, raw); err != nil {
			logger.Warn("reader went away, waiting for a new one", "err", err)
			unix.Close(fd)
			if fd, err = openWriter(ctx, path); err != nil {
				return ignoreCancel(ctx, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// openWriter polls until a reader has the pipe open, so that cancellation
// is observed while nobody is reading.
func openWriter(ctx context.Context, path string) (int, error) {
	for {
		fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			if err := unix.SetNonblock(fd, false); err != nil {
				unix.Close(fd)
				return -1, fmt.Errorf("set blocking %s: %w", path, err)
			}
			_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)
			return fd, nil
		}
		if !errors.Is(err, unix.ENXIO) {
			return -1, fmt.Errorf("open %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func writeAll(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
