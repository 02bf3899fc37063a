// Package record captures IQ batches to disk. Batches arrive from the
// processing goroutine through a bounded channel and are written by a
// dedicated goroutine so a slow disk never stalls processing.
package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ocupoint/sdrrx/pkg/metrics"
)

var (
	ErrActive    = errors.New("recording already active")
	ErrNotActive = errors.New("no recording active")
	// ErrInvalidName is returned for names that are not a plain file name.
	ErrInvalidName = errors.New("recording name must be a plain file name")
)

// Format selects the on-disk sample encoding.
type Format string

const (
	// FormatCU8 is interleaved unsigned 8-bit I/Q, as produced by rtl_sdr.
	FormatCU8 Format = "cu8"
	// FormatCF32 is interleaved little-endian float32 I/Q.
	FormatCF32 Format = "cf32"
	// FormatParquet stores one row per sample with float32 I and Q columns.
	FormatParquet Format = "parquet"
)

// Compression selects an optional compression layer.
type Compression string

const (
	CompressNone Compression = "none"
	CompressZstd Compression = "zstd"
)

// ParseFormat validates a format name. Empty selects cu8.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatCU8, nil
	case FormatCU8, FormatCF32, FormatParquet:
		return f, nil
	}
	return "", fmt.Errorf("unknown recording format %q", s)
}

// ParseCompression validates a compression name. Empty selects none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "":
		return CompressNone, nil
	case CompressNone, CompressZstd:
		return c, nil
	}
	return "", fmt.Errorf("unknown recording compression %q", s)
}

const DefaultBuffer = 64

type Options struct {
	// Dir holds every capture. Empty means the working directory.
	Dir         string
	Format      Format
	Compression Compression
	// Buffer is the number of batches queued for the writer.
	Buffer int
	// OnWrite is called from the writer goroutine after each batch is
	// written, with the number of samples written.
	OnWrite func(n int)
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

type session struct {
	meta     Metadata
	metaPath string
	sink     sampleWriter
	batches  chan []complex64
	done     chan error
	samples  atomic.Uint64
	dropped  atomic.Uint64
}

// Recorder writes one capture at a time.
type Recorder struct {
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	current *session
}

func New(opts Options) *Recorder {
	if opts.Format == "" {
		opts.Format = FormatCU8
	}
	if opts.Compression == "" {
		opts.Compression = CompressNone
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Recorder{opts: opts, logger: opts.Logger.WithPrefix("recorder")}
}

// CheckName reports whether name can be used as a capture file name. Only
// a bare file name is accepted; directories come from Options.Dir.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.IsAbs(name) ||
		filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Start creates name under Dir and begins accepting batches. Existing
// files are never overwritten. The metadata sidecar is written next to the
// capture as name.json.
func (r *Recorder) Start(name string, frequency, sampleRate uint32) error {
	if err := CheckName(name); err != nil {
		return err
	}
	path := filepath.Join(r.opts.Dir, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return ErrActive
	}

	if r.opts.Dir != "" {
		if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}

	s := &session{
		meta: Metadata{
			ID:           uuid.New(),
			Path:         path,
			Format:       r.opts.Format,
			Compression:  r.opts.Compression,
			FrequencyHz:  frequency,
			SampleRateHz: sampleRate,
			Started:      time.Now().UTC(),
		},
		metaPath: SidecarPath(path),
		batches:  make(chan []complex64, r.opts.Buffer),
		done:     make(chan error, 1),
	}
	s.sink, err = newSampleWriter(f, s.meta)
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := s.meta.create(s.metaPath); err != nil {
		s.sink.Close()
		os.Remove(path)
		return err
	}

	r.current = s
	go r.writeLoop(s)
	r.logger.Info("recording started", "id", s.meta.ID, "path", path,
		"format", s.meta.Format, "compression", s.meta.Compression)
	return nil
}

// Stop closes the active capture once every queued batch is written and
// finalizes the sidecar.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	s := r.current
	r.current = nil
	r.mu.Unlock()
	if s == nil {
		return ErrNotActive
	}

	close(s.batches)
	werr := <-s.done

	stopped := time.Now().UTC()
	s.meta.Stopped = &stopped
	s.meta.Samples = s.samples.Load()
	s.meta.DroppedBatches = s.dropped.Load()
	if err := s.meta.save(s.metaPath); err != nil && werr == nil {
		werr = err
	}
	r.logger.Info("recording stopped", "id", s.meta.ID, "samples", s.meta.Samples,
		"dropped", s.meta.DroppedBatches, "duration", stopped.Sub(s.meta.Started).Round(time.Millisecond))
	return werr
}

// Submit queues samples without blocking. It reports false when a capture
// is active and its queue is full.
func (r *Recorder) Submit(samples []complex64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.current
	if s == nil {
		return true
	}
	select {
	case s.batches <- samples:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Active reports the metadata of the running capture, if any.
func (r *Recorder) Active() (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Metadata{}, false
	}
	m := r.current.meta
	m.Samples = r.current.samples.Load()
	m.DroppedBatches = r.current.dropped.Load()
	return m, true
}

func (r *Recorder) writeLoop(s *session) {
	var werr error
	for batch := range s.batches {
		if werr != nil {
			continue
		}
		if err := s.sink.WriteSamples(batch); err != nil {
			werr = fmt.Errorf("write recording: %w", err)
			r.logger.Error("write failed, discarding further batches", "id", s.meta.ID, "err", err)
			continue
		}
		n := len(batch)
		s.samples.Add(uint64(n))
		r.opts.Metrics.SamplesRecorded(n)
		if r.opts.OnWrite != nil {
			r.opts.OnWrite(n)
		}
	}
	if err := s.sink.Close(); err != nil && werr == nil {
		werr = fmt.Errorf("close recording: %w", err)
	}
	s.done <- werr
}
