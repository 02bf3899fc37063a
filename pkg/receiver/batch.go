package receiver

import (
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Batch is one acquisition cycle's worth of IQ samples together with the
// tuning they were captured at. Batches are never merged or split.
type Batch struct {
	Seq        uint64
	Samples    []complex64
	Frequency  uint32
	SampleRate uint32
}

// Recorder is the capture collaborator. Start and Stop are called from the
// acquisition goroutine and Submit from the processing goroutine.
type Recorder interface {
	Start(path string, frequency, sampleRate uint32) error
	Stop() error
	// Submit hands over a batch without blocking. It returns false only
	// when a capture is active and the batch had to be dropped.
	Submit(samples []complex64) bool
}

// Stats counts pipeline events. Every field is updated atomically.
type Stats struct {
	Acquired       atomic.Uint64
	Dropped        atomic.Uint64
	Processed      atomic.Uint64
	AudioDropped   atomic.Uint64
	NetworkDropped atomic.Uint64
	RecordDropped  atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Acquired       uint64 `json:"acquired"`
	Dropped        uint64 `json:"dropped"`
	Processed      uint64 `json:"processed"`
	AudioDropped   uint64 `json:"audio_dropped"`
	NetworkDropped uint64 `json:"network_dropped"`
	RecordDropped  uint64 `json:"record_dropped"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Acquired:       s.Acquired.Load(),
		Dropped:        s.Dropped.Load(),
		Processed:      s.Processed.Load(),
		AudioDropped:   s.AudioDropped.Load(),
		NetworkDropped: s.NetworkDropped.Load(),
		RecordDropped:  s.RecordDropped.Load(),
	}
}

// throttle limits a repeating warning to one line per interval. It is
// owned by a single goroutine.
type throttle struct {
	logger     *log.Logger
	every      time.Duration
	last       time.Time
	suppressed uint64
}

func newThrottle(logger *log.Logger) *throttle {
	return &throttle{logger: logger, every: time.Second}
}

func (t *throttle) warn(msg string, kv ...any) {
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.every {
		t.suppressed++
		return
	}
	t.last = now
	kv = append(kv, "suppressed", t.suppressed)
	t.logger.Warn(msg, kv...)
	t.suppressed = 0
}
