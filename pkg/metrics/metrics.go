// Package metrics exposes the receiver's counters to Prometheus. All
// methods are safe on a nil *Metrics so components can run without it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sdrrx"

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	batchesAcquired  prometheus.Counter
	batchesDropped   *prometheus.CounterVec // stage
	batchesProcessed prometheus.Counter
	audioDropped     prometheus.Counter
	commands         *prometheus.CounterVec // kind, result
	listeners        prometheus.Gauge
	recordedSamples  prometheus.Counter
	processing       prometheus.Histogram
	frequency        prometheus.Gauge
	sampleRate       prometheus.Gauge
}

// Drop stages.
const (
	StageProcessing = "processing"
	StageNetwork    = "network"
	StageRecorder   = "recorder"
)

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		batchesAcquired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_acquired_total",
			Help:      "IQ batches produced by the acquisition stage.",
		}),
		batchesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dropped_total",
			Help:      "Batches dropped because the next stage's channel was full.",
		}, []string{"stage"}),
		batchesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_processed_total",
			Help:      "IQ batches consumed by the processing stage.",
		}),
		audioDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_dropped_total",
			Help:      "Audio samples dropped because the playback ring was full.",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Control commands handled by the acquisition stage.",
		}, []string{"kind", "result"}),
		listeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_listeners",
			Help:      "Connected PCM stream listeners.",
		}),
		recordedSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorded_samples_total",
			Help:      "IQ samples written to recordings.",
		}),
		processing: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time spent processing one IQ batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		frequency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frequency_hz",
			Help:      "Current centre frequency.",
		}),
		sampleRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_rate_hz",
			Help:      "Current sample rate.",
		}),
	}
}

func (m *Metrics) BatchAcquired() {
	if m == nil {
		return
	}
	m.batchesAcquired.Inc()
}

func (m *Metrics) BatchDropped(stage string) {
	if m == nil {
		return
	}
	m.batchesDropped.WithLabelValues(stage).Inc()
}

func (m *Metrics) BatchProcessed(d time.Duration) {
	if m == nil {
		return
	}
	m.batchesProcessed.Inc()
	m.processing.Observe(d.Seconds())
}

func (m *Metrics) AudioDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.audioDropped.Add(float64(n))
}

// Command records the outcome of one control command.
func (m *Metrics) Command(kind string, err error) {
	if m == nil {
		return
	}
	result := "applied"
	if err != nil {
		result = "failed"
	}
	m.commands.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}

func (m *Metrics) SamplesRecorded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordedSamples.Add(float64(n))
}

// Tuning mirrors the applied device settings.
func (m *Metrics) Tuning(frequency, sampleRate uint32) {
	if m == nil {
		return
	}
	m.frequency.Set(float64(frequency))
	m.sampleRate.Set(float64(sampleRate))
}
