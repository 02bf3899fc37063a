package device

import (
	"github.com/charmbracelet/log"
)

// SimulatorOptions configure RunSimulator.
type SimulatorOptions struct {
	Settings  Settings
	Seed      uint64
	BatchSize int
	Logger    *log.Logger
}

func (o *SimulatorOptions) defaults() {
	if o.Settings.SampleRate == 0 {
		o.Settings = DefaultSettings()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	o.Logger = o.Logger.WithPrefix("sim")
}
