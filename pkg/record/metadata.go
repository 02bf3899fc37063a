package record

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Metadata is the JSON sidecar written alongside each capture.
type Metadata struct {
	ID             uuid.UUID   `json:"id"`
	Path           string      `json:"path"`
	Format         Format      `json:"format"`
	Compression    Compression `json:"compression"`
	FrequencyHz    uint32      `json:"frequency_hz"`
	SampleRateHz   uint32      `json:"sample_rate_hz"`
	Started        time.Time   `json:"started"`
	Stopped        *time.Time  `json:"stopped,omitempty"`
	Samples        uint64      `json:"samples"`
	DroppedBatches uint64      `json:"dropped_batches"`
}

// SidecarPath returns the metadata path for a capture. It never equals
// the capture path.
func SidecarPath(path string) string {
	return path + ".json"
}

// LoadMetadata reads a sidecar.
func LoadMetadata(path string) (Metadata, error) {
	var m Metadata
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// create writes the first version of the sidecar, failing if path exists.
func (m Metadata) create(path string) error {
	return m.write(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
}

// save rewrites a sidecar this recorder created.
func (m Metadata) save(path string) error {
	return m.write(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (m Metadata) write(path string, flag int) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
