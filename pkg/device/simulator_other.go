//go:build !linux

package device

import (
	"context"
	"fmt"
)

// RunSimulator needs named pipes and is only available on Linux.
func RunSimulator(ctx context.Context, path string, opts SimulatorOptions) error {
	return fmt.Errorf("simulator %s: %w", path, ErrUnsupported)
}
