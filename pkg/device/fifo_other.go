//go:build !linux

package device

import "fmt"

// FIFO is only available on Linux.
type FIFO struct {
	fixedTuner
}

// OpenFIFO is not supported on this platform.
func OpenFIFO(path string, settings Settings) (*FIFO, error) {
	return nil, fmt.Errorf("fifo source %s: %w", path, ErrUnsupported)
}

func (f *FIFO) ReadBlock(buf []byte) (int, error) { return 0, ErrUnsupported }

func (f *FIFO) Close() error { return nil }
