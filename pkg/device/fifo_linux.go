//go:build linux

package device

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	maxPipeSize   = 1024 * 1024
	pollTimeoutMS = 250
)

// FIFO reads raw u8 IQ from a named pipe or capture file, such as the
// output of rtl_sdr or the simulator.
type FIFO struct {
	fixedTuner
	path string

	mu sync.Mutex
	fd int
}

// OpenFIFO opens path for reading. For a named pipe this blocks until a
// writer connects. settings describe how the stream was produced.
func OpenFIFO(path string, settings Settings) (*FIFO, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}

	// Best effort; fails harmlessly on regular files.
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)

	return &FIFO{
		fixedTuner: fixedTuner{settings: settings},
		path:       path,
		fd:         fd,
	}, nil
}

// ReadBlock fills buf. If no data arrives within the poll interval it
// returns what it has with os.ErrDeadlineExceeded; io.EOF once the writer
// has gone away.
func (f *FIFO) ReadBlock(buf []byte) (int, error) {
	f.mu.Lock()
	fd := f.fd
	f.mu.Unlock()
	if fd < 0 {
		return 0, ErrClosed
	}

	total := 0
	for total < len(buf) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		ready, err := unix.Poll(fds, pollTimeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, fmt.Errorf("poll %s: %w", f.path, err)
		}
		if ready == 0 {
			return total, os.ErrDeadlineExceeded
		}

		n, err := unix.Read(fd, buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return total, fmt.Errorf("read %s after %d bytes: %w", f.path, total, err)
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

func (f *FIFO) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}
