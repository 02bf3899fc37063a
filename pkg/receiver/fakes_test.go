package receiver

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/ocupoint/sdrrx/pkg/device"
)

var errTuner = errors.New("tuner rejected value")

// fakeDevice records configuration calls and serves queued reads.
type fakeDevice struct {
	mu    sync.Mutex
	freqs []uint32
	rates []uint32
	gains []device.Gain
	ppms  []int32
	fail  bool
	reads []fakeRead
}

type fakeRead struct {
	data []byte
	err  error
}

func (f *fakeDevice) SetFrequency(hz uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errTuner
	}
	f.freqs = append(f.freqs, hz)
	return nil
}

func (f *fakeDevice) SetSampleRate(hz uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errTuner
	}
	f.rates = append(f.rates, hz)
	return nil
}

func (f *fakeDevice) SetGain(g device.Gain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errTuner
	}
	f.gains = append(f.gains, g)
	return nil
}

func (f *fakeDevice) SetPPM(ppm int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errTuner
	}
	f.ppms = append(f.ppms, ppm)
	return nil
}

func (f *fakeDevice) ReadBlock(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	n := copy(buf, r.data)
	return n, r.err
}

func (f *fakeDevice) Close() error { return nil }

func timeoutRead(data []byte) fakeRead {
	return fakeRead{data: data, err: os.ErrDeadlineExceeded}
}

// fakeRecorder tracks lifecycle calls and accepts up to limit batches.
type fakeRecorder struct {
	mu        sync.Mutex
	active    bool
	path      string
	submitted int
	limit     int
	startErr  error
	// onStart runs after a successful start, standing in for the writer
	// reporting samples straight away.
	onStart func()
}

func (r *fakeRecorder) Start(path string, frequency, sampleRate uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.active, r.path = true, path
	if r.onStart != nil {
		r.onStart()
	}
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return errors.New("not recording")
	}
	r.active = false
	return nil
}

func (r *fakeRecorder) Submit(samples []complex64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return true
	}
	if r.limit > 0 && r.submitted >= r.limit {
		return false
	}
	r.submitted++
	return true
}
