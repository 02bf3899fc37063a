// Package stream distributes demodulated audio to TCP listeners as raw
// 16-bit little-endian mono PCM.
package stream

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/metrics"
)

const (
	DefaultWriteTimeout = 2 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Options configure a Broadcaster.
type Options struct {
	// WriteTimeout bounds each write to a listener. A listener that cannot
	// take a batch within it is dropped.
	WriteTimeout time.Duration
	// PollInterval is how often the shutdown flag is rechecked while idle.
	PollInterval time.Duration
	Shutdown     *atomic.Bool
	Metrics      *metrics.Metrics
	Logger       *log.Logger
}

type listener struct {
	id   uuid.UUID
	conn net.Conn
}

// Broadcaster forwards audio batches to every connected listener. New
// connections are accepted on a separate goroutine and picked up between
// batches, so a slow handshake never stalls audio forwarding.
type Broadcaster struct {
	ln       net.Listener
	opts     Options
	logger   *log.Logger
	pending  chan net.Conn
	quit     chan struct{}
	count    atomic.Int32
	active   []listener
	buf      []byte
	acceptWG sync.WaitGroup
}

// New wraps ln. Run takes ownership of it.
func New(ln net.Listener, opts Options) *Broadcaster {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Shutdown == nil {
		opts.Shutdown = new(atomic.Bool)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Broadcaster{
		ln:      ln,
		opts:    opts,
		logger:  opts.Logger.WithPrefix("stream"),
		pending: make(chan net.Conn, 16),
		quit:    make(chan struct{}),
	}
}

// Addr is the listening address.
func (b *Broadcaster) Addr() net.Addr { return b.ln.Addr() }

// Listeners reports the number of connected listeners.
func (b *Broadcaster) Listeners() int { return int(b.count.Load()) }

// Run forwards batches from in until it is closed or the shutdown flag is
// set. On return the listener and every connection are closed.
func (b *Broadcaster) Run(in <-chan []float32) {
	b.logger.Info("listening", "addr", b.ln.Addr())
	b.acceptWG.Add(1)
	go b.acceptLoop()

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	defer b.close()

	for !b.opts.Shutdown.Load() {
		select {
		case conn := <-b.pending:
			b.add(conn)
		case audio, ok := <-in:
			if !ok {
				b.logger.Info("audio source closed")
				return
			}
			b.broadcast(audio)
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) acceptLoop() {
	defer b.acceptWG.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			b.logger.Warn("accept failed", "err", err)
			select {
			case <-b.quit:
				return
			case <-time.After(b.opts.PollInterval):
			}
			continue
		}
		select {
		case b.pending <- conn:
		case <-b.quit:
			conn.Close()
			return
		}
	}
}

func (b *Broadcaster) add(conn net.Conn) {
	l := listener{id: uuid.New(), conn: conn}
	b.active = append(b.active, l)
	b.opts.Metrics.SetListeners(len(b.active))
	b.count.Store(int32(len(b.active)))
	b.logger.Info("listener connected", "id", l.id, "remote", conn.RemoteAddr(), "listeners", len(b.active))
}

func (b *Broadcaster) broadcast(audio []float32) {
	if len(b.active) == 0 {
		return
	}
	b.buf = Encode(b.buf[:0], audio)

	kept := b.active[:0]
	for _, l := range b.active {
		l.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
		if _, err := l.conn.Write(b.buf); err != nil {
			b.logger.Info("listener dropped", "id", l.id, "err", err)
			l.conn.Close()
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(b.active); i++ {
		b.active[i] = listener{}
	}
	if len(kept) != len(b.active) {
		b.active = kept
		b.opts.Metrics.SetListeners(len(kept))
		b.count.Store(int32(len(kept)))
	}
}

func (b *Broadcaster) close() {
	close(b.quit)
	b.ln.Close()
	b.acceptWG.Wait()

drain:
	for {
		select {
		case conn := <-b.pending:
			conn.Close()
		default:
			break drain
		}
	}
	for _, l := range b.active {
		l.conn.Close()
	}
	b.active = nil
	b.opts.Metrics.SetListeners(0)
	b.count.Store(0)
	b.logger.Info("stopped")
}

// Encode appends samples to dst as 16-bit little-endian PCM. Samples are
// clamped to [-1, 1] and scaled by 32767.
func Encode(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(dsp.Clamp(s)*32767)))
	}
	return dst
}
