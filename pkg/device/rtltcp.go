package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// rtl_tcp command opcodes. Each command is one opcode byte followed by a
// big-endian uint32 argument.
const (
	rtlSetFrequency  = 0x01
	rtlSetSampleRate = 0x02
	rtlSetGainMode   = 0x03
	rtlSetGain       = 0x04
	rtlSetPPM        = 0x05
	rtlSetAGCMode    = 0x08
)

const (
	rtlMagic      = "RTL0"
	rtlHeaderSize = 12
	rtlCmdSize    = 5

	// rtlReadTimeout bounds a single block read.
	rtlReadTimeout = 100 * time.Millisecond
)

// TunerType identifies the tuner chip reported by the rtl_tcp server.
type TunerType uint32

const (
	TunerUnknown TunerType = iota
	TunerE4000
	TunerFC0012
	TunerFC0013
	TunerFC2580
	TunerR820T
	TunerR828D
)

var tunerNames = map[TunerType]string{
	TunerUnknown: "unknown",
	TunerE4000:   "E4000",
	TunerFC0012:  "FC0012",
	TunerFC0013:  "FC0013",
	TunerFC2580:  "FC2580",
	TunerR820T:   "R820T",
	TunerR828D:   "R828D",
}

func (t TunerType) String() string {
	if n, ok := tunerNames[t]; ok {
		return n
	}
	return fmt.Sprintf("tuner(%d)", uint32(t))
}

// DongleInfo is the greeting an rtl_tcp server sends on connect.
type DongleInfo struct {
	Tuner     TunerType `json:"tuner"`
	GainCount uint32    `json:"gain_count"`
}

// RTLTCP is a client for an rtl_tcp server.
type RTLTCP struct {
	conn        net.Conn
	info        DongleInfo
	timeout     time.Duration
	readTimeout time.Duration

	mu     sync.Mutex // serialises command writes
	closed bool
}

// DialRTLTCP connects to addr and reads the dongle greeting. timeout bounds
// the dial, the greeting and every command write. Block reads use the
// shorter of timeout and 100 ms.
func DialRTLTCP(ctx context.Context, addr string, timeout time.Duration) (*RTLTCP, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rtl_tcp %s: %w", addr, err)
	}

	hdr := make([]byte, rtlHeaderSize)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	if _, err := io.ReadFull(conn, hdr); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read rtl_tcp header: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if string(hdr[:4]) != rtlMagic {
		conn.Close()
		return nil, fmt.Errorf("rtl_tcp %s: bad magic %q", addr, hdr[:4])
	}

	return &RTLTCP{
		conn:        conn,
		timeout:     timeout,
		readTimeout: min(timeout, rtlReadTimeout),
		info: DongleInfo{
			Tuner:     TunerType(binary.BigEndian.Uint32(hdr[4:8])),
			GainCount: binary.BigEndian.Uint32(hdr[8:12]),
		},
	}, nil
}

// Info returns the greeting received on connect.
func (r *RTLTCP) Info() DongleInfo { return r.info }

func (r *RTLTCP) command(op byte, arg uint32) error {
	var buf [rtlCmdSize]byte
	buf[0] = op
	binary.BigEndian.PutUint32(buf[1:], arg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	_ = r.conn.SetWriteDeadline(time.Now().Add(r.timeout))
	if _, err := r.conn.Write(buf[:]); err != nil {
		return fmt.Errorf("rtl_tcp command 0x%02x: %w", op, err)
	}
	return nil
}

func (r *RTLTCP) SetFrequency(hz uint32) error {
	return r.command(rtlSetFrequency, hz)
}

func (r *RTLTCP) SetSampleRate(hz uint32) error {
	return r.command(rtlSetSampleRate, hz)
}

// SetGain switches between tuner AGC and a manual gain.
func (r *RTLTCP) SetGain(g Gain) error {
	if g.Auto {
		return r.command(rtlSetGainMode, 0)
	}
	if err := r.command(rtlSetGainMode, 1); err != nil {
		return err
	}
	return r.command(rtlSetGain, uint32(g.TenthsDB))
}

func (r *RTLTCP) SetPPM(ppm int32) error {
	return r.command(rtlSetPPM, uint32(ppm))
}

// SetAGC toggles the RTL2832 digital AGC, independent of the tuner gain mode.
func (r *RTLTCP) SetAGC(on bool) error {
	var v uint32
	if on {
		v = 1
	}
	return r.command(rtlSetAGCMode, v)
}

// ReadBlock reads until buf is full. A read that times out returns the
// bytes read so far and an error matching os.ErrDeadlineExceeded.
func (r *RTLTCP) ReadBlock(buf []byte) (int, error) {
	_ = r.conn.SetReadDeadline(time.Now().Add(r.readTimeout))
	n, err := io.ReadFull(r.conn, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (r *RTLTCP) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.conn.Close()
}

// IsTimeout reports whether err is a read deadline expiry, which callers
// treat as "no data yet" rather than a disconnect.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
