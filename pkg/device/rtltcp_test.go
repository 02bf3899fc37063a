package device

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rtlCmd struct {
	op  byte
	arg uint32
}

// fakeRTLTCP accepts one client, greets it, records commands and streams
// payload once.
func fakeRTLTCP(t *testing.T, payload []byte) (string, <-chan rtlCmd) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cmds := make(chan rtlCmd, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		hdr := make([]byte, rtlHeaderSize)
		copy(hdr, rtlMagic)
		binary.BigEndian.PutUint32(hdr[4:], uint32(TunerR820T))
		binary.BigEndian.PutUint32(hdr[8:], 29)
		conn.Write(hdr)
		conn.Write(payload)

		buf := make([]byte, rtlCmdSize)
		for {
			if _, err := io.ReadFull(conn, buf); err != nil {
				close(cmds)
				return
			}
			cmds <- rtlCmd{op: buf[0], arg: binary.BigEndian.Uint32(buf[1:])}
		}
	}()
	return ln.Addr().String(), cmds
}

func nextCmd(t *testing.T, cmds <-chan rtlCmd) rtlCmd {
	t.Helper()
	select {
	case c := <-cmds:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return rtlCmd{}
	}
}

func TestRTLTCPGreeting(t *testing.T) {
	addr, _ := fakeRTLTCP(t, nil)
	dev, err := DialRTLTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, TunerR820T, dev.Info().Tuner)
	assert.Equal(t, uint32(29), dev.Info().GainCount)
	assert.Equal(t, "R820T", dev.Info().Tuner.String())
}

func TestRTLTCPCommands(t *testing.T) {
	addr, cmds := fakeRTLTCP(t, nil)
	dev, err := DialRTLTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.SetFrequency(144_390_000))
	assert.Equal(t, rtlCmd{rtlSetFrequency, 144_390_000}, nextCmd(t, cmds))

	require.NoError(t, dev.SetSampleRate(2_048_000))
	assert.Equal(t, rtlCmd{rtlSetSampleRate, 2_048_000}, nextCmd(t, cmds))

	require.NoError(t, dev.SetGain(ManualGain(496)))
	assert.Equal(t, rtlCmd{rtlSetGainMode, 1}, nextCmd(t, cmds))
	assert.Equal(t, rtlCmd{rtlSetGain, 496}, nextCmd(t, cmds))

	require.NoError(t, dev.SetGain(AutoGain()))
	assert.Equal(t, rtlCmd{rtlSetGainMode, 0}, nextCmd(t, cmds))

	require.NoError(t, dev.SetPPM(-3))
	c := nextCmd(t, cmds)
	assert.Equal(t, byte(rtlSetPPM), c.op)
	assert.Equal(t, int32(-3), int32(c.arg))

	require.NoError(t, dev.SetAGC(true))
	assert.Equal(t, rtlCmd{rtlSetAGCMode, 1}, nextCmd(t, cmds))
}

func TestSettingsEnableDigitalAGC(t *testing.T) {
	addr, cmds := fakeRTLTCP(t, nil)
	dev, err := DialRTLTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer dev.Close()

	s := DefaultSettings()
	s.DigitalAGC = true
	require.NoError(t, s.Apply(dev))
	assert.Equal(t, rtlSetSampleRate, int(nextCmd(t, cmds).op))
	assert.Equal(t, rtlSetFrequency, int(nextCmd(t, cmds).op))
	assert.Equal(t, rtlCmd{rtlSetGainMode, 0}, nextCmd(t, cmds))
	assert.Equal(t, rtlSetPPM, int(nextCmd(t, cmds).op))
	assert.Equal(t, rtlCmd{rtlSetAGCMode, 1}, nextCmd(t, cmds))
}

func TestRTLTCPReadBlock(t *testing.T) {
	payload := []byte{0, 255, 127, 128, 10, 20}
	addr, _ := fakeRTLTCP(t, payload)
	dev, err := DialRTLTCP(context.Background(), addr, 200*time.Millisecond)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, 4)
	n, err := dev.ReadBlock(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, payload[:4], buf)

	n, err = dev.ReadBlock(buf)
	assert.Equal(t, 2, n)
	assert.True(t, IsTimeout(err), "short block should time out, got %v", err)
}

func TestRTLTCPReadTimeoutIsShort(t *testing.T) {
	addr, _ := fakeRTLTCP(t, nil)
	dev, err := DialRTLTCP(context.Background(), addr, 5*time.Second)
	require.NoError(t, err)
	defer dev.Close()

	start := time.Now()
	n, err := dev.ReadBlock(make([]byte, 16))
	assert.Zero(t, n)
	assert.True(t, IsTimeout(err), "stalled server should time out, got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRTLTCPClosed(t *testing.T) {
	addr, _ := fakeRTLTCP(t, nil)
	dev, err := DialRTLTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	require.NoError(t, dev.Close())
	assert.ErrorIs(t, dev.SetFrequency(100e6), ErrClosed)
	assert.NoError(t, dev.Close())
}

func TestRTLTCPBadMagic(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("NOPE00000000"))
		conn.Close()
	}()
	_, err = DialRTLTCP(context.Background(), ln.Addr().String(), time.Second)
	assert.ErrorContains(t, err, "bad magic")
}

func TestGainString(t *testing.T) {
	assert.Equal(t, "auto", AutoGain().String())
	assert.Equal(t, "49.6 dB", ManualGain(496).String())
	assert.Equal(t, "-1.5 dB", ManualGain(-15).String())
}

type recordingTuner struct {
	calls []string
	fail  string
}

func (r *recordingTuner) step(name string) error {
	r.calls = append(r.calls, name)
	if name == r.fail {
		return ErrUnsupported
	}
	return nil
}

func (r *recordingTuner) SetFrequency(uint32) error  { return r.step("freq") }
func (r *recordingTuner) SetSampleRate(uint32) error { return r.step("rate") }
func (r *recordingTuner) SetGain(Gain) error         { return r.step("gain") }
func (r *recordingTuner) SetPPM(int32) error         { return r.step("ppm") }

func TestSettingsApply(t *testing.T) {
	tu := &recordingTuner{}
	require.NoError(t, DefaultSettings().Apply(tu))
	assert.Equal(t, []string{"rate", "freq", "gain", "ppm"}, tu.calls)

	tu = &recordingTuner{fail: "gain"}
	err := DefaultSettings().Apply(tu)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, []string{"rate", "freq", "gain"}, tu.calls)
}

func TestCommonSampleRates(t *testing.T) {
	assert.True(t, IsCommonSampleRate(DefaultSampleRate))
	assert.False(t, IsCommonSampleRate(2_000_000))
}
