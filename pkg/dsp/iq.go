// Package dsp holds the signal processing used by the receiver: byte to IQ
// conversion, the spectral transform, demodulators and the audio resampler.
//
// Nothing in this package locks or logs. Every stateful type is owned by a
// single goroutine.
package dsp

// AudioRate is the fixed downstream audio rate the demodulators assume.
const AudioRate = 48000

// ConvertU8 converts unsigned 8-bit interleaved I/Q bytes to samples,
// appending to dst. A trailing odd byte is ignored.
func ConvertU8(dst []complex64, raw []byte) []complex64 {
	n := len(raw) / 2
	if cap(dst)-len(dst) < n {
		grown := make([]complex64, len(dst), len(dst)+n)
		copy(grown, dst)
		dst = grown
	}
	for i := 0; i < n; i++ {
		re := (float32(raw[2*i]) - 127.5) / 128.0
		im := (float32(raw[2*i+1]) - 127.5) / 128.0
		dst = append(dst, complex(re, im))
	}
	return dst
}

// EncodeU8 is the inverse of ConvertU8, used by the simulator and the raw
// recorder. Components are clamped to the representable range.
func EncodeU8(dst []byte, samples []complex64) []byte {
	for _, s := range samples {
		dst = append(dst, toU8(real(s)), toU8(imag(s)))
	}
	return dst
}

func toU8(v float32) byte {
	x := v*128.0 + 127.5
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return byte(x + 0.5)
}

// Clamp limits v to [-1, 1].
func Clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ClampAll clamps every sample in place and returns buf.
func ClampAll(buf []float32) []float32 {
	for i, v := range buf {
		buf[i] = Clamp(v)
	}
	return buf
}
