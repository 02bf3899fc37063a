package record

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/segmentio/parquet-go"
)

// sampleWriter encodes batches into an open capture file. Close flushes
// every layer and closes the file.
type sampleWriter interface {
	WriteSamples(samples []complex64) error
	Close() error
}

func newSampleWriter(f *os.File, meta Metadata) (sampleWriter, error) {
	switch meta.Format {
	case FormatParquet:
		return newParquetWriter(f, meta), nil
	case FormatCU8:
		return newRawWriter(f, meta.Compression, dsp.EncodeU8)
	case FormatCF32:
		return newRawWriter(f, meta.Compression, EncodeCF32)
	}
	return nil, fmt.Errorf("unknown recording format %q", meta.Format)
}

// EncodeCF32 appends samples to dst as little-endian float32 I/Q pairs.
func EncodeCF32(dst []byte, samples []complex64) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(real(s)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(imag(s)))
	}
	return dst
}

type rawWriter struct {
	file   *os.File
	zw     *zstd.Encoder
	bw     *bufio.Writer
	encode func(dst []byte, samples []complex64) []byte
	buf    []byte
}

func newRawWriter(f *os.File, c Compression, encode func([]byte, []complex64) []byte) (*rawWriter, error) {
	w := &rawWriter{file: f, encode: encode}
	var out io.Writer = f
	if c == CompressZstd {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		w.zw = zw
		out = zw
	}
	w.bw = bufio.NewWriterSize(out, 1<<20)
	return w, nil
}

func (w *rawWriter) WriteSamples(samples []complex64) error {
	w.buf = w.encode(w.buf[:0], samples)
	_, err := w.bw.Write(w.buf)
	return err
}

func (w *rawWriter) Close() error {
	err := w.bw.Flush()
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// IQRow is one sample in a parquet capture.
type IQRow struct {
	I float32 `parquet:"i"`
	Q float32 `parquet:"q"`
}

// MetadataKey is the parquet key-value entry holding the capture metadata.
const MetadataKey = "recording"

type parquetWriter struct {
	file io.Closer
	w    *parquet.GenericWriter[IQRow]
	rows []IQRow
}

func newParquetWriter(f io.WriteCloser, meta Metadata) *parquetWriter {
	metaStr := "{}"
	if b, err := json.Marshal(meta); err == nil {
		metaStr = string(b)
	}
	opts := []parquet.WriterOption{parquet.KeyValueMetadata(MetadataKey, metaStr)}
	if meta.Compression == CompressZstd {
		opts = append(opts, parquet.Compression(&parquet.Zstd))
	}
	return &parquetWriter{
		file: f,
		w:    parquet.NewGenericWriter[IQRow](f, opts...),
	}
}

func (p *parquetWriter) WriteSamples(samples []complex64) error {
	p.rows = p.rows[:0]
	for _, s := range samples {
		p.rows = append(p.rows, IQRow{I: real(s), Q: imag(s)})
	}
	_, err := p.w.Write(p.rows)
	return err
}

func (p *parquetWriter) Close() error {
	if err := p.w.Close(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
