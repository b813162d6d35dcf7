package audio

import (
	"context"
	"errors"
	"io"
)

// ErrUnsupportedFormat is returned by sources that cannot deliver signed
// 16-bit mono PCM from their input.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Source delivers frames on demand. Read fills buf with up to len(buf)
// samples and returns how many are valid together with the sample rate they
// were captured at. Live sources should block until data is available.
// n <= 0 with a nil error means "no data this time"; the caller skips the
// iteration and backs off briefly. io.EOF signals the end of the stream,
// possibly after a final short read.
type Source interface {
	Read(ctx context.Context, buf []int16) (n int, sampleRate int, err error)
}

// SliceSource serves an in-memory sample slice in consecutive chunks.
type SliceSource struct {
	samples    []int16
	sampleRate int
	pos        int
}

// NewSliceSource returns a source that walks samples front to back.
func NewSliceSource(samples []int16, sampleRate int) *SliceSource {
	return &SliceSource{samples: samples, sampleRate: sampleRate}
}

func (s *SliceSource) Read(ctx context.Context, buf []int16) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, s.sampleRate, err
	}
	if s.pos >= len(s.samples) {
		return 0, s.sampleRate, io.EOF
	}
	n := copy(buf, s.samples[s.pos:])
	s.pos += n
	return n, s.sampleRate, nil
}

// Reset rewinds the source to the first sample.
func (s *SliceSource) Reset() {
	s.pos = 0
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, buf []int16) (int, int, error)

func (f SourceFunc) Read(ctx context.Context, buf []int16) (int, int, error) {
	return f(ctx, buf)
}
