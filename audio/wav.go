package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAVSource reads WAV data and delivers the first channel as signed 16-bit
// mono frames. 8-bit PCM and 32-bit IEEE float data are rescaled; other
// encodings are rejected with ErrUnsupportedFormat when the header is parsed.
type WAVSource struct {
	w        *wav.Wav
	channels int
	closer   io.Closer

	// remaining counts interleaved samples left in the data chunk.
	remaining int
}

// NewWAVSource parses the WAV header from r.
func NewWAVSource(r io.Reader) (*WAVSource, error) {
	tap := &chunkTap{r: r}
	w, err := wav.New(tap)
	if err != nil {
		return nil, fmt.Errorf("audio: parse wav: %w", err)
	}
	switch {
	case w.AudioFormat == wavFormatPCM && (w.BitsPerSample == 8 || w.BitsPerSample == 16):
	case w.AudioFormat == wavFormatFloat && w.BitsPerSample == 32:
	default:
		return nil, fmt.Errorf("%w: format %d with %d bits per sample",
			ErrUnsupportedFormat, w.AudioFormat, w.BitsPerSample)
	}
	channels := int(w.NumChannels)
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}
	dataBytes, ok := tap.dataSize()
	if !ok {
		return nil, fmt.Errorf("audio: parse wav: data chunk header not found")
	}
	tap.done = true

	src := &WAVSource{
		w:         w,
		channels:  channels,
		remaining: int(dataBytes) / (int(w.BitsPerSample) / 8),
	}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src, nil
}

// OpenWAV opens path and wraps it in a WAVSource. Close releases the file.
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	src, err := NewWAVSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// SampleRate returns the rate declared in the WAV header.
func (s *WAVSource) SampleRate() int {
	return int(s.w.SampleRate)
}

// Channels returns the channel count declared in the WAV header.
func (s *WAVSource) Channels() int {
	return s.channels
}

// Read delivers up to len(buf) frames. The last read of a file is usually
// short; io.EOF follows once the data chunk is exhausted.
func (s *WAVSource) Read(ctx context.Context, buf []int16) (int, int, error) {
	rate := s.SampleRate()
	if err := ctx.Err(); err != nil {
		return 0, rate, err
	}
	frames := min(len(buf), s.remaining/s.channels)
	if frames == 0 {
		if len(buf) == 0 {
			return 0, rate, nil
		}
		return 0, rate, io.EOF
	}

	raw, err := s.w.ReadSamples(frames * s.channels)
	if err != nil {
		s.remaining = 0
		// a data chunk that claims more than the file holds ends the stream
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, rate, io.EOF
		}
		return 0, rate, err
	}
	s.remaining -= frames * s.channels

	n := 0
	switch data := raw.(type) {
	case []int16:
		for i := 0; i < len(data) && n < len(buf); i += s.channels {
			buf[n] = data[i]
			n++
		}
	case []uint8:
		for i := 0; i < len(data) && n < len(buf); i += s.channels {
			buf[n] = int16((int(data[i]) - 128) << 8)
			n++
		}
	case []float32:
		for i := 0; i < len(data) && n < len(buf); i += s.channels {
			buf[n] = floatToInt16(data[i])
			n++
		}
	default:
		return 0, rate, fmt.Errorf("%w: sample type %T", ErrUnsupportedFormat, raw)
	}
	return n, rate, nil
}

// Close releases the underlying reader when it is closable.
func (s *WAVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func floatToInt16(v float32) int16 {
	x := math.Round(float64(v) * math.MaxInt16)
	switch {
	case x > math.MaxInt16:
		return math.MaxInt16
	case x < math.MinInt16:
		return math.MinInt16
	}
	return int16(x)
}

// chunkTap remembers the last chunk header read while the WAV header is
// parsed. wav.New returns right after the "data" chunk header, so its size
// field is the tail of what passed through.
type chunkTap struct {
	r    io.Reader
	last [8]byte
	done bool
}

func (t *chunkTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if !t.done && n > 0 {
		if n >= len(t.last) {
			copy(t.last[:], p[n-len(t.last):n])
		} else {
			copy(t.last[:], t.last[n:])
			copy(t.last[len(t.last)-n:], p[:n])
		}
	}
	return n, err
}

func (t *chunkTap) dataSize() (uint32, bool) {
	if string(t.last[:4]) != "data" {
		return 0, false
	}
	return binary.LittleEndian.Uint32(t.last[4:]), true
}
