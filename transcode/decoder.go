// Package transcode turns arbitrary audio inputs into 16-bit mono PCM by
// piping them through ffmpeg, and exposes the decoded stream as an
// audio.Source.
package transcode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/pitchscope/audio"
	"github.com/RyanBlaney/pitchscope/logging"
)

// DecoderConfig holds ffmpeg invocation settings
type DecoderConfig struct {
	SampleRate  int    `yaml:"sample_rate"`
	FFmpegPath  string `yaml:"ffmpeg_path"`  // Path to ffmpeg binary
	FFprobePath string `yaml:"ffprobe_path"` // Path to ffprobe binary

	// InputFormat forces the demuxer ("-f" before "-i"), e.g. "pulse" or
	// "alsa" for live capture, "lavfi" for generated test signals.
	InputFormat string `yaml:"input_format"`

	// Realtime reads file input at its native rate ("-re"), so files behave
	// like a live device.
	Realtime bool `yaml:"realtime"`

	// Live adds reconnect options for network streams.
	Live bool `yaml:"live"`

	MaxDuration  time.Duration `yaml:"max_duration"`  // 0 = no limit
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // Timeout for ffprobe

	// Filters are passed to ffmpeg as a single "-af" chain.
	Filters []string `yaml:"filters"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		SampleRate:   44100,
		FFmpegPath:   "ffmpeg",  // Assume in PATH
		FFprobePath:  "ffprobe", // Assume in PATH
		ProbeTimeout: 10 * time.Second,
	}
}

// AudioMetadata holds detected audio properties from ffprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// BuildArgs returns the ffmpeg arguments decoding input to s16le mono on
// stdout.
func (c *DecoderConfig) BuildArgs(input string) []string {
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}

	if c.Live {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "2",
			"-rw_timeout", "5000000", // 5 second read timeout
		)
	}
	if c.Realtime {
		args = append(args, "-re")
	}
	if c.InputFormat != "" {
		args = append(args, "-f", c.InputFormat)
	}
	args = append(args, "-i", input)

	if c.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", c.MaxDuration.Seconds()))
	}

	args = append(args,
		"-map", "0:a:0?",
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(c.SampleRate),
	)
	if len(c.Filters) > 0 {
		args = append(args, "-af", strings.Join(c.Filters, ","))
	}

	return append(args, "pipe:1")
}

// Probe runs ffprobe on input and reports its first audio stream.
func Probe(ctx context.Context, cfg *DecoderConfig, input string) (*AudioMetadata, error) {
	if cfg == nil {
		cfg = DefaultDecoderConfig()
	}
	if cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
	}
	if cfg.InputFormat != "" {
		args = append(args, "-f", cfg.InputFormat)
	}
	args = append(args, input)

	output, err := exec.CommandContext(ctx, cfg.FFprobePath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseFFprobeOutput(output)
}

func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found: %w", audio.ErrUnsupportedFormat)
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type %q: %w", stream.CodecType, audio.ErrUnsupportedFormat)
	}
	if stream.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d: %w", stream.Channels, audio.ErrUnsupportedFormat)
	}

	// Missing or malformed numeric fields are reported as zero
	sampleRate, _ := strconv.Atoi(stream.SampleRate)
	duration, _ := strconv.ParseFloat(stream.Duration, 64)
	bitrate, _ := strconv.Atoi(stream.BitRate)

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// FFmpegSource is an audio.Source backed by a running ffmpeg process. Each
// Read blocks until a full buffer of samples is decoded or the stream ends;
// the final read of a stream may be short.
type FFmpegSource struct {
	config *DecoderConfig
	input  string

	cmd    *exec.Cmd
	pcm    io.Reader
	stderr *bytes.Buffer
	raw    []byte

	closeOnce sync.Once
	closeErr  error

	logger logging.Logger
}

// StartFFmpeg launches ffmpeg on input. The process is killed when ctx is
// cancelled or Close is called.
func StartFFmpeg(ctx context.Context, cfg *DecoderConfig, input string) (*FFmpegSource, error) {
	if cfg == nil {
		cfg = DefaultDecoderConfig()
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("transcode: sample rate must be positive, got %d", cfg.SampleRate)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "ffmpeg_source",
		"input":     input,
	})

	args := cfg.BuildArgs(input)
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transcode: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Starting ffmpeg", logging.Fields{"args": strings.Join(args, " ")})
	if err := cmd.Start(); err != nil {
		logger.Error(err, "Failed to start ffmpeg")
		return nil, fmt.Errorf("transcode: start ffmpeg: %w", err)
	}

	return &FFmpegSource{
		config: cfg,
		input:  input,
		cmd:    cmd,
		pcm:    bufio.NewReaderSize(stdout, 64*1024),
		stderr: &stderr,
		logger: logger,
	}, nil
}

// SampleRate is the rate ffmpeg resamples to.
func (s *FFmpegSource) SampleRate() int {
	return s.config.SampleRate
}

func (s *FFmpegSource) Read(ctx context.Context, buf []int16) (int, int, error) {
	rate := s.config.SampleRate
	if err := ctx.Err(); err != nil {
		return 0, rate, err
	}
	if len(buf) == 0 {
		return 0, rate, nil
	}

	need := 2 * len(buf)
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]

	got, err := io.ReadFull(s.pcm, raw)
	n := decodeS16LE(buf, raw[:got])
	switch {
	case err == nil:
		return n, rate, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		// short tail; the next call reports the end
		return n, rate, nil
	case errors.Is(err, io.EOF):
		if werr := s.wait(); werr != nil {
			return 0, rate, werr
		}
		return 0, rate, io.EOF
	default:
		return n, rate, fmt.Errorf("transcode: read pcm: %w", err)
	}
}

// Close stops ffmpeg if it is still running and releases the process.
func (s *FFmpegSource) Close() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		// Kill fails with os.ErrProcessDone once the process has exited
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
		s.logger.Debug("ffmpeg stopped")
	})
	return s.closeErr
}

// wait reaps the process after stdout reached EOF and reports a non-zero
// exit together with ffmpeg's stderr.
func (s *FFmpegSource) wait() error {
	if s.cmd == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(s.stderr.String())
			s.logger.Error(err, "ffmpeg exited with error", logging.Fields{"stderr": msg})
			s.closeErr = fmt.Errorf("transcode: ffmpeg failed: %w, stderr: %s", err, msg)
		}
	})
	return s.closeErr
}

// decodeS16LE converts little-endian 16-bit PCM bytes into dst and returns
// the number of samples written. A trailing odd byte is ignored.
func decodeS16LE(dst []int16, src []byte) int {
	n := min(len(src)/2, len(dst))
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return n
}
