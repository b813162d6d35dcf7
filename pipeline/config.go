package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/pitchscope/algorithms/temporal"
	"github.com/RyanBlaney/pitchscope/algorithms/tonal"
	"github.com/RyanBlaney/pitchscope/logging"
)

var (
	// ErrInvalidConfig wraps every validation failure returned by Validate.
	ErrInvalidConfig = errors.New("pipeline: invalid config")

	// ErrUnknownEstimator marks an estimator name that is not recognised.
	ErrUnknownEstimator = errors.New("pipeline: unknown estimator")
)

// Config holds every tunable of the pitch pipeline and its session loop.
// The numeric defaults are empirically tuned starting points, not derived
// optima.
type Config struct {
	// SampleRate is the expected capture rate in Hz. Frames report their own
	// rate; this one sizes defaults and validates sources.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the frame capacity in samples. YIN needs full frames.
	FrameSize int `yaml:"frame_size"`

	// SilenceThreshold is the normalized RMS (0..1) below which a frame is
	// gated as silent.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// RemoveDC runs frames through a DC blocking high-pass before the gate.
	RemoveDC bool `yaml:"remove_dc"`

	// Estimator is "autocorrelation" or "yin".
	Estimator string `yaml:"estimator"`

	Autocorrelation tonal.AutocorrelationParams `yaml:"autocorrelation"`

	// YINThreshold is the CMND threshold for candidate lags.
	YINThreshold float64 `yaml:"yin_threshold"`

	// MinHz and MaxHz bound the admissible band after estimation.
	MinHz float64 `yaml:"min_hz"`
	MaxHz float64 `yaml:"max_hz"`

	// SmoothingWeight is the weight of the previous output in the EMA.
	SmoothingWeight float64 `yaml:"smoothing_weight"`

	// WaveformSamples is how many leading samples each Result carries as a
	// normalized preview. 0 disables the preview.
	WaveformSamples int `yaml:"waveform_samples"`

	Session SessionConfig `yaml:"session"`

	LogLevel string `yaml:"log_level"`
}

// SessionConfig tunes the capture loop and result hand-off.
type SessionConfig struct {
	// ResultBuffer is the capacity of the results channel. Results that do
	// not fit wait in the session's pending queue, so capture never stalls.
	ResultBuffer int `yaml:"result_buffer"`

	// MaxPending caps how many undelivered results the session holds,
	// counting the channel buffer. Beyond it the newest result is dropped.
	// 0 keeps every result, which suits files; live inputs may prefer a cap.
	MaxPending int `yaml:"max_pending"`

	// FrameInterval is the minimum time between two frame pulls; 0 pulls as
	// fast as the source delivers.
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// DefaultConfig returns a YIN pipeline for 44.1 kHz, 2048-sample frames.
func DefaultConfig() Config {
	return Config{
		SampleRate:       44100,
		FrameSize:        2048,
		SilenceThreshold: temporal.DefaultSilenceThreshold,
		Estimator:        tonal.MethodYIN.String(),
		Autocorrelation:  tonal.DefaultAutocorrelationParams(),
		YINThreshold:     tonal.DefaultYINThreshold,
		MinHz:            tonal.DefaultMinHz,
		MaxHz:            tonal.DefaultMaxHz,
		SmoothingWeight:  tonal.DefaultSmoothingWeight,
		WaveformSamples:  256,
		Session: SessionConfig{
			ResultBuffer: 16,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path on top of DefaultConfig and validates
// the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of DefaultConfig. Unknown keys
// are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame_size must be positive, got %d", c.FrameSize))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("silence_threshold must be within [0, 1], got %v", c.SilenceThreshold))
	}

	method, err := tonal.ParseMethod(c.Estimator)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrUnknownEstimator, err))
	}
	switch {
	case err != nil:
	case method == tonal.MethodAutocorrelation:
		if c.Autocorrelation.MinFreq <= 0 || c.Autocorrelation.MaxFreq <= c.Autocorrelation.MinFreq {
			errs = append(errs, fmt.Errorf("autocorrelation band [%v, %v] is empty",
				c.Autocorrelation.MinFreq, c.Autocorrelation.MaxFreq))
		}
		if c.Autocorrelation.MinStrength < 0 {
			errs = append(errs, fmt.Errorf("autocorrelation.min_strength must not be negative, got %v",
				c.Autocorrelation.MinStrength))
		}
	case method == tonal.MethodYIN:
		if c.YINThreshold <= 0 || c.YINThreshold >= 1 {
			errs = append(errs, fmt.Errorf("yin_threshold must be within (0, 1), got %v", c.YINThreshold))
		}
		if c.FrameSize > 0 && c.FrameSize < 6 {
			errs = append(errs, fmt.Errorf("frame_size %d is too small for yin", c.FrameSize))
		}
	}

	if c.MinHz <= 0 || c.MaxHz <= c.MinHz {
		errs = append(errs, fmt.Errorf("admissible band [%v, %v] is empty", c.MinHz, c.MaxHz))
	}
	if c.SmoothingWeight < 0 || c.SmoothingWeight >= 1 {
		errs = append(errs, fmt.Errorf("smoothing_weight must be within [0, 1), got %v", c.SmoothingWeight))
	}
	if c.WaveformSamples < 0 {
		errs = append(errs, fmt.Errorf("waveform_samples must not be negative, got %d", c.WaveformSamples))
	}
	if c.Session.ResultBuffer < 0 {
		errs = append(errs, fmt.Errorf("session.result_buffer must not be negative, got %d", c.Session.ResultBuffer))
	}
	if c.Session.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("session.max_pending must not be negative, got %d", c.Session.MaxPending))
	}
	if c.Session.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("session.frame_interval must not be negative, got %v", c.Session.FrameInterval))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Method returns the parsed estimator choice. It assumes a validated config.
func (c Config) Method() tonal.Method {
	m, _ := tonal.ParseMethod(c.Estimator)
	return m
}
