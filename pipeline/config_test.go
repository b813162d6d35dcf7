package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/pitchscope/algorithms/tonal"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
	if cfg.Method() != tonal.MethodYIN {
		t.Errorf("default method = %v, want yin", cfg.Method())
	}
}

func TestLoadFromReaderEmptyYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := DefaultConfig()
	if cfg.FrameSize != want.FrameSize || cfg.SilenceThreshold != want.SilenceThreshold ||
		cfg.Estimator != want.Estimator || cfg.Session != want.Session {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadFromReaderOverrides(t *testing.T) {
	const doc = `
estimator: autocorrelation
remove_dc: true
frame_size: 4096
autocorrelation:
  min_freq: 40
  max_freq: 1000
  min_strength: 1e9
  use_fft: true
min_hz: 80
session:
  result_buffer: 4
  max_pending: 64
  frame_interval: 40ms
log_level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Method() != tonal.MethodAutocorrelation {
		t.Errorf("method = %v, want autocorrelation", cfg.Method())
	}
	if !cfg.RemoveDC {
		t.Error("remove_dc not applied")
	}
	if cfg.FrameSize != 4096 {
		t.Errorf("frame_size = %d, want 4096", cfg.FrameSize)
	}
	if !cfg.Autocorrelation.UseFFT || cfg.Autocorrelation.MinFreq != 40 {
		t.Errorf("autocorrelation = %+v", cfg.Autocorrelation)
	}
	if cfg.MinHz != 80 || cfg.MaxHz != tonal.DefaultMaxHz {
		t.Errorf("band = [%v, %v], want [80, %v]", cfg.MinHz, cfg.MaxHz, tonal.DefaultMaxHz)
	}
	if cfg.Session.ResultBuffer != 4 || cfg.Session.MaxPending != 64 || cfg.Session.FrameInterval != 40*time.Millisecond {
		t.Errorf("session = %+v", cfg.Session)
	}
	// untouched keys keep their defaults
	if cfg.SmoothingWeight != tonal.DefaultSmoothingWeight {
		t.Errorf("smoothing_weight = %v, want default", cfg.SmoothingWeight)
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("frame_sise: 1024\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0
	cfg.SilenceThreshold = 2
	cfg.MinHz = 500
	cfg.MaxHz = 100
	cfg.SmoothingWeight = 1
	cfg.LogLevel = "chatty"

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	for _, key := range []string{"sample_rate", "silence_threshold", "admissible band", "smoothing_weight", "chatty"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %q", err, key)
		}
	}
}

func TestValidateEstimator(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown estimator", func(c *Config) { c.Estimator = "cepstrum" }, ErrUnknownEstimator},
		{"yin threshold", func(c *Config) { c.YINThreshold = 0 }, ErrInvalidConfig},
		{"yin tiny frame", func(c *Config) { c.FrameSize = 4 }, ErrInvalidConfig},
		{"empty lag band", func(c *Config) {
			c.Estimator = "autocorrelation"
			c.Autocorrelation.MaxFreq = c.Autocorrelation.MinFreq
		}, ErrInvalidConfig},
		{"negative max pending", func(c *Config) { c.Session.MaxPending = -1 }, ErrInvalidConfig},
		{"negative strength", func(c *Config) {
			c.Estimator = "acf"
			c.Autocorrelation.MinStrength = -1
		}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitchscope.yaml")
	if err := os.WriteFile(path, []byte("estimator: yin\nyin_threshold: 0.1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.YINThreshold != 0.1 {
		t.Errorf("yin_threshold = %v, want 0.1", cfg.YINThreshold)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
