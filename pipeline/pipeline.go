// Package pipeline wires the volume gate, a frequency estimator, the band
// filter and the smoother into a per-frame pitch tracker, and runs it
// against an audio.Source in a single-worker session.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/pitchscope/algorithms/common"
	"github.com/RyanBlaney/pitchscope/algorithms/filters"
	"github.com/RyanBlaney/pitchscope/algorithms/temporal"
	"github.com/RyanBlaney/pitchscope/algorithms/tonal"
	"github.com/RyanBlaney/pitchscope/audio"
	"github.com/RyanBlaney/pitchscope/logging"
)

// Outcome classifies what happened to a frame.
type Outcome string

const (
	// OutcomeSilent means the volume gate stopped the frame.
	OutcomeSilent Outcome = "silent"
	// OutcomeNoCandidate means the estimator found no period.
	OutcomeNoCandidate Outcome = "no_candidate"
	// OutcomeRejected means the estimate fell outside the admissible band.
	OutcomeRejected Outcome = "rejected"
	// OutcomePitch means a smoothed pitch was emitted.
	OutcomePitch Outcome = "pitch"
)

// Result is the per-frame output of the pipeline.
type Result struct {
	// Seq numbers processed frames from 0 within one pipeline.
	Seq uint64

	// Pitch is the smoothed estimate handed to consumers.
	Pitch tonal.Estimate

	// Raw is the estimator output before band filtering and smoothing.
	Raw tonal.Estimate

	// Level is the normalized RMS of the frame, reported even when silent.
	Level float64

	Silent  bool
	Outcome Outcome

	// Waveform is a normalized copy of the leading samples for display.
	Waveform []float64

	SampleRate int
	Elapsed    time.Duration
}

// Hz returns the smoothed pitch, or tonal.NoPitchHz.
func (r Result) Hz() float64 {
	return r.Pitch.Hz()
}

// Pipeline processes frames one at a time. It owns the estimator scratch
// buffers and the smoother state, so a Pipeline must not be shared between
// goroutines; run one per session.
type Pipeline struct {
	cfg Config

	dc      *filters.DCBlocker
	scratch []int16

	gate      *temporal.VolumeGate
	estimator tonal.FrequencyEstimator
	band      tonal.BandFilter
	smoother  *tonal.Smoother

	metrics *Metrics
	logger  logging.Logger

	seq uint64
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithMetrics records per-frame metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger replaces the component logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEstimator overrides the estimator selected by the config.
func WithEstimator(e tonal.FrequencyEstimator) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.estimator = e
		}
	}
}

// NewEstimator builds the estimator named by cfg.Estimator.
func NewEstimator(cfg Config) (tonal.FrequencyEstimator, error) {
	method, err := tonal.ParseMethod(cfg.Estimator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownEstimator, err)
	}
	switch method {
	case tonal.MethodAutocorrelation:
		return tonal.NewAutocorrelation(cfg.Autocorrelation), nil
	case tonal.MethodYIN:
		return tonal.NewYIN(cfg.FrameSize, cfg.YINThreshold), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownEstimator, method)
	}
}

// New validates cfg and assembles a pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	estimator, err := NewEstimator(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		gate:      temporal.NewVolumeGate(cfg.SilenceThreshold),
		estimator: estimator,
		band:      tonal.NewBandFilter(cfg.MinHz, cfg.MaxHz),
		smoother:  tonal.NewSmoother(cfg.SmoothingWeight),
		logger:    logging.WithFields(logging.Fields{"component": "pitch_pipeline"}),
	}
	if cfg.RemoveDC {
		p.dc = filters.NewDCBlocker(filters.DefaultDCPole)
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Debug("Pipeline created", logging.Fields{
		"estimator":         p.estimator.Method().String(),
		"frame_size":        cfg.FrameSize,
		"sample_rate":       cfg.SampleRate,
		"silence_threshold": cfg.SilenceThreshold,
		"min_hz":            cfg.MinHz,
		"max_hz":            cfg.MaxHz,
		"remove_dc":         cfg.RemoveDC,
	})
	return p, nil
}

// Process runs one frame through gate, estimator, band filter and smoother.
// It never fails: short, empty and silent frames yield NoPitch results.
// The frame's samples are not retained.
func (p *Pipeline) Process(ctx context.Context, frame audio.Frame) Result {
	start := time.Now()

	samples := frame.Valid()
	rate := frame.SampleRate
	if rate <= 0 {
		rate = p.cfg.SampleRate
	}

	if p.dc != nil {
		p.scratch = p.dc.Apply(p.scratch, samples)
		samples = p.scratch
	}

	res := Result{
		Seq:        p.seq,
		SampleRate: rate,
	}
	p.seq++

	silent, level := p.gate.IsSilent(samples)
	res.Level = level
	if p.cfg.WaveformSamples > 0 {
		res.Waveform = common.NormalizedWaveform(samples, p.cfg.WaveformSamples)
	}

	if silent {
		p.smoother.Reset()
		res.Silent = true
		res.Outcome = OutcomeSilent
	} else {
		res.Raw = p.estimator.Estimate(samples, rate)
		filtered := p.band.Apply(res.Raw)
		switch {
		case !res.Raw.Valid():
			res.Outcome = OutcomeNoCandidate
		case !filtered.Valid():
			res.Outcome = OutcomeRejected
		default:
			res.Outcome = OutcomePitch
		}
		res.Pitch = p.smoother.Update(filtered)
	}

	res.Elapsed = time.Since(start)
	p.metrics.recordFrame(ctx, res)
	return res
}

// Reset clears the smoother so the next valid estimate is emitted as is,
// along with any filter state carried between frames.
func (p *Pipeline) Reset() {
	p.smoother.Reset()
	if p.dc != nil {
		p.dc.Reset()
	}
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Estimator returns the active frequency estimator.
func (p *Pipeline) Estimator() tonal.FrequencyEstimator {
	return p.estimator
}
