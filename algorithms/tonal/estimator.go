package tonal

import (
	"fmt"
	"strings"
)

// Method selects a FrequencyEstimator implementation.
type Method int

const (
	// MethodAutocorrelation is the brute-force lag search maximizing the
	// raw autocorrelation sum.
	MethodAutocorrelation Method = iota
	// MethodYIN is the cumulative-mean-normalized difference method with
	// parabolic refinement.
	MethodYIN
)

func (m Method) String() string {
	switch m {
	case MethodAutocorrelation:
		return "autocorrelation"
	case MethodYIN:
		return "yin"
	default:
		return "unknown"
	}
}

// ParseMethod maps a config string to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "autocorrelation", "acf":
		return MethodAutocorrelation, nil
	case "yin":
		return MethodYIN, nil
	default:
		return 0, fmt.Errorf("unknown pitch estimator %q", s)
	}
}

// FrequencyEstimator turns the valid samples of one frame into a raw pitch
// candidate. Implementations are total: every input, including empty,
// all-zero and too-short frames, yields NoPitch or a valid estimate, never
// a panic. They may keep scratch buffers and are not safe for concurrent
// use; each pipeline owns its estimator.
type FrequencyEstimator interface {
	Estimate(samples []int16, sampleRate int) Estimate
	Method() Method
}
