package temporal

// DefaultSilenceThreshold is the normalized RMS below which a frame is
// treated as silence.
const DefaultSilenceThreshold = 0.05

// VolumeGate classifies frames as silent before any pitch search runs.
type VolumeGate struct {
	threshold float64
	energy    *Energy
}

// NewVolumeGate creates a gate with a normalized (0..1) energy threshold.
func NewVolumeGate(threshold float64) *VolumeGate {
	return &VolumeGate{
		threshold: threshold,
		energy:    NewEnergy(),
	}
}

// IsSilent reports whether the valid samples fall below the threshold and
// returns the normalized level it measured. Empty input is silent.
func (g *VolumeGate) IsSilent(samples []int16) (silent bool, level float64) {
	if len(samples) == 0 {
		return true, 0
	}
	level = g.energy.Normalized(samples)
	return level < g.threshold, level
}

// Threshold returns the configured normalized threshold.
func (g *VolumeGate) Threshold() float64 {
	return g.threshold
}
