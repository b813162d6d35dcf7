package tonal

// Default admissible band for voice and most melodic instruments.
const (
	DefaultMinHz = 60.0
	DefaultMaxHz = 1200.0
)

// BandFilter passes estimates inside an inclusive frequency band.
type BandFilter struct {
	minHz float64
	maxHz float64
}

// NewBandFilter creates a filter admitting [minHz, maxHz].
func NewBandFilter(minHz, maxHz float64) BandFilter {
	return BandFilter{minHz: minHz, maxHz: maxHz}
}

// Contains reports whether hz lies inside the band.
func (b BandFilter) Contains(hz float64) bool {
	return hz >= b.minHz && hz <= b.maxHz
}

// Apply returns e when it is valid and inside the band, NoPitch otherwise.
func (b BandFilter) Apply(e Estimate) Estimate {
	if !e.Valid() || !b.Contains(e.Hz()) {
		return NoPitch
	}
	return e
}
