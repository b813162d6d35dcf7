package tonal

// DefaultSmoothingWeight is the weight given to the previous output.
const DefaultSmoothingWeight = 0.75

// Smoother is a first-order IIR (exponential moving average) over
// consecutive valid estimates. One instance belongs to one continuous audio
// session; Reset it whenever capture stops or restarts.
type Smoother struct {
	weight float64
	prior  float64
}

// NewSmoother creates a smoother that emits prior*weight + current*(1-weight).
func NewSmoother(weight float64) *Smoother {
	return &Smoother{weight: weight}
}

// Update folds e into the running average. NoPitch resets the state and is
// passed through, so a valid estimate is never blended with silence.
func (s *Smoother) Update(e Estimate) Estimate {
	if !e.Valid() {
		s.Reset()
		return NoPitch
	}
	if s.prior <= 0 {
		s.prior = e.Hz()
		return e
	}
	s.prior = s.prior*s.weight + e.Hz()*(1-s.weight)
	return Pitch(s.prior)
}

// Reset forgets the previous output.
func (s *Smoother) Reset() {
	s.prior = 0
}

// Prior returns the last emitted value, 0 when there is none.
func (s *Smoother) Prior() float64 {
	return s.prior
}
