// Package audio holds the frame model shared by the pitch pipeline and the
// pull-based sources that feed it.
package audio

// MaxSampleMagnitude is the largest magnitude a signed 16-bit sample can
// take. Energies and waveforms are normalized by it.
const MaxSampleMagnitude = 32768.0

// Frame is one batch of consecutive mono samples as delivered by a Source.
// Length is the number of valid samples and may be smaller than
// len(Samples) after a short read, or non-positive when the source had
// nothing to deliver.
type Frame struct {
	Samples    []int16
	Length     int
	SampleRate int
}

// Valid returns the valid prefix of the frame's samples. A non-positive
// Length yields an empty slice; a Length beyond capacity is clamped.
func (f Frame) Valid() []int16 {
	n := f.Length
	if n <= 0 {
		return f.Samples[:0]
	}
	if n > len(f.Samples) {
		n = len(f.Samples)
	}
	return f.Samples[:n]
}

// Capacity returns the frame's buffer size regardless of how many samples
// are valid.
func (f Frame) Capacity() int {
	return len(f.Samples)
}
