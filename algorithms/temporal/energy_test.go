package temporal

import (
	"math"
	"testing"

	"github.com/RyanBlaney/pitchscope/audio"
)

func TestEnergyRMS(t *testing.T) {
	e := NewEnergy()

	if got := e.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := e.RMS([]int16{3, -3, 3, -3}); got != 3 {
		t.Errorf("RMS(square) = %v, want 3", got)
	}

	sine := audio.Sine(441, 10000, 44100, 4410)
	want := 10000 / math.Sqrt2
	if got := e.RMS(sine); math.Abs(got-want) > 5 {
		t.Errorf("RMS(sine) = %v, want ~%v", got, want)
	}
}

func TestEnergyNormalizedClamped(t *testing.T) {
	e := NewEnergy()
	full := []int16{-32768, -32768}
	if got := e.Normalized(full); got != 1 {
		t.Errorf("Normalized(full scale) = %v, want 1", got)
	}
}

func TestVolumeGate(t *testing.T) {
	gate := NewVolumeGate(DefaultSilenceThreshold)

	tests := []struct {
		name       string
		samples    []int16
		wantSilent bool
	}{
		{"empty", nil, true},
		{"all zero", make([]int16, 2048), true},
		{"quiet hiss", audio.Sine(300, 500, 44100, 2048), true},
		{"tone", audio.Sine(220, 10000, 44100, 2048), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			silent, level := gate.IsSilent(tt.samples)
			if silent != tt.wantSilent {
				t.Errorf("IsSilent = %v (level %v), want %v", silent, level, tt.wantSilent)
			}
			if level < 0 || level > 1 {
				t.Errorf("level %v outside [0,1]", level)
			}
		})
	}
}

func TestRawToNormalized(t *testing.T) {
	got := RawToNormalized(1200)
	if math.Abs(got-1200.0/32768.0) > 1e-12 {
		t.Errorf("RawToNormalized(1200) = %v", got)
	}
}
