package main

import (
	"fmt"
	"io"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/pitchscope/pipeline"
)

// printer renders results as text lines and keeps the voiced pitches for
// the closing summary.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	quiet  bool
	frames int
	silent int
	voiced []float64
}

func newPrinter(w io.Writer, quiet bool) *printer {
	return &printer{w: w, quiet: quiet}
}

func (p *printer) Emit(r pipeline.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frames++
	if r.Silent {
		p.silent++
	}
	if r.Pitch.Valid() {
		p.voiced = append(p.voiced, r.Hz())
	}
	if p.quiet {
		return nil
	}
	_, err := fmt.Fprintf(p.w, "%6d  level=%.3f  pitch=%8.2f Hz  raw=%8.2f Hz  %s\n",
		r.Seq, r.Level, r.Hz(), r.Raw.Hz(), r.Outcome)
	return err
}

// Summary prints frame counts and the mean and spread of voiced pitch.
func (p *printer) Summary(dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "frames=%d voiced=%d silent=%d dropped=%d\n",
		p.frames, len(p.voiced), p.silent, dropped)
	if len(p.voiced) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(p.voiced, nil)
	fmt.Fprintf(p.w, "pitch mean=%.2f Hz stddev=%.2f Hz\n", mean, std)
}
