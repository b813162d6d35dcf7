package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/RyanBlaney/pitchscope/audio"
	"github.com/RyanBlaney/pitchscope/logging"
)

func quietSession(p *Pipeline, src audio.Source, opts ...SessionOption) *Session {
	opts = append([]SessionOption{WithSessionLogger(&logging.NoOpLogger{})}, opts...)
	return NewSession(p, src, opts...)
}

// endlessSine keeps delivering full frames of a 220 Hz tone until ctx ends.
func endlessSine() audio.Source {
	tone := audio.Sine(220, 10000, testRate, testFrame)
	return audio.SourceFunc(func(ctx context.Context, buf []int16) (int, int, error) {
		if err := ctx.Err(); err != nil {
			return 0, testRate, err
		}
		return copy(buf, tone), testRate, nil
	})
}

type closingSource struct {
	audio.Source
	closed atomic.Bool
}

func (c *closingSource) Close() error {
	c.closed.Store(true)
	return nil
}

func TestSessionRunsToEOF(t *testing.T) {
	p := newTestPipeline(t, nil)
	src := audio.NewSliceSource(audio.Sine(220, 10000, testRate, 5*testFrame), testRate)
	s := quietSession(p, src)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var seqs []uint64
	for res := range s.Results() {
		seqs = append(seqs, res.Seq)
		if math.Abs(res.Hz()-220)/220 > 0.01 {
			t.Errorf("seq %d: pitch = %v, want ~220 Hz", res.Seq, res.Pitch)
		}
	}
	if len(seqs) != 5 {
		t.Fatalf("got %d results, want 5", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i) {
			t.Errorf("results out of order: %v", seqs)
			break
		}
	}
	if s.Processed() != 5 || s.Dropped() != 0 {
		t.Errorf("processed=%d dropped=%d, want 5 and 0", s.Processed(), s.Dropped())
	}
	if p.smoother.Prior() != 0 {
		t.Errorf("smoother prior = %v after stop, want 0", p.smoother.Prior())
	}
}

func TestSessionDropsBeyondMaxPending(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	p := newTestPipeline(t, nil, WithMetrics(m))
	src := audio.NewSliceSource(audio.Sine(220, 10000, testRate, 5*testFrame), testRate)
	s := quietSession(p, src, WithSessionConfig(SessionConfig{ResultBuffer: 16, MaxPending: 2}))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var seqs []uint64
	for res := range s.Results() {
		seqs = append(seqs, res.Seq)
	}
	// nothing reads until Run returns: the oldest results stay queued and
	// newer ones are discarded
	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 1 {
		t.Errorf("delivered seqs = %v, want [0 1]", seqs)
	}
	if s.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", s.Dropped())
	}
	if got := sumByAttr(t, collect(t, reader), "pitchscope.results.dropped", "", ""); got != 3 {
		t.Errorf("dropped metric = %d, want 3", got)
	}
}

func TestSessionQueuesBeyondResultBuffer(t *testing.T) {
	const frames = 40
	src := audio.NewSliceSource(audio.Sine(220, 10000, testRate, frames*testFrame), testRate)
	s := quietSession(newTestPipeline(t, nil), src, WithSessionConfig(SessionConfig{ResultBuffer: 2}))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var seqs []uint64
	for res := range s.Results() {
		seqs = append(seqs, res.Seq)
	}
	if len(seqs) != frames || s.Dropped() != 0 {
		t.Fatalf("delivered %d results with %d dropped, want %d and 0", len(seqs), s.Dropped(), frames)
	}
	for i, seq := range seqs {
		if seq != uint64(i) {
			t.Fatalf("results out of order: %v", seqs)
		}
	}
}

func TestSessionStopsOnCancel(t *testing.T) {
	p := newTestPipeline(t, nil)
	s := quietSession(p, endlessSine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-s.Results():
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	for range s.Results() {
	}
}

func TestSessionSourceFailure(t *testing.T) {
	boom := errors.New("device unplugged")
	p := newTestPipeline(t, nil)
	src := audio.SourceFunc(func(context.Context, []int16) (int, int, error) {
		return 0, testRate, boom
	})
	s := quietSession(p, src)

	if err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run = %v, want %v", err, boom)
	}
	if _, open := <-s.Results(); open {
		t.Error("results channel still open after Run")
	}
}

func TestSessionSkipsEmptyReads(t *testing.T) {
	tone := audio.Sine(220, 10000, testRate, testFrame)
	calls := 0
	src := audio.SourceFunc(func(_ context.Context, buf []int16) (int, int, error) {
		calls++
		switch calls {
		case 1, 3:
			return 0, testRate, nil
		case 2:
			return copy(buf, tone), testRate, nil
		case 4:
			return -1, testRate, nil
		default:
			return 0, testRate, io.EOF
		}
	})

	s := quietSession(newTestPipeline(t, nil), src)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Processed() != 1 {
		t.Errorf("processed = %d, want 1", s.Processed())
	}
}

func TestSessionBacksOffOnEmptyReads(t *testing.T) {
	var calls atomic.Int64
	src := audio.SourceFunc(func(ctx context.Context, _ []int16) (int, int, error) {
		calls.Add(1)
		return 0, testRate, ctx.Err()
	})
	s := quietSession(newTestPipeline(t, nil), src)

	const window = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	start := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	// every empty read waits at least idleBackoff before the next one
	if limit := int64(elapsed/idleBackoff) + 1; calls.Load() > limit {
		t.Errorf("source polled %d times in %v, want at most %d", calls.Load(), elapsed, limit)
	}
	if s.Processed() != 0 {
		t.Errorf("processed = %d, want 0", s.Processed())
	}
}

func TestSessionClosesSource(t *testing.T) {
	src := &closingSource{Source: audio.NewSliceSource(nil, testRate)}
	s := quietSession(newTestPipeline(t, nil), src)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.closed.Load() {
		t.Error("source not closed")
	}
}

func TestSessionRunOnce(t *testing.T) {
	s := quietSession(newTestPipeline(t, nil), audio.NewSliceSource(nil, testRate))
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionStarted) {
		t.Errorf("second Run = %v, want ErrSessionStarted", err)
	}
}

func TestSessionFrameInterval(t *testing.T) {
	const interval = 5 * time.Millisecond
	src := audio.NewSliceSource(audio.Sine(220, 10000, testRate, 4*testFrame), testRate)
	s := quietSession(newTestPipeline(t, nil), src,
		WithSessionConfig(SessionConfig{ResultBuffer: 8, FrameInterval: interval}))

	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// four frames plus the EOF read each wait for a tick
	if elapsed := time.Since(start); elapsed < 4*interval {
		t.Errorf("elapsed = %v, want at least %v", elapsed, 4*interval)
	}
}

func TestRunWithSinkDeliversInOrder(t *testing.T) {
	src := audio.NewSliceSource(audio.Sine(440, 8000, testRate, 6*testFrame), testRate)
	s := quietSession(newTestPipeline(t, nil), src,
		WithSessionConfig(SessionConfig{ResultBuffer: 8}))

	var got []uint64
	err := s.RunWithSink(context.Background(), SinkFunc(func(r Result) error {
		got = append(got, r.Seq)
		return nil
	}))
	if err != nil {
		t.Fatalf("RunWithSink: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("sink saw %d results, want 6", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("results out of order: %v", got)
		}
	}
}

func TestRunWithSinkSlowSinkGetsEveryResult(t *testing.T) {
	const frames = 100
	for _, buffer := range []int{0, 16} {
		src := audio.NewSliceSource(audio.Sine(220, 10000, testRate, frames*testFrame), testRate)
		s := quietSession(newTestPipeline(t, nil), src,
			WithSessionConfig(SessionConfig{ResultBuffer: buffer}))

		var got []uint64
		err := s.RunWithSink(context.Background(), SinkFunc(func(r Result) error {
			time.Sleep(time.Millisecond)
			got = append(got, r.Seq)
			return nil
		}))
		if err != nil {
			t.Fatalf("buffer %d: RunWithSink: %v", buffer, err)
		}
		if len(got) != frames || s.Processed() != frames || s.Dropped() != 0 {
			t.Fatalf("buffer %d: delivered=%d processed=%d dropped=%d, want %d/%d/0",
				buffer, len(got), s.Processed(), s.Dropped(), frames, frames)
		}
		for i, seq := range got {
			if seq != uint64(i) {
				t.Fatalf("buffer %d: results out of order at %d: %v", buffer, i, got)
			}
		}
	}
}

func TestRunWithSinkStopsOnSinkError(t *testing.T) {
	stop := errors.New("display closed")
	s := quietSession(newTestPipeline(t, nil), endlessSine())

	done := make(chan error, 1)
	go func() {
		done <- s.RunWithSink(context.Background(), SinkFunc(func(Result) error {
			return stop
		}))
	}()

	select {
	case err := <-done:
		if !errors.Is(err, stop) {
			t.Errorf("RunWithSink = %v, want %v", err, stop)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithSink did not stop after sink error")
	}
}
