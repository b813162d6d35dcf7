package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/pitchscope/audio"
	"github.com/RyanBlaney/pitchscope/logging"
)

// ErrSessionStarted is returned when Run is called on a session that has
// already run.
var ErrSessionStarted = errors.New("pipeline: session already started")

// idleBackoff is how long the loop waits after a read that delivered
// nothing when no frame interval paces it.
const idleBackoff = time.Millisecond

// Sink consumes results in order. An error stops the session.
type Sink interface {
	Emit(Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result) error

func (f SinkFunc) Emit(r Result) error {
	return f(r)
}

// Session pulls frames from a source on a single worker goroutine, runs them
// through a Pipeline and hands the results to a forwarding goroutine that
// feeds the results channel in order. Capture never waits on the consumer:
// results the channel cannot take yet are queued, and only dropped once
// SessionConfig.MaxPending results are outstanding.
type Session struct {
	pipeline *Pipeline
	source   audio.Source
	cfg      SessionConfig

	frameSize int
	results   chan Result

	abandoned   chan struct{}
	abandonOnce sync.Once

	started   atomic.Bool
	processed atomic.Uint64
	dropped   atomic.Uint64

	metrics *Metrics
	logger  logging.Logger
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithSessionConfig overrides the pipeline's session settings.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithSessionMetrics records session level metrics into m.
func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithSessionLogger replaces the session logger.
func WithSessionLogger(l logging.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession binds p to src. Frames are read with the pipeline's configured
// frame size.
func NewSession(p *Pipeline, src audio.Source, opts ...SessionOption) *Session {
	s := &Session{
		pipeline:  p,
		source:    src,
		cfg:       p.cfg.Session,
		frameSize: p.cfg.FrameSize,
		metrics:   p.metrics,
		logger:    logging.WithFields(logging.Fields{"component": "pitch_session"}),
		abandoned: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.results = make(chan Result, max(s.cfg.ResultBuffer, 0))
	return s
}

// Results returns the channel results are delivered on. It is closed once
// Run has returned and every queued result has been received, so consumers
// must drain it.
func (s *Session) Results() <-chan Result {
	return s.results
}

// Processed reports how many frames went through the pipeline.
func (s *Session) Processed() uint64 {
	return s.processed.Load()
}

// Dropped reports how many results were discarded because MaxPending
// results were already waiting for the consumer.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Run executes the capture loop until ctx is cancelled, the source reports
// io.EOF, or the source fails. Cancellation and end of stream are normal
// stops and return nil. The smoother is reset on entry and on exit, and the
// source is closed on exit when it implements io.Closer.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}
	out := make(chan Result)
	go s.forward(context.WithoutCancel(ctx), out)
	defer close(out)
	defer s.closeSource()

	s.pipeline.Reset()
	defer s.pipeline.Reset()

	s.metrics.sessionStarted(ctx)
	defer s.metrics.sessionStopped(context.WithoutCancel(ctx))

	s.logger.Info("Session started", logging.Fields{
		"frame_size":     s.frameSize,
		"result_buffer":  cap(s.results),
		"max_pending":    s.cfg.MaxPending,
		"frame_interval": s.cfg.FrameInterval.String(),
	})

	err := s.loop(ctx, out)

	fields := logging.Fields{
		"processed": s.processed.Load(),
		"dropped":   s.dropped.Load(),
	}
	if err != nil {
		s.logger.Error(err, "Session stopped on source failure", fields)
		return err
	}
	s.logger.Info("Session stopped", fields)
	return nil
}

func (s *Session) loop(ctx context.Context, out chan<- Result) error {
	buf := make([]int16, s.frameSize)

	var tick <-chan time.Time
	if s.cfg.FrameInterval > 0 {
		ticker := time.NewTicker(s.cfg.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}

		n, rate, err := s.source.Read(ctx, buf)
		if n > 0 {
			s.process(ctx, out, audio.Frame{Samples: buf, Length: n, SampleRate: rate})
		}
		switch {
		case err == nil:
			if n <= 0 && tick == nil {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(idleBackoff):
				}
			}
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			return nil
		default:
			return fmt.Errorf("pipeline: read frame: %w", err)
		}
	}
}

func (s *Session) process(ctx context.Context, out chan<- Result, frame audio.Frame) {
	res := s.pipeline.Process(ctx, frame)
	s.processed.Add(1)

	select {
	case out <- res:
	case <-s.abandoned:
	}
}

// forward moves results from the worker to the results channel in order.
// It always accepts from in, queueing what the consumer has not taken yet,
// and closes the results channel once in is closed and the queue is empty.
func (s *Session) forward(ctx context.Context, in <-chan Result) {
	defer close(s.results)

	var queue []Result
	for in != nil || len(queue) > 0 {
		var send chan<- Result
		var next Result
		if len(queue) > 0 {
			send = s.results
			next = queue[0]
		}

		select {
		case res, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if s.cfg.MaxPending > 0 && len(queue)+len(s.results) >= s.cfg.MaxPending {
				s.dropped.Add(1)
				s.metrics.recordDrop(ctx)
				s.logger.Debug("Result dropped, consumer behind", logging.Fields{
					"seq":     res.Seq,
					"pending": len(queue) + len(s.results),
				})
				continue
			}
			queue = append(queue, res)
		case send <- next:
			queue[0] = Result{}
			queue = queue[1:]
		case <-s.abandoned:
			return
		}
	}
}

// abandon releases the forwarder and the worker once nobody reads results.
func (s *Session) abandon() {
	s.abandonOnce.Do(func() { close(s.abandoned) })
}

func (s *Session) closeSource() {
	c, ok := s.source.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		s.logger.Warn("Failed to close source", logging.Fields{"error": err.Error()})
	}
}

// RunWithSink runs the capture loop and delivers every result to sink, in
// order, on a second goroutine. A slow sink delays delivery but never loses
// results unless MaxPending is set. If sink fails the capture loop is
// cancelled and the sink error is returned.
func (s *Session) RunWithSink(ctx context.Context, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		for res := range s.results {
			if err := sink.Emit(res); err != nil {
				s.abandon()
				return fmt.Errorf("pipeline: sink: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}
