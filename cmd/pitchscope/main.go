// Command pitchscope tracks the fundamental frequency of an audio input frame
// by frame and prints one line per processed frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/RyanBlaney/pitchscope/audio"
	"github.com/RyanBlaney/pitchscope/logging"
	"github.com/RyanBlaney/pitchscope/pipeline"
	"github.com/RyanBlaney/pitchscope/transcode"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML configuration file (defaults when empty)")
	input := flag.String("input", "", "audio file, URL or device; .wav files are read directly, anything else through ffmpeg")
	inputFormat := flag.String("format", "", "ffmpeg input format, e.g. pulse or alsa for live capture")
	tone := flag.Float64("tone", 0, "analyse a generated sine of this frequency instead of -input")
	estimator := flag.String("estimator", "", "override the estimator: yin or autocorrelation")
	logLevel := flag.String("log-level", "", "override the log level")
	realtime := flag.Bool("realtime", false, "pace file input at its native rate")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	quiet := flag.Bool("quiet", false, "print only the summary")
	flag.Parse()

	cfg := pipeline.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = pipeline.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "pitchscope: %v\n", err)
			return 1
		}
	}
	if *estimator != "" {
		cfg.Estimator = *estimator
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "pitchscope: %v\n", err)
		return 1
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	base := logging.NewDefaultLogger()
	base.SetLevel(level)
	logging.SetGlobalLogger(base)
	logger := logging.WithFields(logging.Fields{"component": "cli"})

	if *input == "" && *tone <= 0 {
		fmt.Fprintln(os.Stderr, "pitchscope: one of -input or -tone is required")
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		shutdown, err := serveMetrics(*metricsAddr, logger)
		if err != nil {
			logger.Error(err, "Failed to start metrics exporter")
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("Metrics shutdown failed", logging.Fields{"error": err.Error()})
			}
		}()
	}

	metrics, err := pipeline.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Error(err, "Failed to create metrics")
		return 1
	}
	p, err := pipeline.New(cfg, pipeline.WithMetrics(metrics))
	if err != nil {
		logger.Error(err, "Failed to build pipeline")
		return 1
	}

	src, err := openSource(ctx, cfg, *input, *inputFormat, *tone, *realtime)
	if err != nil {
		logger.Error(err, "Failed to open input", logging.Fields{"input": *input})
		return 1
	}

	printer := newPrinter(os.Stdout, *quiet)
	session := pipeline.NewSession(p, src)
	if err := session.RunWithSink(ctx, printer); err != nil {
		logger.Error(err, "Session failed")
		return 1
	}

	printer.Summary(session.Dropped())
	return 0
}

// openSource picks the cheapest reader for the input: a generated tone, the
// native WAV reader, or ffmpeg for everything else.
func openSource(ctx context.Context, cfg pipeline.Config, input, format string, tone float64, realtime bool) (audio.Source, error) {
	if tone > 0 {
		const seconds = 2
		return audio.NewSliceSource(audio.Sine(tone, 10000, cfg.SampleRate, seconds*cfg.SampleRate), cfg.SampleRate), nil
	}

	if format == "" && !realtime && strings.EqualFold(filepath.Ext(input), ".wav") {
		src, err := audio.OpenWAV(input)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, audio.ErrUnsupportedFormat) {
			return nil, err
		}
		// fall through: ffmpeg handles the encodings go-dsp cannot
	}

	dc := transcode.DefaultDecoderConfig()
	dc.SampleRate = cfg.SampleRate
	dc.InputFormat = format
	dc.Realtime = realtime
	dc.Live = strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
	src, err := transcode.StartFFmpeg(ctx, dc, input)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// serveMetrics installs a Prometheus-backed global meter provider and serves
// it on addr.
func serveMetrics(addr string, logger logging.Logger) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("pitchscope"),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", logging.Fields{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Metrics server failed")
		}
	}()

	return func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
