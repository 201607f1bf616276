package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ebay-completed-tap/config"
	"ebay-completed-tap/emitter"
	"ebay-completed-tap/models"
	"ebay-completed-tap/scraper"
)

type outputEmitter interface {
	scraper.Sink
	Close() error
	Validate() error
}

func main() {
	outputDefault := ""
	if value, ok := config.EnvString("TAP_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := ""
	if value, ok := config.EnvString("TAP_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	configPath := flag.String("config", "", "Path to the tap config document (required)")
	outputFile := flag.String("output", outputDefault, "File to mirror the message stream into")
	outputFormat := flag.String("format", "", "Output format: stdout, file, or dual (default stdout, or dual when -output is set)")
	userAgent := flag.String("user-agent", "", "Override the request User-Agent")
	timeoutSec := flag.Int("timeout", 10, "Request timeout (seconds)")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if *configPath == "" {
		slog.Error("missing required -config argument")
		os.Exit(1)
	}

	raw, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}

	cfg := config.Normalize(raw)
	applyFlags(cfg, *outputFile, *outputFormat, *userAgent, *timeoutSec, *metricsAddr, *verbose)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting tap",
		slog.Int("page_size", cfg.PageSize),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Int("static_terms", len(cfg.SearchTerms)),
		slog.Bool("feed", cfg.Feed != nil),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	sink, err := createEmitter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating emitter", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current page")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	result, err := s.Run(ctx, sink)
	if err != nil {
		slog.Error("tap run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := sink.Close(); err != nil {
		slog.Error("emitter shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := sink.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, time.Since(startTime))
}

func applyFlags(cfg *config.Config, outputFile, outputFormat, userAgent string, timeoutSec int, metricsAddr string, verbose bool) {
	cfg.OutputFile = outputFile
	if outputFormat != "" {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	} else if outputFile != "" {
		cfg.OutputFormat = "dual"
	}
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}
	cfg.Timeout = time.Duration(timeoutSec) * time.Second
	cfg.MetricsAddr = metricsAddr
	cfg.Verbose = verbose
}

func createEmitter(format, filename string) (outputEmitter, error) {
	switch format {
	case "stdout":
		return emitter.NewStreamEmitter(os.Stdout), nil
	case "file":
		return emitter.NewFileEmitter(filename)
	case "dual":
		return emitter.NewDualEmitter(os.Stdout, filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.TapResult, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(os.Stderr, "\n"+separator)
	fmt.Fprintln(os.Stderr, "Tap run complete")
	fmt.Fprintf(os.Stderr, "  Terms:         %d\n", result.TermCount)
	fmt.Fprintf(os.Stderr, "  Abandoned:     %d\n", len(result.AbandonedTerms))
	if len(result.AbandonedTerms) > 0 {
		fmt.Fprintf(os.Stderr, "  Failed terms:  %v\n", result.AbandonedTerms)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(os.Stderr, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(os.Stderr, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(os.Stderr, "  Records:       %d\n", result.EmittedCount)
	fmt.Fprintf(os.Stderr, "  Duration:      %v\n", duration)
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(result.EmittedCount) / duration.Seconds()
	}
	fmt.Fprintf(os.Stderr, "  Records/sec:   %.2f\n", recordsPerSec)
	fmt.Fprintln(os.Stderr, separator)
}

// Logs go to stderr: stdout belongs to the record stream.
func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
