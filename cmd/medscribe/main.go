// Command medscribe is the consultation speech-capture service: it reads a
// PCM stream, segments it into overlap-preserving chunks, transcribes them,
// and reconciles the transcript while exposing health and metrics over HTTP.
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nxtwrld/medscribe/internal/app"
	"github.com/nxtwrld/medscribe/internal/config"
	"github.com/nxtwrld/medscribe/internal/health"
	"github.com/nxtwrld/medscribe/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "-", "raw PCM input: a file path, or - for stdin (s16le mono)")
	sampleRate := flag.Int("rate", 16000, "sample rate of the PCM input in Hz")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "medscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "medscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := &slog.LevelVar{}
	logLevel.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("medscribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"stt", cfg.STT.Name,
		"preset", cfg.Capture.Preset,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry providers ───────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "medscribe",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio source ──────────────────────────────────────────────────────────
	src, err := newPCMSource(*inputPath, *sampleRate)
	if err != nil {
		slog.Error("failed to open audio input", "err", err)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipeline, err := app.New(cfg, src, app.WithLogLevel(logLevel))
	if err != nil {
		slog.Error("failed to initialise pipeline", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		pipeline.ApplyConfig(config.Diff(old, new))
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Observability HTTP endpoint ───────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := newHTTPServer(cfg.Server.ListenAddr, pipeline)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("observability endpoint listening", "addr", cfg.Server.ListenAddr)
	}

	printStartupSummary(cfg, *inputPath)
	slog.Info("capture ready — press Ctrl+C to stop")

	runErr := make(chan error, 1)
	go func() { runErr <- pipeline.Run(ctx) }()

	// ── Graceful shutdown: flush the last batch through transcription ─────────
	var pipelineErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
		if err := pipeline.Stop(); err != nil {
			slog.Error("stop error", "err", err)
			return 1
		}
		pipelineErr = <-runErr
	case pipelineErr = <-runErr:
		_ = pipeline.Stop()
	}
	if pipelineErr != nil && !errors.Is(pipelineErr, context.Canceled) {
		slog.Error("pipeline error", "err", pipelineErr)
		return 1
	}

	final := pipeline.Transcript()
	if final.Text != "" {
		fmt.Println(final.Text)
	}
	slog.Info("transcript finalised",
		"segments", len(final.Segments),
		"merged", final.Stats.MergedSegments,
		"duplicates_removed", final.Stats.DuplicatesRemoved,
		"confidence", final.Confidence,
	)
	slog.Info("goodbye")
	return 0
}

// newHTTPServer builds the metrics/health mux wrapped in the request metrics
// middleware.
func newHTTPServer(addr string, pipeline *app.Pipeline) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(pipeline.Checkers()...).Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, input string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        medscribe — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT provider", cfg.STT.Name)
	printRow("Model", cfg.STT.Model)
	printRow("Language", cfg.STT.Language)
	printRow("Preset", string(cfg.Capture.Preset))
	printRow("Batch window", fmt.Sprintf("%dms", cfg.Capture.BatchDurationMs))
	printRow("Overlap tail", fmt.Sprintf("%dms", cfg.Capture.OverlapDurationMs))
	printRow("Input", input)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if value == "" {
		value = "(default)"
	}
	if len([]rune(value)) > 16 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s  : %-17s ║\n", name, value)
}
