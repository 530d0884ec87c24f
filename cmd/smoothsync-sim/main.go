// Command smoothsync-sim drives a scripted object on an owner and follows it
// on a receiver over a lossy link, logging how closely the receiver tracks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/engine"
	"github.com/OCAP2/smoothsync/internal/logging"
	intOtel "github.com/OCAP2/smoothsync/internal/otel"
	"github.com/OCAP2/smoothsync/internal/storage"
	"github.com/OCAP2/smoothsync/internal/transport"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const BinaryName = "smoothsync-sim"

var (
	SessionStartTime = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	// StorageLogger is the zerolog logger handed to the storage backends.
	StorageLogger zerolog.Logger

	OTelProvider *intOtel.Provider
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	duration := flag.Duration("duration", 30*time.Second, "simulated time to run")
	rate := flag.Float64("rate", 60, "ticks per second")
	object := flag.String("object", "body", "object kind: static, mover, character or body")
	realtime := flag.Bool("realtime", true, "pace ticks with the wall clock")
	flag.Parse()

	if err := run(*configDir, *duration, *rate, *object, *realtime); err != nil {
		if Logger != nil {
			Logger.Error("Simulation failed", "error", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir string, duration time.Duration, rate float64, object string, realtime bool) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	}

	closeLogs, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLogs()

	settings, err := config.GetSettings()
	if err != nil {
		return err
	}

	backend, err := storage.NewBackend(config.GetStorageConfig(), StorageLogger)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		if exp, ok := backend.(storage.Exportable); ok && exp.ExportedFilePath() != "" {
			Logger.Info("Trace exported", "path", exp.ExportedFilePath())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	transportCfg := config.GetTransportConfig()
	ownerLink, receiverLink, err := openLinks(ctx, transportCfg, realtime)
	if err != nil {
		return err
	}
	defer ownerLink.Close()
	defer receiverLink.Close()

	if transportCfg.RelayURL != "" {
		realtime = true
	}

	Logger.Info("Starting simulation",
		"object", object,
		"duration", duration,
		"rate", rate,
		"sendRate", settings.SendRate,
		"relay", transportCfg.RelayURL,
		"realtime", realtime,
	)

	report, err := simulate(ctx, simConfig{
		Settings:   settings,
		Object:     object,
		Duration:   duration.Seconds(),
		Rate:       rate,
		InboxSize:  transportCfg.InboxSize,
		Realtime:   realtime,
		Scenario:   DefaultScenario(),
		Storage:    backend,
		Owner:      engineLogger("owner"),
		Receiver:   engineLogger("receiver"),
		Errors:     logging.Sampled(StorageLogger),
		StatusPath: filepath.Join(config.GetLoggingConfig().Dir, BinaryName+".status.json"),
		LogManager: SlogManager,
		Progress: func(r Report) {
			Logger.Info("Progress",
				"simTime", fmt.Sprintf("%.1f", r.SimTime),
				"positionError", fmt.Sprintf("%.3f", r.PositionError),
				"mode", r.Receiver.Mode.String(),
				"sent", r.Owner.Sent,
				"received", r.Receiver.Received,
				"stale", r.Receiver.Stale,
			)
		},
	}, ownerLink, receiverLink)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	Logger.Info("Simulation finished",
		"simTime", report.SimTime,
		"positionError", report.PositionError,
		"maxPositionError", report.MaxPositionError,
		"teleports", report.Teleports,
		"sent", report.Owner.Sent,
		"bytesSent", report.Owner.BytesSent,
		"received", report.Receiver.Received,
		"stale", report.Receiver.Stale,
		"malformed", report.Receiver.Malformed,
		"extrapolationFailures", report.Receiver.ExtrapolationFailures,
		"inboxDropped", report.Receiver.InboxDropped,
	)
	return nil
}

// engineLogger returns the logger an engine in role logs through. With log
// sampling on, per-message warnings go through the throttled zerolog logger.
func engineLogger(role string) engine.Logger {
	if config.GetLoggingConfig().SampleEngines {
		return logging.NewDispatcherLogger(logging.Sampled(StorageLogger.With().Str("role", role).Logger()))
	}
	return logging.NewSlogLogger(Logger.With("role", role))
}

// openLinks returns the owner and receiver ends: two relay clients when a
// relay is configured, otherwise an in-process lossy link.
func openLinks(ctx context.Context, cfg config.TransportConfig, realtime bool) (transport.Transport, transport.Transport, error) {
	if cfg.RelayURL != "" {
		owner, err := transport.Dial(ctx, cfg.RelayURL, Logger.With("role", "owner"))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting owner to relay: %w", err)
		}
		receiver, err := transport.Dial(ctx, cfg.RelayURL, Logger.With("role", "receiver"))
		if err != nil {
			owner.Close()
			return nil, nil, fmt.Errorf("connecting receiver to relay: %w", err)
		}
		return owner, receiver, nil
	}

	opts := transport.LinkOptions{
		Loss:    cfg.Loss,
		Reorder: cfg.Reorder,
		Latency: cfg.Latency,
		Jitter:  cfg.Jitter,
		Seed:    uint64(SessionStartTime.UnixNano()),
		Buffer:  cfg.InboxSize,
	}
	if !realtime && (opts.Latency > 0 || opts.Jitter > 0) {
		Logger.Warn("Latency and jitter need realtime pacing, ignoring them")
		opts.Latency, opts.Jitter = 0, 0
	}
	owner, receiver := transport.NewLoopbackPair(opts)
	return owner, receiver, nil
}

// setupLogging opens the session log file, Graylog and OTel sinks and
// rebuilds the loggers on top of them.
func setupLogging() (func(), error) {
	logCfg := config.GetLoggingConfig()

	if err := os.MkdirAll(logCfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logCfg.Dir, BinaryName, SessionStartTime)
	if _, err := os.Stat(logPath); err == nil {
		os.Rename(logPath, logPath+".old")
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	closers := []io.Closer{logFile}

	var graylog io.Writer
	if logCfg.GraylogEnabled {
		w, err := logging.DialGraylog(logCfg.GraylogAddress, BinaryName)
		if err != nil {
			Logger.Warn("Failed to connect to Graylog", "error", err, "address", logCfg.GraylogAddress)
		} else {
			graylog = w
			closers = append(closers, w)
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		metricsPath := filepath.Join(logCfg.Dir, fmt.Sprintf("%s.%s.metrics.json", BinaryName, SessionStartTime.Format("20060102_150405")))
		metricsFile, err := os.Create(metricsPath)
		if err != nil {
			Logger.Warn("Failed to create metrics file", "error", err, "path", metricsPath)
		} else {
			closers = append(closers, metricsFile)
		}

		cfg := intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      logFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		}
		if metricsFile != nil {
			cfg.MetricWriter = metricsFile
		}
		OTelProvider, err = intOtel.New(cfg)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", logPath, "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	session := SessionStartTime.Format("20060102_150405")
	opts := logging.Options{
		File:        logFile,
		Level:       logCfg.Level,
		LogProvider: otelLogProvider,
		Graylog:     graylog,
		Context: func() []slog.Attr {
			return []slog.Attr{slog.String("session", session)}
		},
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	StorageLogger = logging.NewZerolog(opts)
	Logger.Info("Logging to file", "path", logPath)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush logs", "error", err)
		}
		if OTelProvider != nil {
			if err := OTelProvider.Shutdown(ctx); err != nil {
				Logger.Warn("Failed to shut down OTel provider", "error", err)
			}
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}, nil
}
