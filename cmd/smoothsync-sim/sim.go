package main

import (
	"context"
	"fmt"
	"time"

	"github.com/OCAP2/smoothsync/internal/clock"
	"github.com/OCAP2/smoothsync/internal/engine"
	"github.com/OCAP2/smoothsync/internal/logging"
	"github.com/OCAP2/smoothsync/internal/monitor"
	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/internal/storage"
	"github.com/OCAP2/smoothsync/internal/transport"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/rs/zerolog"
)

// stepper is a host that integrates its own velocities.
type stepper interface {
	Step(dt float64)
}

// newHost creates a transform of the given kind.
func newHost(kind string, authoritative bool) (provider.TransformProvider, error) {
	switch kind {
	case "static":
		return provider.NewStatic(authoritative), nil
	case "mover":
		return provider.NewMover(authoritative), nil
	case "character":
		return provider.NewCharacter(authoritative), nil
	case "body":
		return provider.NewBody(authoritative, 0.05, 0.05), nil
	default:
		return nil, fmt.Errorf("unknown object kind: %s", kind)
	}
}

// simConfig describes one simulation run. Errors receives per-tick failures
// and should be a sampled logger. When StatusPath is set, a JSON status
// snapshot is written there every StatusInterval.
type simConfig struct {
	Settings       core.Settings
	Object         string
	Duration       float64
	Rate           float64
	InboxSize      int
	Realtime       bool
	Scenario       *Scenario
	Storage        storage.Backend
	Owner          engine.Logger
	Receiver       engine.Logger
	Errors         zerolog.Logger
	Progress       func(Report)
	StatusPath     string
	StatusInterval time.Duration
	LogManager     *logging.SlogManager
}

// Report summarizes a run.
type Report struct {
	SimTime          float64
	PositionError    float64
	MaxPositionError float64
	Teleports        int
	Owner            engine.Stats
	Receiver         engine.Stats
}

// simulate runs an owner and a receiver over the two ends of a link.
func simulate(ctx context.Context, cfg simConfig, ownerLink, receiverLink transport.Transport) (Report, error) {
	var report Report

	ownerHost, err := newHost(cfg.Object, true)
	if err != nil {
		return report, err
	}
	receiverHost, err := newHost(cfg.Object, false)
	if err != nil {
		return report, err
	}

	clk := clock.NewManual(0)
	common := []engine.Option{
		engine.WithClock(clk),
		engine.WithStorage(cfg.Storage),
		engine.WithInboxSize(cfg.InboxSize),
	}

	owner, err := engine.New(cfg.Settings, ownerHost, ownerLink,
		append(common, engine.WithObjectID(cfg.Object), engine.WithLogger(cfg.Owner))...)
	if err != nil {
		return report, fmt.Errorf("creating owner engine: %w", err)
	}
	defer owner.Close()

	receiver, err := engine.New(cfg.Settings, receiverHost, receiverLink,
		append(common, engine.WithObjectID(cfg.Object+"-remote"), engine.WithLogger(cfg.Receiver))...)
	if err != nil {
		return report, fmt.Errorf("creating receiver engine: %w", err)
	}
	defer receiver.Close()

	if cfg.StatusPath != "" {
		logManager := cfg.LogManager
		if logManager == nil {
			logManager = logging.NewSlogManager()
		}
		mon := monitor.NewService(monitor.Dependencies{
			Sources:    []monitor.Source{owner, receiver},
			LogManager: logManager,
			StatusPath: cfg.StatusPath,
			Interval:   cfg.StatusInterval,
		})
		if err := mon.Start(); err != nil {
			return report, fmt.Errorf("starting monitor: %w", err)
		}
		defer mon.Stop()
	}

	dt := 1 / cfg.Rate
	var ticker *time.Ticker
	if cfg.Realtime {
		ticker = time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer ticker.Stop()
	}

	nextReport := 1.0
	for clk.Now() < cfg.Duration {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return report, err
		}

		now := clk.Advance(dt)

		if cfg.Scenario.Advance(ownerHost, dt) {
			if err := owner.Teleport(); err != nil {
				cfg.Errors.Warn().Err(err).Msg("teleport failed")
			} else {
				report.Teleports++
			}
		}
		if s, ok := ownerHost.(stepper); ok && ownerHost.Capabilities().Simulated {
			s.Step(dt)
		}

		if err := owner.Tick(dt); err != nil {
			cfg.Errors.Warn().Err(err).Str("role", "owner").Msg("tick failed")
		}
		if err := receiver.Tick(dt); err != nil {
			cfg.Errors.Warn().Err(err).Str("role", "receiver").Msg("tick failed")
		}
		if s, ok := receiverHost.(stepper); ok && receiverHost.Capabilities().Simulated {
			s.Step(dt)
		}

		report.SimTime = now
		report.PositionError = core.DistanceVec3(ownerHost.Position(), receiverHost.Position())
		report.MaxPositionError = max(report.MaxPositionError, report.PositionError)

		if now >= nextReport {
			nextReport++
			report.Owner, report.Receiver = owner.Stats(), receiver.Stats()
			if cfg.Progress != nil {
				cfg.Progress(report)
			}
		}
	}

	report.Owner, report.Receiver = owner.Stats(), receiver.Stats()
	return report, nil
}
