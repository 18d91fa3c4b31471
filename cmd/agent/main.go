// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package main is the entry point for the SafeNet tracking agent.
//
// The agent keeps a user's location flowing to the SafeNet backend while they
// have an active session: it acquires fixes over three redundant channels,
// filters and rate-limits them, transmits through a circuit breaker, and
// queues failures durably for later redelivery. A supervisor tree keeps the
// heartbeat, the queue drain loop, and the local diagnostics server running.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, YAML file, SAFENET_* environment)
//  2. Logging (zerolog)
//  3. Store (BadgerDB: queue, session, tracking intent)
//  4. Delivery pipeline (transmitter + circuit breaker + sync queue)
//  5. Tracking orchestrator and session controller, resumed from the store
//  6. Supervisor tree (heartbeat, drain loop, diagnostics server)
//
// Shutdown on SIGINT/SIGTERM stops the supervised services and closes the
// store. The persisted tracking intent is deliberately left alone so the next
// start resumes tracking without the user logging in again.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jahanasherin1/SafeNet-sub000/internal/api"
	"github.com/jahanasherin1/SafeNet-sub000/internal/config"
	"github.com/jahanasherin1/SafeNet-sub000/internal/delivery"
	"github.com/jahanasherin1/SafeNet-sub000/internal/location"
	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/power"
	"github.com/jahanasherin1/SafeNet-sub000/internal/queue"
	"github.com/jahanasherin1/SafeNet-sub000/internal/session"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
	"github.com/jahanasherin1/SafeNet-sub000/internal/supervisor"
	"github.com/jahanasherin1/SafeNet-sub000/internal/tracking"
)

// Default simulated start position, used until a device build supplies real
// platform bindings.
const (
	simStartLat = 9.9312
	simStartLng = 76.2673
)

func main() {
	// A .env file is a development convenience; absence is normal.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	logging.Info().
		Str("remote", cfg.Remote.BaseURL).
		Str("store_path", cfg.Store.Path).
		Bool("diagnostics", cfg.Diagnostics.Enabled).
		Msg("starting SafeNet tracking agent")

	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing store")
		}
	}()

	var reader power.Reader
	if cfg.Battery.Reader == "fixed" {
		reader = power.FixedReader{Percent: cfg.Battery.FixedLevel}
	} else {
		reader = power.SysfsReader{Root: cfg.Battery.SysfsPath}
	}
	policy := power.NewPolicy(st, reader, cfg.Battery.LowThreshold)
	lock := power.NewWakeLock(power.NoopHolder{}, st)

	transmitter := delivery.NewTransmitter(delivery.TransmitterConfig{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout,
	})
	q := queue.New(st, queue.Config{
		MaxEntries: cfg.Queue.MaxEntries,
		MaxRetries: cfg.Queue.MaxRetries,
	}, transmitter)
	pipeline := delivery.NewPipeline(delivery.PipelineConfig{
		MaxAccuracyMeters: cfg.Delivery.MaxAccuracyMeters,
		MinSendInterval:   cfg.Delivery.MinSendInterval,
	}, transmitter, q)

	// The platform binding is device-specific; the simulated service stands
	// in everywhere else (development, CI, soak runs).
	platform := location.NewSimulatedService(simStartLat, simStartLng)

	orch := tracking.New(tracking.Config{
		HeartbeatInterval:     cfg.Tracking.HeartbeatInterval,
		PollInterval:          cfg.Tracking.PollInterval,
		PollIntervalSaving:    cfg.Tracking.PollIntervalSaving,
		PositionTimeout:       cfg.Tracking.PositionTimeout,
		StaleSampleMaxAge:     cfg.Tracking.StaleSampleMaxAge,
		MinSendInterval:       cfg.Delivery.MinSendInterval,
		MinSendIntervalSaving: cfg.Delivery.MinSendIntervalSaving,
	}, platform, pipeline, lock, policy, st, session.PersistedEmail(st))

	ctrl := session.NewController(st, orch, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconcile persisted state before the supervised services start: an
	// expired session is cleared, a live one resumes tracking.
	if active, err := ctrl.HandleResume(ctx); err != nil && !errors.Is(err, session.ErrTokenExpired) {
		logging.Error().Err(err).Msg("session resume failed")
	} else if active {
		logging.Info().Msg("tracking resumed from persisted session")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddTrackingService(tracking.NewHeartbeatService(orch, policy, cfg.Tracking.HeartbeatInterval))
	tree.AddTrackingService(session.NewDrainService(ctrl, q, cfg.Queue.DrainInterval))

	if cfg.Diagnostics.Enabled {
		tree.AddAPIService(api.NewServer(api.Config{
			Host:            cfg.Diagnostics.Host,
			Port:            cfg.Diagnostics.Port,
			RateLimitReqs:   cfg.Diagnostics.RateLimitReqs,
			RateLimitWindow: cfg.Diagnostics.RateLimitWindow,
			CORSOrigins:     cfg.Diagnostics.CORSOrigins,
		}, ctrl, orch, q, policy))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("waiting for supervised services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	logging.Info().Msg("agent stopped")
}
