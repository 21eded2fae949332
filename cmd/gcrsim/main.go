// Command gcrsim runs Global Carbon Reward simulations from the terminal.
//
//	gcrsim run       run one scenario and log annual snapshots
//	gcrsim ensemble  run a Monte-Carlo ensemble and print the summary
//
// Scenario parameters come from GCRSIM_* environment variables; see
// internal/config for the full list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/gcrsim/internal/config"
	"github.com/example/gcrsim/internal/events"
	"github.com/example/gcrsim/internal/logging"
	"github.com/example/gcrsim/internal/observability"
	"github.com/example/gcrsim/internal/sim"
	"github.com/example/gcrsim/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      logging.Format(cfg.LogFormat),
		Environment: cfg.Env,
	})

	if len(os.Args) < 2 {
		fmt.Println("usage: gcrsim <run|ensemble>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer rt.close()

	switch command := os.Args[1]; command {
	case "run":
		if err := rt.runOne(ctx); err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
	case "ensemble":
		if err := rt.runEnsemble(ctx); err != nil {
			logger.Error("ensemble failed", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("unknown command: %s\n", command)
		os.Exit(1)
	}
}

// runtime wires the engine's collaborators: event bus, optional results
// store, optional metrics endpoint.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     events.Bus
	store   *store.Store
	metrics *observability.Metrics
	httpSrv *http.Server
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, bus: events.NewInMemoryBus()}

	// This command always dispatches in-process. The NATS and Redis buses
	// (events_nats / events_redis build tags) are not constructed here.
	if cfg.Events.Backend != "memory" {
		logger.Warn("events backend not used by this command; using in-memory bus",
			"backend", cfg.Events.Backend)
	}

	if cfg.Database.Enabled {
		st, err := store.Connect(ctx, store.Config{DSN: cfg.Database.DSN})
		if err != nil {
			return nil, fmt.Errorf("connect results store: %w", err)
		}
		rt.store = st
	}

	if cfg.Metrics.Enabled {
		rt.metrics = observability.New()
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.metrics.Handler())
		rt.httpSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := rt.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.httpSrv.Shutdown(shutdownCtx)
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	_ = rt.bus.Close()
}

// runOne executes a single scenario and logs each annual snapshot.
func (rt *runtime) runOne(ctx context.Context) error {
	engine, err := sim.NewEngine(rt.cfg.Scenario, rt.logger)
	if err != nil {
		return err
	}
	runID := engine.RunID()
	ctx = logging.WithRunID(ctx, runID)

	if rt.store != nil {
		if err := rt.store.BeginRun(ctx, runID, rt.cfg.Scenario); err != nil {
			return err
		}
	}
	if rt.metrics != nil {
		rt.metrics.RunStarted()
	}
	_ = rt.bus.Publish(ctx, events.NewEvent(events.EventRunStarted, rt.cfg.Scenario).WithRunID(runID).WithSource("cli"))

	start := time.Now()
	result, err := engine.Run(ctx)
	if err != nil {
		var runErr *sim.RunError
		if errors.As(err, &runErr) {
			if rt.store != nil {
				_ = rt.store.MarkAborted(ctx, runID, runErr.Tick, runErr.Cause.Error())
			}
			if rt.metrics != nil {
				rt.metrics.RunAborted(time.Since(start), runErr.Tick)
			}
			_ = rt.bus.Publish(ctx, events.NewEvent(events.EventRunAborted, map[string]any{
				"tick":  runErr.Tick,
				"cause": runErr.Cause.Error(),
			}).WithRunID(runID).WithSource("cli"))
		}
		return err
	}

	for _, snap := range result.Snapshots {
		_ = rt.bus.Publish(ctx, events.NewEvent(events.EventTickCompleted, snap).WithRunID(runID).WithSource("cli"))
		rt.logger.Info("year complete",
			"year", snap.Year,
			"co2Ppm", snap.CO2PPM,
			"bauCo2Ppm", snap.BAUCO2PPM,
			"temperature", snap.TemperatureAnomaly,
			"xcrSupply", snap.XCRSupply,
			"marketPrice", snap.MarketPrice,
			"brake", snap.CEABrakeFactor,
			"activeCountries", snap.ActiveCountries)
	}

	if rt.store != nil {
		if err := rt.store.SaveResult(ctx, result); err != nil {
			return err
		}
	}
	final := result.Snapshots[len(result.Snapshots)-1]
	if rt.metrics != nil {
		rt.metrics.RunCompleted(time.Since(start), len(result.Snapshots),
			final.CO2PPM, final.XCRSupply, final.TemperatureAnomaly)
	}
	_ = rt.bus.Publish(ctx, events.NewEvent(events.EventRunCompleted, final).WithRunID(runID).WithSource("cli"))

	rt.logger.Info("run complete",
		"runId", runID,
		"years", len(result.Snapshots),
		"finalCo2Ppm", final.CO2PPM,
		"co2Avoided", final.CO2Avoided,
		"finalSupply", final.XCRSupply,
		"duration", time.Since(start))
	return nil
}

// runEnsemble executes the configured Monte-Carlo ensemble and prints its
// summary as JSON.
func (rt *runtime) runEnsemble(ctx context.Context) error {
	start := time.Now()
	result, err := sim.RunEnsemble(ctx, rt.cfg.Scenario, rt.logger)
	if err != nil {
		return err
	}

	if rt.store != nil {
		for _, run := range result.Runs {
			if err := rt.store.BeginRun(ctx, run.RunID, run.Params); err != nil {
				return err
			}
			if err := rt.store.SaveResult(ctx, run); err != nil {
				return err
			}
		}
	}
	_ = rt.bus.Publish(ctx, events.NewEvent(events.EventEnsembleCompleted, result.Summary).WithSource("cli"))

	rt.logger.Info("ensemble complete",
		"runs", result.Summary.Completed,
		"aborted", result.Summary.Aborted,
		"duration", time.Since(start))

	out, err := json.MarshalIndent(result.Summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
