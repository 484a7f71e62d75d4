package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/interstellare/server/internal/config"
	"github.com/interstellare/server/internal/data"
	"github.com/interstellare/server/internal/handler"
	gonet "github.com/interstellare/server/internal/net"
	"github.com/interstellare/server/internal/scripting"
	"github.com/interstellare/server/internal/stream"
	"github.com/interstellare/server/internal/system"
	"github.com/interstellare/server/internal/world"
)

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := config.Load(config.Resolve(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if bindAddr != "" {
		cfg.Network.BindAddress = bindAddr
	}
	if scenarioFile != "" || scriptFile != "" {
		cfg.Scenario = config.ScenarioConfig{File: scenarioFile, Script: scriptFile}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Simulation state
	printSection("Simulation")
	state, err := newState(cfg, log)
	if err != nil {
		return err
	}
	printStat("bodies", state.Len())
	printStat("addressing", state.Addressing)
	printStat("time scaling", state.Meta.TimeScaling)
	printStat("snapshot interval", state.TargetTimePerStep)
	fmt.Println()

	// 4. Stream hub + owner loop
	printSection("Network")
	mode, err := stream.ParseMode(cfg.Simulation.Fanout)
	if err != nil {
		return err
	}
	hub := stream.NewHub(mode, cfg.Network.SubscriberQueueSize, log)
	loop := system.NewLoop(state, hub, system.LoopConfig{
		CommandQueueSize:   cfg.Simulation.CommandQueueSize,
		MaxCommandsPerTick: cfg.Simulation.MaxCommandsPerTick,
		TickInterval:       cfg.Simulation.TickInterval,
	}, log)
	printOK(fmt.Sprintf("stream hub ready (%s)", mode))

	// 5. Worker pool + routes + listener
	pool, err := gonet.NewPool(cfg.Network.WorkerPoolSize, cfg.Network.JobQueueSize, log)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	printStat("workers", pool.Size())

	mux := http.NewServeMux()
	handler.RegisterAll(mux, &handler.Deps{
		Commands: loop,
		Hub:      hub,
		Config:   cfg,
		Log:      log,
	})

	srv, err := gonet.NewServer(cfg.Network.BindAddress, pool, mux, gonet.ServerConfig{
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}, log)
	if err != nil {
		pool.Close()
		return fmt.Errorf("listen %s: %w", cfg.Network.BindAddress, err)
	}
	fmt.Println()

	printSection("Ready")
	printReady(fmt.Sprintf("listening on %s", srv.Addr().String()))
	printReady(fmt.Sprintf("simulation loop started (tick: %s)", cfg.Simulation.TickInterval))
	fmt.Println()

	// 6. Run until a signal or the owner fails
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(simCtx); err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		srv.AcceptLoop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// Viewers first so workers unwind, then the owner.
		err := srv.Shutdown()
		hub.Close()
		pool.Close()
		stopSim()
		return err
	})

	err = g.Wait()
	log.Info("server stopped",
		zap.Uint64("published", hub.Published()),
		zap.Uint64("dropped", hub.Dropped()))
	return err
}

// newState builds the owner state from the configured scenario.
func newState(cfg *config.Config, log *zap.Logger) (*world.State, error) {
	addressing, err := world.ParseAddressing(cfg.Simulation.Addressing)
	if err != nil {
		return nil, err
	}

	state := world.NewState()
	state.Addressing = addressing
	state.TargetTimePerStep = cfg.Simulation.TargetTimePerStep
	state.StabilityThreshold = cfg.Simulation.StabilityThreshold
	state.Meta.InteractionConstant = cfg.Simulation.InteractionConstant
	state.Meta.TimeScaling = cfg.Simulation.TimeScaling

	scenario, err := loadScenario(cfg.Scenario, log)
	if err != nil {
		return nil, err
	}
	state.Seed(scenario.Bodies)
	if scenario.Metadata != nil {
		state.Meta = *scenario.Metadata
	}
	printOK(fmt.Sprintf("scenario %q loaded", scenario.Name))
	log.Debug("scenario bodies", zap.Strings("names", scenario.Names))
	return state, nil
}

func loadScenario(cfg config.ScenarioConfig, log *zap.Logger) (*data.Scenario, error) {
	switch {
	case cfg.File != "":
		return data.LoadScenario(cfg.File)
	case cfg.Script != "":
		return scripting.LoadScenario(cfg.Script, log)
	default:
		return data.SolarSystemScenario(), nil
	}
}
