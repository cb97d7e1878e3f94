// Command enginemux runs the Engine API multiplexer: process entry point,
// flag parsing, component wiring, and signal-driven shutdown, the way
// cmd/blsync's main.go wires its own flags.NewApp.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/builder"
	"github.com/ethpandaops/engine-mux/internal/cache"
	"github.com/ethpandaops/engine-mux/internal/config"
	"github.com/ethpandaops/engine-mux/internal/engineclient"
	"github.com/ethpandaops/engine-mux/internal/matcher"
	"github.com/ethpandaops/engine-mux/internal/router"
	"github.com/ethpandaops/engine-mux/internal/server"
)

// levelFilterHandler drops records below the configured verbosity, mirroring
// the pre-slog log.LvlFilterHandler behavior for handlers that don't take a
// level option directly (e.g. log.JSONHandler).
type levelFilterHandler struct {
	slog.Handler
	level slog.Level
}

func (h *levelFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func main() {
	app := &cli.App{
		Name:  "enginemux",
		Usage: "multiplex a single Ethereum execution engine across many consensus clients",
		Flags: config.Flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("enginemux terminated", "error", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := engineclient.New(ctx, cfg.EngineURL, cfg.EngineJWTSecret, cfg.EngineTimeout)
	if err != nil {
		return fmt.Errorf("dial primary engine: %w", err)
	}
	defer engine.Close()

	npCache, err := cache.NewNewPayloadCache(cfg.NewPayloadCacheSize)
	if err != nil {
		return fmt.Errorf("new payload cache: %w", err)
	}
	fcCache, err := cache.NewForkchoiceCache(cfg.FCUCacheSize, cfg.JustifiedBlockCacheSize, cfg.FinalizedBlockCacheSize)
	if err != nil {
		return fmt.Errorf("forkchoice cache: %w", err)
	}
	payloadBuilder, err := builder.New(cfg.PayloadBuilderCacheSize, cfg.PayloadBuilderExtraData)
	if err != nil {
		return fmt.Errorf("payload builder: %w", err)
	}
	matchMode, err := matcher.ParseMode(cfg.FCUMatching)
	if err != nil {
		return fmt.Errorf("fcu_matching: %w", err)
	}
	match := matcher.New(matchMode)

	r := router.New(engine, npCache, fcCache, match, payloadBuilder, router.Config{
		NewPayloadWait:        cfg.NewPayloadWait,
		NewPayloadWaitCutoff:  cfg.NewPayloadWaitCutoff,
		FCUWait:               cfg.FCUWait,
		MaxPayloadBodiesBatch: cfg.MaxPayloadBodiesBatch,
		Network:               cfg.Network,
	})

	controllerVerifier := auth.NewControllerVerifier(cfg.ControllerJWTSecret)
	clientVerifier := auth.NewKeyCollection(cfg.ClientSecrets)

	srv := server.New(cfg.ListenAddress, cfg.ListenPort, cfg.BodyLimitBytes, nil, r, controllerVerifier, clientVerifier)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogging(cfg *config.Config) {
	lvl := log.FromLegacyLevel(cfg.Verbosity)
	var handler slog.Handler
	if cfg.LogJSON {
		handler = &levelFilterHandler{log.JSONHandler(os.Stderr), lvl}
	} else {
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)
	}
	log.SetDefault(log.NewLogger(handler))
}
