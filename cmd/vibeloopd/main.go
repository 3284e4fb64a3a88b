// Command vibeloopd runs the iteration loop daemon: it starts a run, ticks
// the loop on a fixed cadence, and serves the live event stream and command
// endpoints over HTTP. Runs start paused; POST {"action":"resume"} to
// /api/control to begin iterating.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/martinemde/vibeloop/config"
	"github.com/martinemde/vibeloop/engine"
	"github.com/martinemde/vibeloop/httpapi"
	"github.com/martinemde/vibeloop/modelrelay"
	"github.com/martinemde/vibeloop/screenshot"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := run(); err != nil {
		slog.Error("vibeloopd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	paths := engine.NewPaths(cfg.StorageRoot)
	bus := engine.NewBus()
	eventLog := engine.NewLog(paths)
	patcher := engine.NewWorkspacePatcher(paths)
	capturer := screenshot.NewChrome()

	exchanger, err := buildExchanger(cfg)
	if err != nil {
		return err
	}

	loopCfg := engine.DefaultLoopConfig()
	loopCfg.Viewport = engine.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	loop := engine.NewRunLoop(eventLog, bus, paths, exchanger, patcher, capturer, &loopCfg)

	go engine.NewControlListener(bus, loop).Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	httpapi.NewServer(bus, cfg.StorageRoot, cfg.WebRoot).Register(e)
	go func() {
		slog.Info("http server listening", "addr", cfg.Listen)
		if err := e.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "error", err)
		}
	}()

	if err := loop.Start(); err != nil {
		return err
	}

	err = loop.Run(ctx, cfg.TickInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("http shutdown", "error", shutdownErr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildExchanger(cfg *config.Config) (engine.Exchanger, error) {
	if cfg.Offline() {
		slog.Warn("no API key configured; using local echo exchange")
		return modelrelay.EchoExchanger{}, nil
	}

	code, err := modelrelay.NewGollmModel(cfg.Provider, cfg.CodeModel, modelrelay.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	vision, err := modelrelay.NewGollmModel(cfg.Provider, cfg.VisionModel, modelrelay.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	return modelrelay.NewRelay(code, vision, nil), nil
}
