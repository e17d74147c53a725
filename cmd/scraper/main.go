// Command scraper drives the configured targets through a fleet of
// isolated browser containers behind a rotating proxy pool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"scraper/config"
	"scraper/etl/ocr"
	"scraper/etl/target"
	"scraper/logger"
	"scraper/utils/profiling"
	"scraper/web/controller"
	"scraper/web/docker"
	"scraper/web/driver"
	"scraper/web/proxy"
)

var cli struct {
	TargetType   string `name:"target-type" required:"" help:"Selects the configuration file by name."`
	ConfigFormat string `name:"config-format" default:"yaml" enum:"yaml,json,toml" help:"Configuration file format."`
	Debug        bool   `help:"Enable debug logging."`
	Profiling    bool   `help:"Write a runtime profile into the log directory."`
}

func main() {
	kong.Parse(&cli, kong.Name("scraper"), kong.Description("Configuration-driven web scraping orchestrator."))
	os.Exit(run())
}

func run() int {
	path, err := config.Path(cli.TargetType, cli.ConfigFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal (config.Load): %v\n", err)
		return 1
	}

	if cli.Debug {
		cfg.Logging.LogLevel = "DEBUG"
	} else {
		cfg.Logging.LogLevel = "ERROR"
	}
	if err := logger.Init(cli.TargetType, cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("starting web scraper", zap.String("target_type", cli.TargetType))

	if cli.Profiling {
		profile, err := profiling.Start(cli.TargetType, cfg.Logging.LogDirectory)
		if err != nil {
			logger.Error("failed to start profiling", zap.Error(err))
		} else {
			defer profile.Stop()
		}
	}

	// The first interrupt cancels the scraping context; subsequent ones
	// feed the release loop so it can skip a stuck connection.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	interrupts := make(chan struct{}, 1)
	go forwardInterrupts(interrupts)

	containers, err := docker.NewManager(cfg.Docker)
	if err != nil {
		logger.Error("unrecoverable startup failure", zap.Error(err))
		return 1
	}
	defer containers.Close()

	if err := config.Preflight(ctx, containers); err != nil {
		logger.Error("preflight check failed", zap.Error(err))
		return 1
	}

	drivers, err := driver.NewManager(cfg.Driver)
	if err != nil {
		logger.Error("unrecoverable startup failure", zap.Error(err))
		return 1
	}
	defer drivers.Stop()

	proxies, err := proxy.NewManager(cfg.Proxy)
	if err != nil {
		logger.Error("unrecoverable startup failure", zap.Error(err))
		return 1
	}

	ctrl, err := controller.New(proxies, containers, drivers, cfg.Driver, cfg.Specs(), cfg.Docker.Ports)
	if err != nil {
		logger.Error("unrecoverable startup failure", zap.Error(err))
		return 1
	}

	ctrl.Connect(ctx)
	defer func() {
		// The interrupt that ended the run has already done its job;
		// only interrupts arriving during release should skip.
		select {
		case <-interrupts:
		default:
		}
		ctrl.Disconnect(interrupts)
		logger.Info("scraper exited")
	}()

	recognizer := ocr.NewRecognizer(cfg.OCR)
	manager := target.NewManager(ctrl, cfg.Targets, recognizer)
	manager.Execute(ctx)

	if ctx.Err() != nil {
		logger.Info("interrupt received, shutting down")
	}
	return 0
}

// forwardInterrupts turns every interrupt keypress into at most one
// pending skip token for the release loop.
func forwardInterrupts(interrupts chan<- struct{}) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	for range c {
		select {
		case interrupts <- struct{}{}:
		default:
		}
	}
}
