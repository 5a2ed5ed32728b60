// gopass-terminal is the agent behind a GoPass desk or gate: it validates
// boarding-pass scans (queueing them while the GoPass API is unreachable),
// runs the point-of-sale flow and prints the issued tickets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/jetsetgo/gopass-terminal/internal/api"
	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/config"
	"github.com/jetsetgo/gopass-terminal/internal/localstore"
	"github.com/jetsetgo/gopass-terminal/internal/obs"
	"github.com/jetsetgo/gopass-terminal/internal/printer"
	"github.com/jetsetgo/gopass-terminal/internal/sale"
	"github.com/jetsetgo/gopass-terminal/internal/scanqueue"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// monitor is the connectivity source: an HTTP probe or the push channel
type monitor interface {
	api.Link
	OnReconnect(fn func())
	Start(ctx context.Context)
	Stop()
}

func run() error {
	var (
		configPath  string
		listen      string
		storePath   string
		logLevel    string
		writeConfig bool
		showVersion bool
	)
	flags := pflag.NewFlagSet("gopass-terminal", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to config.yaml (default: search config.yaml, configs/, /etc/gopass-terminal/)")
	flags.StringVar(&listen, "listen", "", "local API address, overrides server.host and server.port")
	flags.StringVar(&storePath, "store", "", "pending-scan store path, overrides storage.path")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error; overrides log.level")
	flags.BoolVar(&writeConfig, "write-config", false, "write the effective configuration to --config (or config.yaml) and exit")
	flags.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("gopass-terminal", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	var cfgErr error
	if errors.Is(err, os.ErrNotExist) {
		cfgErr = err
		if cfg, err = config.FromEnv(); err != nil {
			return err
		}
		cfg.ConfigPath = "config.yaml"
		if configPath != "" {
			cfg.ConfigPath = configPath
		}
	} else if err != nil {
		return err
	}
	if storePath != "" {
		cfg.Storage.Path = storePath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if writeConfig {
		if err := cfg.Save(cfg.ConfigPath); err != nil {
			return err
		}
		fmt.Println("configuration written to", cfg.ConfigPath)
		return nil
	}

	logs := obs.NewLogBuffer(500)
	logger := obs.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format, logs)
	metrics := obs.NewMetrics()
	if cfgErr != nil {
		logger.Warn("no config file, using defaults and environment", "error", cfgErr)
	}
	logger.Info("gopass terminal starting",
		"version", version,
		"terminal_id", cfg.Terminal.ID,
		"location", cfg.Terminal.Location,
		"endpoint", cfg.Cloud.Endpoint,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(cfg.Storage.Driver, cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := cloud.NewClient(&cfg.Cloud, nil)
	if err != nil {
		return err
	}

	setOnline := func(online bool) {
		if online {
			metrics.Online.Set(1)
		} else {
			metrics.Online.Set(0)
		}
	}
	var link monitor
	var ws *cloud.WSMonitor
	if cfg.Cloud.UseWebSocket {
		ws = cloud.NewWSMonitor(&cfg.Cloud, cfg.Terminal.ID, logger, setOnline)
		link = ws
	} else {
		link = cloud.NewProbeMonitor(client, cfg.Cloud.ProbeInterval, logger, setOnline)
	}

	scans, err := scanqueue.New(ctx, scanqueue.Config{
		Store:     store,
		Validator: client,
		Link:      link,
		Location:  cfg.Terminal.Location,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	if ws != nil {
		ws.PendingCount = scans.PendingCount
	}
	link.OnReconnect(func() {
		if _, err := scans.ReplayPending(ctx); err != nil && !errors.Is(err, scanqueue.ErrReplayInProgress) {
			logger.Warn("replay after reconnect failed", "error", err)
		}
	})

	printers, err := printer.NewManagerFromConfig(cfg.Printers)
	if err != nil {
		return err
	}
	defer printers.Close()
	jobs := printer.NewJobBuffer(100)

	desk, err := newDesk(cfg, client, printers, jobs, logger, metrics)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Deps{
		Config:   cfg,
		Scans:    scans,
		Desk:     desk,
		Passes:   client,
		Link:     link,
		Printers: printers,
		Jobs:     jobs,
		Logs:     logs,
		Metrics:  metrics,
		Logger:   logger,
		Version:  version,
	})

	link.Start(ctx)
	defer link.Stop()

	errc := make(chan error, 1)
	go func() {
		if listen != "" {
			errc <- server.ListenAndServe(listen)
		} else {
			errc <- server.Start()
		}
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("local API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received", "pending_scans", scans.PendingCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("local API shutdown", "error", err)
	}
	logger.Info("gopass terminal stopped")
	return nil
}

// newDesk wires the sale desk, with ticket printing when a printer exists
func newDesk(cfg *config.Config, client *cloud.Client, printers *printer.Manager, jobs *printer.JobBuffer,
	logger *slog.Logger, metrics *obs.Metrics) (*sale.Desk, error) {
	dc := sale.DeskConfig{
		Client:  client,
		Bands:   sale.BandsFromConfig(cfg.Pricing),
		Logger:  logger,
		Metrics: metrics,
	}
	if len(cfg.Printers) > 0 {
		spooler, err := printer.NewSpooler(printer.SpoolerConfig{
			Manager:     printers,
			PrinterID:   cfg.Printing.PrinterID,
			Fetcher:     client,
			SettleDelay: cfg.Printing.SettleDelay,
			Jobs:        jobs,
			Logger:      logger,
			Metrics:     metrics,
		})
		if err != nil {
			return nil, err
		}
		dc.Printer = spooler
	} else {
		logger.Warn("no printers configured, tickets will not be printed")
	}
	return sale.NewDesk(dc)
}
