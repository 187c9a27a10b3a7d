// Command schedulerd runs the maintenance schedule engine as a daemon:
// it opens the store, starts the due-schedule sweeper and hot-reloads its
// configuration on file changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcldesign/asset-manager-sub001/internal/config"
	"github.com/rcldesign/asset-manager-sub001/internal/engine"
	"github.com/rcldesign/asset-manager-sub001/internal/eventbus"
	"github.com/rcldesign/asset-manager-sub001/internal/storage"
	"github.com/rcldesign/asset-manager-sub001/internal/sweeper"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	mgr.SetValidator(validate)
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal: config:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(logConfig(cfg))
	defer logSvc.Close()
	mgr.SetLogger(log)

	storeCfg, err := storageConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	store, err := storage.Open(storeCfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal: storage:", err)
		os.Exit(1)
	}
	defer store.Close()

	bus := eventbus.New()
	eng := engine.New(store, log, bus)

	swCfg, err := sweeperConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	sw := sweeper.New(swCfg, eng, bus, log)
	sw.Start(ctx)
	defer sw.Stop(context.Background())

	// Hot reload: re-apply logging and sweeper settings on config changes.
	sub := mgr.Subscribe(4)
	defer mgr.Unsubscribe(sub)
	go func() { _ = mgr.Watch(ctx) }()
	go func() {
		for c := range sub {
			logSvc.Apply(logConfig(c))
			if nc, err := sweeperConfig(c); err == nil {
				sw.Apply(nc)
				log.Info("sweeper config applied", logx.Duration("interval", nc.Interval))
			}
		}
	}()

	log.Info("schedulerd started", logx.String("config", cfgPath))
	<-ctx.Done()
	log.Info("schedulerd shutting down")
}

// validate rejects configs whose derived settings can't be built; Watch()
// calls it before committing a reload.
func validate(_ context.Context, cfg *config.Config) error {
	if _, err := storageConfig(cfg); err != nil {
		return err
	}
	_, err := sweeperConfig(cfg)
	return err
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func sweeperConfig(cfg *config.Config) (sweeper.Config, error) {
	interval, err := config.ParseDurationOrDefault("sweeper.interval", cfg.Sweeper.Interval, time.Minute)
	if err != nil {
		return sweeper.Config{}, err
	}
	return sweeper.Config{
		Enabled:    cfg.Sweeper.Enabled,
		Interval:   interval,
		Orgs:       cfg.Sweeper.Orgs,
		RatePerSec: cfg.Sweeper.RatePerSec,
	}, nil
}
