package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/user/towerbridge/bridge"
	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/sdk/simulator"
	"github.com/user/towerbridge/server"
	"github.com/user/towerbridge/tower"
)

const shutdownTimeout = 5 * time.Second

func main() {
	fs := pflag.NewFlagSet("towerbridge", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "Path to config file (default ./config.yaml)")
	fs.String("server.addr", ":8088", "HTTP listen address")
	fs.String("log.level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("environment", "development", "Backend environment (development, sandbox, production or a URL)")
	fs.Duration("discovery.timeout", 20*time.Second, "Discovery-to-connect timeout")
	fs.Bool("cache.persist", true, "Persist discovered towers across restarts")
	fs.Parse(os.Args[1:])

	if err := run(*configPath, fs); err != nil {
		fmt.Fprintf(os.Stderr, "towerbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, fs *pflag.FlagSet) error {
	loader := config.NewLoader(configPath)
	if err := loader.BindFlags(fs); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()

	if logger.GetLevel() > logger.DEBUG {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := tower.NewRegistry(nil)
	if cfg.Cache.Persist {
		store, err := tower.OpenStore(ctx, cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Load(ctx)
		if err != nil {
			return err
		}
		registry = tower.NewRegistry(store)
		registry.Warm(records)
		logger.Info("main", "Loaded %d known towers from %s", len(records), cfg.Cache.Path)
	}

	if len(cfg.Simulator.Towers) == 0 {
		cfg.Simulator.Towers = defaultFixtures()
	}
	sim := simulator.New(cfg.Simulator)
	defer sim.Close()

	b := bridge.New(sim, bridge.WithRegistry(registry), bridge.WithConfig(cfg))
	b.InitializeSDK()
	b.SetLogLevel(cfg.Log.Level)
	if cfg.AccessToken != "" {
		env := cfg.Environment
		b.SetAccessToken(cfg.AccessToken, &env)
	} else {
		logger.Warn("main", "No access_token configured, sessions will be refused")
	}

	if configPath != "" {
		loader.Watch(func(next *config.Config, err error) {
			if err != nil {
				logger.Warn("main", "Config reload failed: %v", err)
				return
			}
			b.ApplyConfig(next)
			b.SetLogLevel(next.Log.Level)
		})
	}

	srv := server.New(b, cfg.Server)
	errc := make(chan error, 1)
	go func() {
		logger.Info("main", "Listening on %s (backend %s)", cfg.Server.Addr, sim.Backend())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("main", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func defaultFixtures() []config.TowerFixture {
	return []config.TowerFixture{
		{
			ID:              "a1b2c3d4e5f60718",
			Name:            "Harbor Tower 1",
			FirmwareVersion: "2.4.1",
			RSSI:            -52,
			Lockers:         map[string]int{"1": 4, "2": 2},
		},
		{
			ID:              "0f1e2d3c4b5a6978",
			Name:            "Harbor Tower 2",
			FirmwareVersion: "2.3.0",
			RSSI:            -71,
			Lockers:         map[string]int{"1": 6},
		},
	}
}
