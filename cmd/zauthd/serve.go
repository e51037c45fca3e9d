package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ZentaChain/zsock-node/pkg/config"
	"github.com/ZentaChain/zsock-node/pkg/logging"
	"github.com/ZentaChain/zsock-node/pkg/transport"
	"github.com/ZentaChain/zsock-node/pkg/zauth"
	"github.com/ZentaChain/zsock-node/pkg/zauth/api"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication handler",
		Long: `Run the authentication handler until interrupted.

Without a config file the handler binds the well-known endpoint with
an empty domain and an in-memory store, which admits NULL peers only.

Examples:
  zauthd serve
  zauthd serve --config /etc/zauthd/zauthd.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the TOML config file")

	return cmd
}

func runServe(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer logging.Sync()
	logger := logging.Logger("zauthd")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedStore(store, cfg); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	handler := zauth.New(zauth.Config{
		Endpoint:   cfg.Listen,
		Domain:     cfg.Domain,
		Transports: transport.NewDefaultRegistry(),
		Store:      store,
		Metrics:    zauth.NewMetrics(promReg),
	})
	if err := handler.Start(); err != nil {
		return err
	}
	defer handler.Stop()
	logger.Infow("zauthd serving", "endpoint", cfg.Listen, "domain", cfg.Domain)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		apiCfg := api.DefaultConfig()
		apiCfg.Addr = cfg.API.Addr
		apiCfg.RateLimit = cfg.API.RateLimit
		apiCfg.Registry = promReg
		server := api.NewServer(handler, store, apiCfg)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Errorw("admin api shutdown failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// openStore picks sqlite or memory depending on the config
func openStore(cfg config.Config) (zauth.CredentialStore, error) {
	if cfg.StorePath == "" {
		return zauth.NewMemoryStore(), nil
	}
	store, err := zauth.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open credential store %s: %w", cfg.StorePath, err)
	}
	return store, nil
}

// seedStore applies the credentials and rules listed in the config
func seedStore(store zauth.CredentialStore, cfg config.Config) error {
	for username, password := range cfg.Users {
		if err := store.SetPlain(username, password); err != nil {
			return fmt.Errorf("seed user %s: %w", username, err)
		}
	}
	for _, key := range cfg.CurveKeys {
		if err := store.AllowCurve(key); err != nil {
			return fmt.Errorf("seed curve key: %w", err)
		}
	}
	if len(cfg.Allow) > 0 {
		if err := store.Allow(cfg.Allow...); err != nil {
			return fmt.Errorf("seed allow rules: %w", err)
		}
	}
	if len(cfg.Deny) > 0 {
		if err := store.Deny(cfg.Deny...); err != nil {
			return fmt.Errorf("seed deny rules: %w", err)
		}
	}
	return nil
}
