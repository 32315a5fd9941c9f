package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/labcode-dev/labcode-log-server/cmd/flags"
	"github.com/labcode-dev/labcode-log-server/hal"
	"github.com/labcode-dev/labcode-log-server/httpserver"
	"github.com/labcode-dev/labcode-log-server/runstore"
	"github.com/labcode-dev/labcode-log-server/storage"
	"github.com/urfave/cli/v2"
)

var cliFlags = []cli.Flag{
	flags.ListenAddrFlag,
	flags.MetricsAddrFlag,
	flags.DatabaseURLFlag,
	flags.StorageModeFlag,
	flags.S3BucketFlag,
	flags.S3EndpointFlag,
	flags.S3RegionFlag,
	flags.S3AccessKeyFlag,
	flags.S3SecretKeyFlag,
	flags.LocalStoragePathFlag,
	flags.LogJSONFlag,
	flags.LogDebugFlag,
	flags.LogUIDFlag,
	flags.LogServiceFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
}

func main() {
	app := &cli.App{
		Name:   "log-server",
		Usage:  "Serve lab run artifacts through the hybrid access layer",
		Flags:  cliFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := context.Background()

	databaseURL := cCtx.String(flags.DatabaseURLFlag.Name)
	if databaseURL == "" {
		return fmt.Errorf("database-url is required")
	}

	db, err := runstore.NewDB(ctx, databaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to run database: %w", err)
	}
	defer db.Close()

	store := runstore.NewStore(db, logger)
	storageCfg := flags.StorageConfig(cCtx)
	registry := storage.NewBackendRegistry()

	accessLayer := hal.New(store, store, registry, storageCfg, logger)

	// The direct-download endpoint streams from the configured default
	// backend.
	directCtor, err := registry.Get(storageCfg.DefaultMode)
	if err != nil {
		return fmt.Errorf("invalid default storage mode: %w", err)
	}
	directBackend, err := directCtor(storageCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create default storage backend: %w", err)
	}

	handler := httpserver.NewHandler(accessLayer, store, directBackend, logger)
	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutting down...")

	srv.Shutdown()
	return nil
}
