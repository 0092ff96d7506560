// Command claimctl inspects and repairs the local claim store of a device.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xelth-com/claimsync/internal/capture"
	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/database"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "claimctl",
	Short: "Operator tool for the on-device claim store",
	Long: `claimctl works directly on the local store used by the claim agent.

Stop the agent before changing the queue: both write the same database.`,
	SilenceUsage: true,
}

// env bundles what most commands need
type env struct {
	cfg     *config.Config
	syncCfg *config.SyncConfig
	store   *store.Store
	capture *capture.Service
	sealer  *utils.BlobSealer
}

func (e *env) Close() {
	if err := e.store.Dispose(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing store: %v\n", err)
	}
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	syncCfg := config.LoadSyncConfig()
	if cfg.DeviceID == "" {
		if cfg.DeviceID, err = utils.LoadOrCreateDeviceID(cfg.DeviceIDFile); err != nil {
			return nil, err
		}
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.New(db, nil)
	if err := st.Init(ctx); err != nil {
		_ = st.Dispose()
		return nil, err
	}

	var sealer *utils.BlobSealer
	if cfg.BlobKey != nil {
		if sealer, err = utils.NewBlobSealer(cfg.BlobKey); err != nil {
			_ = st.Dispose()
			return nil, err
		}
	}

	return &env{
		cfg:     cfg,
		syncCfg: syncCfg,
		store:   st,
		capture: capture.NewService(st, capture.Config{MaxAttempts: syncCfg.MaxAttempts, Sealer: sealer}),
		sealer:  sealer,
	}, nil
}

func main() {
	rootCmd.AddCommand(statsCmd, queueCmd, drainCmd, deadLetterCmd, requeueCmd, importCatalogCmd, seedDemoCmd, fakeRemoteCmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
