package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/claimsync/internal/capture"
	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/connectivity"
	"github.com/xelth-com/claimsync/internal/database"
	"github.com/xelth-com/claimsync/internal/handlers"
	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/remote"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/sync"
	"github.com/xelth-com/claimsync/internal/utils"
	"github.com/xelth-com/claimsync/internal/websocket"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	syncCfg := config.LoadSyncConfig()

	if cfg.DeviceID == "" {
		if cfg.DeviceID, err = utils.LoadOrCreateDeviceID(cfg.DeviceIDFile); err != nil {
			log.Fatalf("Failed to load device identity: %v", err)
		}
	}

	// 2. Open the local store
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize local store: %v", err)
	}

	var sealer *utils.BlobSealer
	if cfg.BlobKey != nil {
		sealer, err = utils.NewBlobSealer(cfg.BlobKey)
		if err != nil {
			log.Fatalf("Failed to create blob sealer: %v", err)
		}
		log.Println("🔒 Photo blobs are sealed at rest")
	}

	captureSvc := capture.NewService(st, capture.Config{MaxAttempts: syncCfg.MaxAttempts, Sealer: sealer})

	// 3. Remote client and connectivity
	client := remote.NewClient(
		cfg.Remote.BaseURL,
		remote.NewHTTPClient(cfg.Remote.Timeout),
		utils.NewDeviceTokenSource(cfg.DeviceID, cfg.JWTSecret),
		nil,
	)
	monitor := connectivity.NewMonitor(connectivity.Config{
		Routes:        syncCfg.Routes,
		Prober:        client,
		CheckInterval: syncCfg.HealthInterval(),
		OnRoute:       client.SetBaseURL,
	})

	// 4. Sync service
	syncSvc := sync.NewService(sync.Options{Store: st, Connectivity: monitor, Config: syncCfg})
	sync.RegisterDefaultAdapters(syncSvc, client, st, sealer, nil)

	// 5. Live event feed
	hub := websocket.NewHub(func(cmd websocket.Command) error {
		if cmd.Type != websocket.CommandSyncNow {
			return errors.New("unknown command")
		}
		if !syncSvc.TriggerDrain() {
			return errors.New("sync disabled")
		}
		return nil
	}, nil)
	syncSvc.Subscribe(func(snap sync.Snapshot) { hub.Broadcast(websocket.EventSyncStatus, snap) })
	monitor.OnChange(func(online bool) {
		hub.Broadcast(websocket.EventConnectivity, map[string]interface{}{
			"online": online,
			"route":  monitor.CurrentRoute(),
		})
	})
	captureSvc.OnChange(func(c capture.Change) { hub.Broadcast(websocket.EventCapture, c) })

	monitor.Start(ctx)

	if syncCfg.Enabled {
		if err := syncSvc.Init(ctx); err != nil {
			log.Printf("⚠️ Sync service: Failed to start: %v", err)
		}
		if syncCfg.BackgroundSync.Enabled {
			sync.RegisterBackground(ctx, &sync.TickerRegistrar{
				Interval: time.Duration(syncCfg.BackgroundSync.Interval) * time.Second,
				Trigger:  syncSvc.TriggerDrain,
			}, syncCfg.BackgroundSync.Tag, nil)
		}
	} else {
		log.Println("⏸️ Sync disabled, captures stay queued")
	}

	// 6. HTTP server
	router := handlers.NewRouter(handlers.Deps{
		Capture:  captureSvc,
		Store:    st,
		Sync:     syncSvc,
		Monitor:  monitor,
		Hub:      hub,
		APIToken: cfg.APIToken,
		Secret:   cfg.JWTSecret,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("🚀 Claim agent (%s) starting on port %s", cfg.DeviceID, cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("⚠️  Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}

	monitor.Stop()
	syncSvc.Dispose()

	log.Println("🛑 Closing database connection...")
	if err := st.Dispose(); err != nil {
		log.Printf("Database close error: %v", err)
	}
	log.Println("✅ Shutdown complete")
}
