package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"alarm-delivery-backend/config"
	"alarm-delivery-backend/internal/action"
	"alarm-delivery-backend/internal/api"
	"alarm-delivery-backend/internal/audio"
	"alarm-delivery-backend/internal/db"
	"alarm-delivery-backend/internal/dispatch"
	"alarm-delivery-backend/internal/events"
	"alarm-delivery-backend/internal/notify"
	"alarm-delivery-backend/internal/presence"
	"alarm-delivery-backend/internal/sched"
	"alarm-delivery-backend/internal/store"
	"alarm-delivery-backend/internal/timer"
)

func main() {
	logger := log.New(os.Stdout, "alarmd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("failed to load configuration from %s (%v), using defaults", configPath, err)
		cfg = config.Default()
	} else {
		logger.Printf("configuration loaded successfully from %s", configPath)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured; push alerts disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, cfg.Snooze.DefaultMinutes)

	var player presence.Player = presence.NopPlayer{}
	if cfg.Audio.Enabled {
		player = audio.NewTonePlayer(&cfg.Audio)
	}
	presenceMgr := presence.NewManager(player)
	// No audio loop may outlive the process, however it is torn down.
	defer presenceMgr.StopAll()

	bus := events.NewBus()

	var pool *notify.WorkerPool
	if webpushOptions != nil {
		pool = notify.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
	}
	notifier := notify.New(pool, bus)

	// The timer fires with only the identity; the dispatcher resolves the
	// rest from the store.
	var dispatcher *dispatch.Dispatcher
	wakeup := timer.New(&cfg.Timer, func(id int64) { dispatcher.OnFire(id) })
	scheduler := sched.New(appStore, wakeup)
	dispatcher = dispatch.New(appStore, presenceMgr, notifier, scheduler)
	actions := action.New(appStore, scheduler, presenceMgr, notifier)

	go wakeup.Run(ctx)

	if !scheduler.CanScheduleExactly() {
		logger.Println("exact scheduling disabled; wake-ups are best-effort")
	}

	recovered, err := scheduler.Recover(ctx)
	if err != nil {
		logger.Fatalf("boot recovery failed: %v", err)
	}
	logger.Printf("boot recovery complete, %d alarms armed", recovered)

	router := api.NewRouter(&cfg.Server, appStore, scheduler, actions, bus, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	cancel()
	presenceMgr.StopAll()
	logger.Println("Server gracefully stopped")
}
