// Package main is the entry point for the pandemic simulation server.
// It only handles dependency injection and server initialization.
// NO simulation logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/infra/storage"
	"github.com/MRamiBalles/PandemicSim/internal/network"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

func main() {
	fs := flag.NewFlagSet("pandemic-server", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "HTTP listen address")
	dbPath := fs.String("db", "data/pandemic.db", "run history database (empty disables recording)")
	startPaused := fs.Bool("paused", false, "start with the ticker paused")
	pollInterval := fs.Duration("poll", 50*time.Millisecond, "snapshot and event broadcast interval")

	log.Println("[PANDEMIC-SERVER] Initializing simulation server...")
	appLogger := logger.NewLogger()

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		appLogger.Error(err.Error())
		os.Exit(2)
	}

	var (
		db       *sql.DB
		recorder *storage.Recorder
		history  *network.HistoryHandler
	)
	var persister events.EventPersister
	if *dbPath != "" {
		appLogger.Info("Initializing SQLite run history '" + *dbPath + "'...")
		db, err = storage.InitSQLite(*dbPath)
		if err != nil {
			appLogger.Error("Failed to initialize SQLite: " + err.Error())
			os.Exit(1)
		}
		opts := storage.DefaultRecorderOptions()
		opts.Buffer = cfg.EventChannelBuffer
		opts.BatchSize = cfg.RecorderBatchSize
		recorder = storage.NewRecorder(db, appLogger, opts)
		persister = recorder
		history = network.NewHistoryHandler(
			storage.NewSQLiteRunRepository(db),
			storage.NewSQLiteStatsRepository(db),
			storage.NewSQLiteEventRepository(db),
			appLogger,
		)
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(persister)
	eventLog.OnPersistError(func(err error) {
		appLogger.Warn("Event not recorded: " + err.Error())
	})

	appLogger.Info("Bootstrapping Engine...")
	eng, err := engine.NewEngine(cfg, eventLog, appLogger)
	if err != nil {
		appLogger.Error("Failed to start engine: " + err.Error())
		os.Exit(1)
	}
	if recorder != nil {
		eng.AddObserver(recorder)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := engine.NewTicker(eng, appLogger)
	if *startPaused {
		ticker.Pause()
	}
	go ticker.Start(ctx)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	controller := network.NewController(eng, ticker, appLogger)
	hub := network.NewHub(controller, appLogger, cfg.MaxClients, cfg.ClientSendBuffer)
	go hub.Run(ctx)
	hub.StartSnapshotPoller(ctx, eng, *pollInterval)
	hub.StartEventPoller(ctx, eventLog, *pollInterval)

	router := network.NewRouter(network.Routes{
		Hub:     hub,
		Control: network.NewControlHandler(controller, appLogger),
		Replay:  network.NewReplayHandler(eventLog, appLogger),
		Report:  network.NewReportHandler(controller, appLogger),
		History: history,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Println("[PANDEMIC-SERVER] HTTP API & WS Server listening on " + *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[PANDEMIC-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[PANDEMIC-SERVER] Shutting down...")
	ticker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP shutdown: " + err.Error())
	}

	if recorder != nil {
		recorder.Close()
	}
	if db != nil {
		db.Close()
	}
}
