package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/manpreetbhatti/sketchroom/internal/api"
	"github.com/manpreetbhatti/sketchroom/internal/config"
	"github.com/manpreetbhatti/sketchroom/internal/db"
	"github.com/manpreetbhatti/sketchroom/internal/discovery"
	"github.com/manpreetbhatti/sketchroom/internal/ledger"
	"github.com/manpreetbhatti/sketchroom/internal/room"
	"github.com/manpreetbhatti/sketchroom/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	var (
		database *db.Database
		recorder ws.Recorder
		activity *ledger.Service
	)
	if cfg.LedgerEnabled() {
		database, err = db.New(cfg.DBPath)
		if err != nil {
			slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer database.Close()

		ledgerCfg := ledger.DefaultConfig()
		ledgerCfg.Interval = cfg.LedgerInterval
		ledgerCfg.Retention = cfg.LedgerRetention
		activity = ledger.New(database, ledgerCfg)
		activity.Start()
		recorder = activity
	} else {
		slog.Info("activity ledger disabled")
	}

	store := room.NewStore()
	hub := ws.NewHub()

	opts := ws.DefaultOptions()
	opts.MessagesPerSecond = cfg.MessageRate
	opts.MessageBurst = cfg.MessageBurst
	wsServer := ws.NewServer(store, hub, recorder, opts)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.ServeWs)
	api.New(store, hub, database).Register(mux)

	var advertiser *discovery.Advertiser
	if cfg.MDNS {
		advertiser, err = discovery.Advertise(cfg.Port)
		if err != nil {
			slog.Warn("mdns advertise failed", "error", err)
		} else {
			slog.Info("advertising on mdns", "service", discovery.ServiceType)
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("sketchroom server starting",
			"port", cfg.Port,
			"ledger", cfg.LedgerEnabled(),
			"db", cfg.DBPath,
			"mdns", advertiser != nil,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if advertiser != nil {
		if err := advertiser.Shutdown(); err != nil {
			slog.Warn("mdns shutdown", "error", err)
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wsServer.Close()
	if activity != nil {
		activity.Stop()
		slog.Info("activity ledger flushed", "dropped", activity.Dropped())
	}
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
