package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/vjranagit/runmetrics/internal/config"
	"github.com/vjranagit/runmetrics/pkg/api"
	"github.com/vjranagit/runmetrics/pkg/store"
)

const version = "0.1.0"

var (
	listenAddr = pflag.String("listen-addr", "", "Listen address (overrides LISTEN_ADDR)")
	dataPath   = pflag.String("data-path", "", "Metric log directory (overrides DATA_PATH)")
)

func main() {
	pflag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Infof("runmetrics v%s", version)

	cfg := config.DefaultConfig()
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *dataPath != "" {
		cfg.Store.Path = *dataPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.WithFields(log.Fields{
		"listen_addr": cfg.Server.ListenAddr,
		"data_path":   cfg.Store.Path,
		"block_size":  cfg.Store.BlockSize,
		"wal":         cfg.Store.EnableWAL,
	}).Info("Configuration loaded")

	runStore, err := store.NewStore(cfg.ToStoreConfig())
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer runStore.Close()

	server := api.NewServer(cfg.Server.ListenAddr, runStore)

	go func() {
		log.Infof("API server listening on %s", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil {
			log.Errorf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}

	log.Info("Server stopped")
}
