package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perimguard/internal/api"
	"perimguard/internal/assessments"
	"perimguard/internal/config"
	"perimguard/internal/engine"
	"perimguard/internal/escalations"
	"perimguard/internal/ingest"
	"perimguard/internal/logging"
	"perimguard/internal/model"
	"perimguard/internal/storage"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var manager *config.Manager
	var err error
	if *configPath != "" {
		manager, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	} else {
		manager = config.NewStaticManager(nil)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting perimguard", "version", version, "config", *configPath)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Init(initCtx); err != nil {
		initCancel()
		logger.Error("storage schema init failed", "error", err)
		os.Exit(1)
	}
	initCancel()
	defer store.Close()

	assessStore := assessments.NewStore(cfg.Assessments.StoreLimit)
	escalationStore := escalations.NewStore(cfg.Escalations.StoreLimit)
	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), assessStore, escalationStore, store)

	events := make(chan model.Event, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, events)

	parser := ingest.NewParser()
	ingest.StartREST(ctx, manager, events, logging.Component(logger, "ingest.rest"))
	ingest.StartKafka(ctx, manager, parser, events, logging.Component(logger, "ingest.kafka"))
	ingest.StartFileTail(ctx, manager, parser, events, logging.Component(logger, "ingest.filetail"))

	api.Start(ctx, manager, assessStore, escalationStore, eng, logging.Component(logger, "api"), version)

	if *configPath != "" {
		go manager.Watch(3*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded")
				eng.UpdateConfig(next)
			},
			func(err error) {
				logger.Warn("config reload failed", "error", err)
			},
			ctx.Done(),
		)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	cancel()
	time.Sleep(200 * time.Millisecond)
}
