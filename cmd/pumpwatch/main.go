package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plantops/pumpwatch/db"
	"github.com/plantops/pumpwatch/internal/api"
	"github.com/plantops/pumpwatch/internal/config"
	"github.com/plantops/pumpwatch/internal/datadog"
	"github.com/plantops/pumpwatch/internal/logging"
	"github.com/plantops/pumpwatch/internal/notifications"
	"github.com/plantops/pumpwatch/internal/plc"
	"github.com/plantops/pumpwatch/internal/poller"
	"github.com/plantops/pumpwatch/internal/report"
	"github.com/plantops/pumpwatch/internal/state"
	"github.com/plantops/pumpwatch/internal/tagmap"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("plc_host", cfg.PLC.Host).
		Int("poll_interval_s", cfg.PollIntervalSeconds).
		Msg("Starting pumpwatch")

	datadog.InitMetrics(&cfg)
	notifications.Init(cfg.NtfyTopic)

	tags := tagmap.New(&cfg)
	st := state.New(tags.Pumps, tags.Chillers)

	store, err := db.Open(cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Str("db_file", cfg.DBFile).Msg("Failed to open history database")
	}
	defer store.Close()

	client := plc.NewClient(*cfg.PLC)
	p := poller.New(client, tags, st, store, time.Duration(cfg.PollIntervalSeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollerDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(pollerDone)
	}()

	server := api.NewServer(st, report.NewService(store))
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("API server exited")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, waiting for poller")
	<-pollerDone
}
