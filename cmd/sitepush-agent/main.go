package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bark-labs/sitepush/internal/apiclient"
	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/config"
	"github.com/bark-labs/sitepush/internal/crypto"
	"github.com/bark-labs/sitepush/internal/device"
	"github.com/bark-labs/sitepush/internal/logger"
	"github.com/bark-labs/sitepush/internal/scheduler"
	"github.com/bark-labs/sitepush/internal/server"
	"github.com/bark-labs/sitepush/internal/service"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/bark-labs/sitepush/internal/storage/bolt"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info", "json").WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("agent stopped")
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run(cfg *config.Config, log *logrus.Logger) error {
	api, err := apiclient.New(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}

	store, err := bolt.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("close store")
		}
	}()

	bridge := device.NewBridge(store, cfg.Push.AppVersion, cfg.Push.DeviceName)
	gate := capability.NewGate(bridge, cfg.Push.UnsupportedRuntimes, log)
	codec := crypto.NewCodec(store, crypto.CodecOptions{
		MaterialKey: storage.KeyCryptoMaterial,
		SessionID:   bridge.DeviceID,
		SeedBytes:   cfg.Crypto.SeedBytes,
		KeyBytes:    cfg.Crypto.KeyBytes,
	}, log)
	tokens := service.NewTokenStore(store, codec, log)

	registrar, err := service.NewRegistrar(gate, bridge, bridge, tokens, api, service.RegistrarOptions{
		TokenPattern:   cfg.Push.TokenPattern,
		TokenMinLength: cfg.Push.TokenMinLength,
		RequestTimeout: cfg.Backend.RequestTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("init registrar: %w", err)
	}

	outbox := service.NewLocalOutbox(store, log)
	deliveryLogs := service.NewDeliveryLogService(store, log)
	dispatcher := service.NewDispatcher(
		service.NewRecipientResolver(api, log),
		api,
		outbox,
		deliveryLogs,
		service.DispatcherOptions{
			SendTimeout:           cfg.Dispatch.SendTimeout,
			LocalWhenNoRecipients: cfg.Dispatch.LocalWhenNoRecipients,
		},
		log,
	)
	authSvc := service.NewAuthService(cfg)

	housekeeper, err := scheduler.NewHousekeeper(cfg.Housekeeping.Schedule, []scheduler.Job{
		{Name: "delivery_logs", Pruner: deliveryLogs, Retention: cfg.Housekeeping.DeliveryRetention},
		{Name: "local_outbox", Pruner: outbox, Retention: cfg.Housekeeping.OutboxRetention},
	}, log)
	if err != nil {
		return fmt.Errorf("init housekeeping: %w", err)
	}
	housekeeper.Start()

	srv := server.New(cfg, server.Deps{
		Device:   bridge,
		Gate:     gate,
		Sessions: registrar,
		Notifier: dispatcher,
		Outbox:   outbox,
		Logs:     deliveryLogs,
		Backend:  api,
		Auth:     authSvc,
	}, log)

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("bridge listening")
		serveErr <- srv.Start()
	}()

	// graceful shutdown
	var runErr error
	select {
	case <-waitForSignal():
		log.Info("shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server stopped: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	housekeeper.Stop(ctx)
	if err := registrar.Wait(ctx); err != nil {
		log.WithError(err).Warn("pending unregister calls abandoned")
	}
	return runErr
}

func waitForSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
