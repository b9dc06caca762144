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

	"donation-service/internal/api"
	"donation-service/internal/auth"
	"donation-service/internal/config"
	"donation-service/internal/db"
	"donation-service/internal/gateway"
	"donation-service/internal/kafka"
	"donation-service/internal/logging"
	"donation-service/internal/metrics"
	"donation-service/internal/receipt"
	"donation-service/internal/reconcile"
	"donation-service/internal/webhook"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg := config.MustLoadConfig(configPath)

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connStr := cfg.Database.ConnString()
	if err := db.RunMigrations(connStr); err != nil {
		log.Fatal(err)
	}

	dbpool, err := db.GetPool(ctx, connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	donationRepo := db.NewDonationRepository(dbpool)
	eventRepo := db.NewEventRepository(dbpool)

	locator := reconcile.NewLocator(donationRepo, logger)
	reconciler := reconcile.NewReconciler(donationRepo, logger)

	eventWriter := kafka.NewWriter(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.DonationEvents, cfg.Kafka.Writer)
	defer eventWriter.Close()

	receipt.NewProducer(eventRepo, eventWriter, cfg.Receipt.Producer, logger).Start(ctx)

	processor := receipt.NewProcessor(eventRepo, receipt.NewSender(cfg.Receipt.Sender, logger), cfg.Receipt, logger)

	eventReader := kafka.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.DonationEvents, cfg.Kafka.Reader.GroupID)
	defer eventReader.Close()

	kafka.ReadDonationEvents(ctx, eventReader, processor, logger)

	router := api.NewRouter(api.Dependencies{
		Store:      donationRepo,
		Gateway:    gateway.NewClient(cfg.Gateway, logger),
		Reconciler: reconciler,
		Tokens:     auth.NewTokens(cfg.Auth),
		Pinger:     donationRepo,
		Webhook:    webhook.NewHandler(locator, reconciler, cfg.Gateway, logger),
		Logger:     logger,
	}, *cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}
	processor.Wait()
}
