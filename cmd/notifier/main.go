package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/notification"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"kafka": cfg.Kafka.Brokers,
		"topic": cfg.Kafka.Topic,
		"group": cfg.Kafka.GroupID,
		"smtp":  cfg.Email.SMTPHost + ":" + cfg.Email.SMTPPort,
	}).Info("starting notifier")

	st, err := store.Open(ctx, cfg.Store.Backend, store.Options{
		FilePath:    cfg.Store.FilePath,
		PostgresDSN: cfg.Store.PostgresDSN,
		DynamoTable: cfg.Store.DynamoTable,
		AWSRegion:   cfg.Store.AWSRegion,
	})
	if err != nil {
		logrus.WithError(err).Fatal("open store")
	}

	// User emails and product names come straight from the shared store.
	registry := category.NewRegistry(st)
	catalog := product.NewCatalog(st, registry)
	registry.BindProducts(catalog)
	userSvc := user.NewService(st)

	for _, load := range []func(context.Context) error{registry.Load, catalog.Load, userSvc.Load} {
		if err := load(ctx); err != nil {
			logrus.WithError(err).Fatal("load data")
		}
	}

	emailSvc := email.NewService(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.From)
	handler := notification.NewHandler(emailSvc, userSvc, catalog, cfg.Stock.LowThreshold)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer consumer.Close()

	go func() {
		logrus.Info("consuming events")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("consumer stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logrus.Info("shutting down")
	cancel()
}
