package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/api"
	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/returns"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/reconcile"
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
		"backend": cfg.Store.Backend,
		"kafka":   cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Info("starting shop API")

	st, err := store.Open(ctx, cfg.Store.Backend, store.Options{
		FilePath:    cfg.Store.FilePath,
		PostgresDSN: cfg.Store.PostgresDSN,
		DynamoTable: cfg.Store.DynamoTable,
		AWSRegion:   cfg.Store.AWSRegion,
	})
	if err != nil {
		logrus.WithError(err).Fatal("open store")
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	// Domain services share one persistence adapter and cache everything
	// at startup.
	registry := category.NewRegistry(st)
	catalog := product.NewCatalog(st, registry)
	registry.BindProducts(catalog)
	orderSvc := order.NewService(st, catalog)
	returnSvc := returns.NewService(st, orderSvc)
	reviewSvc := review.NewService(st)
	userSvc := user.NewService(st)

	for _, load := range []func(context.Context) error{
		registry.Load, catalog.Load, orderSvc.Load, returnSvc.Load, reviewSvc.Load, userSvc.Load,
	} {
		if err := load(ctx); err != nil {
			logrus.WithError(err).Fatal("load data")
		}
	}

	engine := reconcile.NewEngine(catalog, orderSvc, returnSvc, producer)

	router := api.NewRouter(api.RouterConfig{
		Handlers:         api.NewHandlers(catalog, orderSvc, returnSvc, reviewSvc, engine),
		CategoryHandlers: api.NewCategoryHandlers(registry),
		UserHandlers:     api.NewUserHandlers(userSvc),
		WebDir:           os.Getenv("WEB_DIR"),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.Server.Addr).Info("server started")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logrus.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
