package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bellafleur/benly/api"
	"github.com/bellafleur/benly/config"
	"github.com/bellafleur/benly/internal/authlink"
	"github.com/bellafleur/benly/internal/bootstrap"
	"github.com/bellafleur/benly/internal/kafka"
	"github.com/bellafleur/benly/internal/service/session"
	"github.com/bellafleur/benly/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if !cfg.App.Production() {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}
	defer sessionStore.Close()

	var producer session.Producer
	if cfg.Kafka.Enabled() {
		kp := kafka.NewProducer(cfg.Kafka.Brokers)
		defer kp.Close()
		producer = kp
	}

	issuer := authlink.NewTemplateIssuer(time.Duration(cfg.App.LinkTTLSec) * time.Second)
	svc := session.NewService(sessionStore, issuer, producer, logger, session.Config{
		SessionTTL:    time.Duration(cfg.App.SessionTTLSec) * time.Second,
		TickInterval:  time.Duration(cfg.Simulator.TickMs) * time.Millisecond,
		SweepInterval: time.Duration(cfg.Sweeper.IntervalSec) * time.Second,
		IdemWindow:    time.Duration(cfg.App.IdemWindowSec) * time.Second,
		LiffID:        cfg.App.LiffID,
		EventsTopic:   cfg.Kafka.EventsTopic,
	})
	defer svc.Close()
	go svc.Run(ctx)

	handler := api.NewSessionHandler(svc, logger)
	if err := bootstrap.Run(ctx, cfg, handler, logger); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (store.SessionStore, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return store.NewRedisStore(cfg.Storage.Redis), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.Database.DSN())
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return store.NewMemoryStore(), nil
	}
}
