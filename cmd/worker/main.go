package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bellafleur/benly/config"
	"github.com/bellafleur/benly/internal/kafka"
	"github.com/bellafleur/benly/internal/notify"
	"github.com/joho/godotenv"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// The worker consumes session lifecycle events and hands them to the
// notifier. Eviction is not done here: it has to run inside the API process
// where the progress timers live.
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
	if !cfg.Kafka.Enabled() {
		log.Fatal("worker requires kafka brokers to be configured")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.EventsTopic)
	defer consumer.Close()

	notifier := notify.NewNotifier(logger)

	logger.WithField("topic", cfg.Kafka.EventsTopic).Info("worker started")
	err = consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
		var event kafka.SessionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.WithError(err).Warn("decode event failed")
			return nil
		}
		return notifier.Notify(ctx, event)
	})
	if err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("consumer stopped")
	}
}
