package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/worker"
	"github.com/prohmpiriya/venue-approval/pkg/config"
	"github.com/prohmpiriya/venue-approval/pkg/kafka"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "notification-consumer",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Notification Consumer...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup,
		Topics:         []string{cfg.Kafka.NotificationTopic},
		ClientID:       "notification-consumer",
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		SessionTimeout: 30 * time.Second,
		MaxPollRecords: 500,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Kafka consumer: %v", err))
	}
	defer consumer.Close()
	appLog.Info(fmt.Sprintf("Kafka consumer joined group %s on %s", cfg.Kafka.ConsumerGroup, cfg.Kafka.NotificationTopic))

	notificationConsumer := worker.NewNotificationConsumer(nil, consumer, worker.NewLogNotifier(appLog), appLog)

	done := make(chan struct{})
	go func() {
		defer close(done)
		notificationConsumer.Start(ctx)
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down notification consumer...")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		appLog.Warn("Notification consumer did not stop in time")
	}
	appLog.Info("Notification consumer stopped")
}
