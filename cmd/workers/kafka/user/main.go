package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	kafkalib "github.com/s21platform/kafka-lib"
	logger_lib "github.com/s21platform/logger-lib"
	"github.com/s21platform/metrics-lib/pkg"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/databus/user"
	"github.com/zveno/chat-service/internal/repository/postgres"
)

func main() {
	cfg := config.MustLoad()
	logger := logger_lib.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(fmt.Sprintf("username sync worker stopped: %v", err))
		os.Exit(1)
	}
}

// run consumes profile updates until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger logger_lib.LoggerInterface) error {
	dbRepo := postgres.New(cfg)
	defer dbRepo.Close()

	metrics, err := pkg.NewMetrics(cfg.Metrics.Host, cfg.Metrics.Port, cfg.Service.Name, cfg.Platform.Env)
	if err != nil {
		return fmt.Errorf("failed to connect graphite: %w", err)
	}

	ctx = context.WithValue(ctx, config.KeyMetrics, metrics)
	ctx = context.WithValue(ctx, config.KeyLogger, logger)

	consumer, err := kafkalib.NewConsumer(kafkalib.DefaultConsumerConfig(
		cfg.Kafka.Host,
		cfg.Kafka.Port,
		cfg.Kafka.UserTopic,
		cfg.Kafka.UserGroup,
	), metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	consumer.RegisterHandler(ctx, user.New(dbRepo).Handler)
	logger.Info(fmt.Sprintf("consuming %s as %s", cfg.Kafka.UserTopic, cfg.Kafka.UserGroup))

	<-ctx.Done()
	logger.Info("shutdown signal received, username sync worker exiting")

	return nil
}
