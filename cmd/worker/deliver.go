package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/db"
	"github.com/hookline/hookline/internal/dispatcher"
	"github.com/hookline/hookline/internal/kafka"
	"github.com/hookline/hookline/internal/logger"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/retryq"
	"github.com/hookline/hookline/internal/service/enqueue"
	"github.com/hookline/hookline/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var delivererCmd = &cobra.Command{
	Use:   "deliverer",
	Short: "Run the webhook delivery worker",
	RunE:  runDeliverer,
}

func runDeliverer(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) Redis (retry queue)
	rds, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = rds.Close() }()

	// 4) repositories
	deliveriesRepo := repository.NewDeliveriesRepository(dbx)
	destinationsRepo := repository.NewDestinationsRepository(dbx)
	attemptsRepo := repository.NewAttemptsRepository(dbx)

	// 5) dispatcher + retry queue
	disp := dispatcher.NewDispatcher(deliveriesRepo, destinationsRepo, attemptsRepo, cfg.Delivery.AttemptTimeout)
	if cfg.Delivery.MaxResponseChars > 0 {
		disp.MaxBodyChars = cfg.Delivery.MaxResponseChars
	}
	retries := retryq.New(rds, cfg.Redis.RetryKey)

	// 6) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "hookline-deliverer"
	}
	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          enqueue.DeliveriesKafkaTopic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewDeliverer(consumer, retries, disp)

	// tune knobs
	if cfg.Delivery.WorkerCount > 0 {
		w.Workers = cfg.Delivery.WorkerCount
	}
	if cfg.Delivery.RetryPollEvery > 0 {
		w.PollEvery = cfg.Delivery.RetryPollEvery
	}
	if cfg.Delivery.RetryPollBatch > 0 {
		w.PollBatch = cfg.Delivery.RetryPollBatch
	}

	// 7) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> deliverer started topic=%s group=%s workers=%d pollEvery=%s",
		enqueue.DeliveriesKafkaTopic, groupID, w.Workers, w.PollEvery)

	return w.Run(ctx)
}
