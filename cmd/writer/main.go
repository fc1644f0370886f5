package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/config"
	"github.com/chenzhangda16/grantguard/internal/guard/logging"
	"github.com/chenzhangda16/grantguard/internal/guard/writer"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "yaml config file")
		brokers = flag.String("brokers", "", "kafka brokers, comma separated (overrides config)")
		topic   = flag.String("topic", "", "event topic (overrides config)")
		group   = flag.String("group", "", "consumer group (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = config.SplitCSV(*brokers)
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}
	if *group != "" {
		cfg.Kafka.Group = *group
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"127.0.0.1:9092"}
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("writer")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pg, err := writer.NewPGWriter(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		logger.Fatal("pg init failed", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()

	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensure schema failed", zap.Error(err))
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest

	cg, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.Group, sc)
	if err != nil {
		logger.Fatal("consumer group init failed", zap.Error(err))
	}
	defer func() { _ = cg.Close() }()

	h := &writer.Handler{Store: pg, Logger: logger}

	logger.Info("start",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.Group),
		zap.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")))

	// sarama requires Consume to be re-run after every rebalance
	for ctx.Err() == nil {
		if err := cg.Consume(ctx, []string{cfg.Kafka.Topic}, h); err != nil {
			logger.Warn("consume err", zap.Error(err))
			time.Sleep(300 * time.Millisecond)
		}
	}
	logger.Info("exit", zap.Error(ctx.Err()))
}
