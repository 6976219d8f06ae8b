package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trtlbridge/SOLRPC"
	"trtlbridge/amqp"
	"trtlbridge/blockfrost"
	"trtlbridge/config"
	"trtlbridge/mongo"
	"trtlbridge/oracle"
	"trtlbridge/redis"
	"trtlbridge/retry"
	"trtlbridge/workers"
	"trtlbridge/workers/handlers"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the yaml configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}
	if err = cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("error creating logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting TRTL Cardano to Solana bridge")

	if err = run(cfg, logger); err != nil {
		logger.Fatal("bridge stopped with error", zap.Error(err))
	}
	logger.Info("bridge stopped")
}

func run(cfg *config.Configuration, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// connect to Redis, without the wallet registry and the payout lease do not continue
	store := redis.New(cfg.Redis.Host, cfg.Redis.Port, logger)
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return err
	}

	records, err := mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
	if err != nil {
		return err
	}
	defer records.Close(context.Background())

	// legacy documents have no sourceTxHash, migrate them before the unique index is built
	migrated, err := records.Migrate(ctx)
	if err != nil {
		return err
	}
	if migrated > 0 {
		logger.Info("migrated legacy bridge records", zap.Int64("count", migrated))
	}
	if err = records.EnsureIndexes(ctx); err != nil {
		return err
	}

	indexer := blockfrost.NewClient(blockfrost.Config{
		BaseURL:   cfg.Blockfrost.BaseURL,
		ProjectID: cfg.Blockfrost.ProjectID,
		Timeout:   cfg.Blockfrost.Timeout,
		RPS:       cfg.Blockfrost.RPS,
	}, logger)

	chain, err := SOLRPC.New(SOLRPC.Config{
		RPCList:            cfg.Solana.RPCList,
		SecretKey:          cfg.Solana.SecretKey,
		Mint:               cfg.Bridge.SolanaMint,
		Decimals:           cfg.Bridge.SolanaDecimals,
		ConfirmInterval:    cfg.Payout.ConfirmInterval,
		ConfirmMaxAttempts: cfg.Payout.ConfirmMaxAttempts,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("payout wallet loaded", zap.String("address", chain.PublicKey().String()))

	var events amqp.Publisher = amqp.Noop{}
	if cfg.AMQP.URL != "" {
		broker, err := amqp.New(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return err
		}
		events = broker
	}
	defer events.Close()

	intake := workers.NewIntake(indexer, store, records, events, cfg.Bridge, retry.Policy{
		MaxAttempts:    cfg.Blockfrost.Attempts,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
	}, logger)

	dispatcher := workers.NewDispatcher(chain, store, records, events, cfg.Payout, logger)

	scheduler := workers.NewScheduler(dispatcher, cfg.Payout.Schedule, logger)
	if err = scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	h := handlers.New(handlers.Deps{
		Bridge: intake,
		RunPayouts: func(ctx context.Context) error {
			_, err := dispatcher.RunPass(ctx)
			if errors.Is(err, workers.ErrPassInProgress) {
				return nil
			}
			return err
		},
		Records: records,
		Wallets: store,
		Indexer: indexer,
		Balance: chain,
		Prices:  oracle.New(cfg.Oracle, store, logger),
		Checks: map[string]func(ctx context.Context) error{
			"redis": store.Ping,
			"mongo": records.Ping,
		},
	}, logger)

	// serves as main worker thread until a signal arrives
	return workers.Worker_HTTP(ctx, *cfg, workers.NewRouter(h), logger)
}
