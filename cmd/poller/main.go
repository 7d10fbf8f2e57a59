package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/gateway/mpesa"
	"github.com/richardliu001/mobile-wallet/internal/lock"
	"github.com/richardliu001/mobile-wallet/internal/logger"
	"github.com/richardliu001/mobile-wallet/internal/notify"
	"github.com/richardliu001/mobile-wallet/internal/repo"
	"github.com/richardliu001/mobile-wallet/internal/service"
	"github.com/richardliu001/mobile-wallet/internal/worker"
	"github.com/richardliu001/mobile-wallet/pkg/idgen"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// The poller runs the background halves of the system: the outbox relay to Kafka and
// the status check for deposits whose gateway callback never arrived.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, "wallet-poller")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kw.Close()

	repository := repo.NewRepository(gdb, rdb, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Mpesa.Enabled {
		// worker id 0 is reserved for the poller so its ids never collide with the servers'
		ids, err := idgen.NewSnowflake(0)
		if err != nil {
			log.Fatalf("id generator: %v", err)
		}
		wallets := service.NewWalletService(repository, ids, cfg.Ledger, log)
		recon := service.NewReconciler(wallets, mpesa.NewClient(cfg.Mpesa, log),
			lock.NewRedisLocker(rdb, cfg.Reconcile.LockTTL), cfg.Mpesa.CallbackURL, cfg.Mpesa.CallbackToken)
		checker := worker.NewPendingChecker(repository, recon,
			cfg.Reconcile.CheckInterval, cfg.Reconcile.StaleAfter, cfg.Reconcile.BatchSize, log)
		go checker.Start(ctx)
	}

	log.Info("wallet-poller started")
	notify.NewRelay(repository, kw, cfg.Outbox.Interval, cfg.Outbox.BatchSize, log).Run(ctx)
	log.Info("wallet-poller stopped")
}
