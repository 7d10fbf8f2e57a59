package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/gateway/mpesa"
	"github.com/richardliu001/mobile-wallet/internal/lock"
	"github.com/richardliu001/mobile-wallet/internal/logger"
	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/richardliu001/mobile-wallet/internal/repo"
	"github.com/richardliu001/mobile-wallet/internal/service"
	httptransport "github.com/richardliu001/mobile-wallet/internal/transport/http"
	"github.com/richardliu001/mobile-wallet/pkg/idgen"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	// 1. load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level, "wallet-server")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. repo & services
	ids, err := idgen.NewSnowflake(cfg.Server.WorkerID)
	if err != nil {
		log.Fatalf("id generator: %v", err)
	}
	repository := repo.NewRepository(gdb, rdb, log)
	wallets := service.NewWalletService(repository, ids, cfg.Ledger, log)

	var recon *service.Reconciler
	if cfg.Mpesa.Enabled {
		gw := mpesa.NewClient(cfg.Mpesa, log)
		recon = service.NewReconciler(wallets, gw, lock.NewRedisLocker(rdb, cfg.Reconcile.LockTTL),
			cfg.Mpesa.CallbackURL, cfg.Mpesa.CallbackToken)
	} else {
		log.Warn("mpesa disabled, deposit routes not mounted")
	}

	// 6. gin router
	router, err := httptransport.NewRouter(wallets, recon, cfg.RateLimit, log)
	if err != nil {
		log.Fatalw("router init failed", "err", err)
	}

	// 7. serve until signalled
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Infof("wallet-server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	_ = rdb.Close()
}
