package http

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/money"
	"github.com/richardliu001/mobile-wallet/internal/service"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"
	"go.uber.org/zap"
)

// The prometheus recorder registers its collectors globally, so it is built once per process.
var httpMetrics = sync.OnceValue(func() middleware.Middleware {
	return middleware.New(middleware.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{}),
	})
})

var registerValidators = sync.OnceValue(func() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return v.RegisterValidation("money", validMoney)
})

// NewRouter wires middleware and routes. recon may be nil when no payment gateway is
// configured; the deposit routes are left out then. The rate limiter covers user and
// admin routes only.
func NewRouter(wallets *service.WalletService, recon *service.Reconciler, rl config.RateLimitConfig, log *zap.SugaredLogger) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterHandlers(r, &Handler{wallets: wallets, recon: recon, log: log}, RateLimitMiddleware(rl.RPS, rl.Burst))
	return r, nil
}

// validMoney accepts amount strings like "50", "50.5" or "50,75".
func validMoney(fl validator.FieldLevel) bool {
	_, err := money.Parse(fl.Field().String())
	return err == nil
}

// RegisterHandlers mounts the v1 API. limit guards the user and admin groups; the
// gateway callback is mounted outside it.
func RegisterHandlers(r *gin.Engine, h *Handler, limit gin.HandlerFunc) {
	mw := httpMetrics()
	v1 := r.Group("/v1")

	if h.recon != nil {
		// called by the gateway, not by users
		v1.POST("/deposits/mpesa/callback", ginmiddleware.Handler("/v1/deposits/mpesa/callback", mw), h.depositCallback)
	}

	user := v1.Group("", limit, IdentityMiddleware())
	{
		user.POST("/wallets", ginmiddleware.Handler("/v1/wallets", mw), h.openWallet)
		user.GET("/wallet", ginmiddleware.Handler("/v1/wallet", mw), h.getWallet)
		user.GET("/wallet/balance", ginmiddleware.Handler("/v1/wallet/balance", mw), h.getBalance)
		user.POST("/transfers", ginmiddleware.Handler("/v1/transfers", mw), h.transfer)
		user.POST("/add-funds", ginmiddleware.Handler("/v1/add-funds", mw), h.addFunds)
		user.GET("/transactions", ginmiddleware.Handler("/v1/transactions", mw), h.history)
		user.GET("/transactions/:transaction_id", ginmiddleware.Handler("/v1/transactions/:transaction_id", mw), h.getTransaction)
		user.GET("/receipts/:transaction_id", ginmiddleware.Handler("/v1/receipts/:transaction_id", mw), h.receipt)
		user.GET("/statement", ginmiddleware.Handler("/v1/statement", mw), h.statement)
		if h.recon != nil {
			user.POST("/deposits", ginmiddleware.Handler("/v1/deposits", mw), h.initiateDeposit)
			user.GET("/deposits/:transaction_id/status", ginmiddleware.Handler("/v1/deposits/:transaction_id/status", mw), h.depositStatus)
		}
	}

	admin := v1.Group("/admin", limit, IdentityMiddleware(), AdminOnly())
	{
		admin.POST("/wallets/:wallet_id/adjust", ginmiddleware.Handler("/v1/admin/wallets/:wallet_id/adjust", mw), h.adminAdjust)
		admin.PUT("/wallets/:wallet_id/status", ginmiddleware.Handler("/v1/admin/wallets/:wallet_id/status", mw), h.setWalletStatus)
		admin.GET("/transactions", ginmiddleware.Handler("/v1/admin/transactions", mw), h.listTransactions)
	}
}
