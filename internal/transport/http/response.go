package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/richardliu001/mobile-wallet/internal/lock"
	"github.com/richardliu001/mobile-wallet/internal/service"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Error: msg})
}

// fail maps a service error to its status code. Unclassified errors are logged and
// reported as a bare 500.
func fail(c *gin.Context, log *zap.SugaredLogger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "path", c.FullPath(), "request_id", c.GetString(ctxRequestID), "err", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, envelope{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrWalletNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrWalletInactive),
		errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrDuplicateCorrelationID),
		errors.Is(err, service.ErrAlreadyTerminal),
		errors.Is(err, service.ErrNotFinalized):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrUnavailable),
		errors.Is(err, lock.ErrNotAcquired):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
