package http

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/mobile-wallet/internal/money"
	"github.com/richardliu001/mobile-wallet/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxCallbackBody = 64 << 10

type Handler struct {
	wallets *service.WalletService
	recon   *service.Reconciler
	log     *zap.SugaredLogger
}

func (h *Handler) openWallet(c *gin.Context) {
	w, err := h.wallets.OpenWallet(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusCreated, w)
}

func (h *Handler) getWallet(c *gin.Context) {
	w, err := h.wallets.GetWallet(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (h *Handler) getBalance(c *gin.Context) {
	bal, err := h.wallets.GetBalance(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"balance": bal.StringFixed(2)})
}

type transferReq struct {
	DestinationWalletID string `json:"destination_wallet_id" binding:"required,max=32"`
	Amount              string `json:"amount" binding:"required,money"`
	Note                string `json:"note" binding:"max=255"`
	IdempotencyKey      string `json:"idempotency_key" binding:"max=64"`
}

func (h *Handler) transfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.wallets.Transfer(c.Request.Context(), service.TransferRequest{
		SenderUserID:        userID(c),
		DestinationWalletID: req.DestinationWalletID,
		Amount:              parseAmount(req.Amount),
		Note:                req.Note,
		IdempotencyKey:      req.IdempotencyKey,
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"transaction": res.Transaction,
		"balance":     res.SenderBalance.StringFixed(2),
		"replayed":    res.Replayed,
	})
}

type addFundsReq struct {
	Amount         string `json:"amount" binding:"required,money"`
	Note           string `json:"note" binding:"max=255"`
	IdempotencyKey string `json:"idempotency_key" binding:"max=64"`
}

func (h *Handler) addFunds(c *gin.Context) {
	var req addFundsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.wallets.AddFunds(c.Request.Context(), userID(c), parseAmount(req.Amount), req.Note, req.IdempotencyKey)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"transaction": res.Transaction, "balance": res.Balance.StringFixed(2)})
}

type depositReq struct {
	Amount   string `json:"amount" binding:"required,money"`
	Currency string `json:"currency" binding:"omitempty,len=3"`
	Phone    string `json:"phone" binding:"required,max=16"`
}

func (h *Handler) initiateDeposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.recon.Initiate(c.Request.Context(), service.InitiateRequest{
		UserID:   userID(c),
		Amount:   parseAmount(req.Amount),
		Currency: req.Currency,
		Phone:    req.Phone,
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusAccepted, res)
}

// depositCallback always answers 200 with an accept body so the gateway stops
// redelivering; failures, including a missing or wrong token, are only logged.
func (h *Handler) depositCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		h.log.Warnw("read gateway callback", "err", err)
	} else if _, err := h.recon.HandleCallback(c.Request.Context(), c.Query(service.CallbackTokenParam), body); err != nil {
		h.log.Warnw("gateway callback not applied", "request_id", c.GetString(ctxRequestID), "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *Handler) depositStatus(c *gin.Context) {
	res, err := h.recon.CheckStatus(c.Request.Context(), userID(c), c.Param("transaction_id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) history(c *gin.Context) {
	limit, offset, good := pageParams(c)
	if !good {
		return
	}
	txs, err := h.wallets.History(c.Request.Context(), userID(c), c.Query("type"), limit, offset)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, txs)
}

func (h *Handler) getTransaction(c *gin.Context) {
	t, err := h.wallets.GetTransaction(c.Request.Context(), userID(c), c.Param("transaction_id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, t)
}

func (h *Handler) receipt(c *gin.Context) {
	rc, err := h.wallets.Receipt(c.Request.Context(), userID(c), c.Param("transaction_id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, rc)
}

func (h *Handler) statement(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(c, "invalid from, want RFC3339")
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(c, "invalid to, want RFC3339")
			return
		}
	}
	st, err := h.wallets.Statement(c.Request.Context(), userID(c), from, to)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, st)
}

type adjustReq struct {
	Direction string `json:"direction" binding:"required,oneof=add deduct"`
	Amount    string `json:"amount" binding:"required,money"`
	Note      string `json:"note" binding:"max=255"`
}

func (h *Handler) adminAdjust(c *gin.Context) {
	var req adjustReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.wallets.AdminAdjust(c.Request.Context(), service.AdjustRequest{
		WalletID:  c.Param("wallet_id"),
		Direction: req.Direction,
		Amount:    parseAmount(req.Amount),
		Note:      req.Note,
		AdminID:   userID(c),
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"transaction": res.Transaction, "balance": res.Balance.StringFixed(2)})
}

type statusReq struct {
	Status string `json:"status" binding:"required,oneof=active frozen"`
}

func (h *Handler) setWalletStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	w, err := h.wallets.SetWalletStatus(c.Request.Context(), c.Param("wallet_id"), req.Status)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (h *Handler) listTransactions(c *gin.Context) {
	limit, offset, good := pageParams(c)
	if !good {
		return
	}
	txs, err := h.wallets.ListTransactions(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, txs)
}

// pageParams reads limit and offset; it writes the 400 itself and reports false on bad input.
func pageParams(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, "invalid limit")
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		badRequest(c, "invalid offset")
		return 0, 0, false
	}
	return limit, offset, true
}

// parseAmount parses a value the money binding tag already accepted; a zero result
// is rejected by the service as an invalid amount.
func parseAmount(s string) decimal.Decimal {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
