package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/richardliu001/mobile-wallet/internal/gateway/mpesa"
	"github.com/richardliu001/mobile-wallet/internal/lock"
	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/richardliu001/mobile-wallet/internal/repo"
	"github.com/richardliu001/mobile-wallet/internal/service"
	"github.com/richardliu001/mobile-wallet/pkg/idgen"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubGateway struct {
	next    int
	outcome gateway.Outcome
}

func (g *stubGateway) Name() string { return "mpesa" }

func (g *stubGateway) OpenPayment(_ context.Context, _ gateway.PaymentRequest) (*gateway.PaymentSession, error) {
	g.next++
	return &gateway.PaymentSession{CorrelationID: fmt.Sprintf("ws_CO_%d", g.next), MerchantRequestID: "mr"}, nil
}

func (g *stubGateway) QueryStatus(_ context.Context, _ string) (gateway.Outcome, error) {
	if g.outcome == nil {
		return nil, gateway.ErrUnavailable
	}
	return g.outcome, nil
}

func (g *stubGateway) ParseCallback(body []byte) (*gateway.Notification, error) {
	return mpesa.ParseCallback(body)
}

type testAPI struct {
	router *gin.Engine
	gw     *stubGateway
	db     *gorm.DB
}

const testCallbackToken = "cb-token-0123456789"

func newTestAPI(t *testing.T) *testAPI {
	return newTestAPIWithLimit(t, config.RateLimitConfig{RPS: 1000, Burst: 1000})
}

func newTestAPIWithLimit(t *testing.T, rl config.RateLimitConfig) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	log := zap.NewNop().Sugar()
	ids, err := idgen.NewSnowflake(2)
	require.NoError(t, err)
	wallets := service.NewWalletService(repo.NewRepository(db, nil, log), ids, config.LedgerConfig{
		FeeRate:   decimal.RequireFromString("0.015"),
		Currency:  "KES",
		MaxAmount: decimal.NewFromInt(10000),
	}, log)
	gw := &stubGateway{}
	recon := service.NewReconciler(wallets, gw, lock.NewLocalLocker(), "https://cb.example/mpesa", testCallbackToken)
	router, err := NewRouter(wallets, recon, rl, log)
	require.NoError(t, err)
	return &testAPI{router: router, gw: gw, db: db}
}

type reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (a *testAPI) do(t *testing.T, method, path string, user uint64, admin bool, body interface{}) (int, reply) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set(headerUserID, fmt.Sprint(user))
	}
	if admin {
		req.Header.Set(headerUserRole, roleAdmin)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var r reply
	_ = json.Unmarshal(w.Body.Bytes(), &r)
	return w.Code, r
}

// callback posts a gateway callback with the given token query and returns the status.
func (a *testAPI) callback(t *testing.T, token, body string) int {
	t.Helper()
	path := "/v1/deposits/mpesa/callback"
	if token != "" {
		path += "?token=" + token
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())
	return w.Code
}

func (a *testAPI) openWallet(t *testing.T, user uint64) string {
	t.Helper()
	code, r := a.do(t, http.MethodPost, "/v1/wallets", user, false, nil)
	require.Equal(t, http.StatusCreated, code)
	var w model.Wallet
	require.NoError(t, json.Unmarshal(r.Data, &w))
	return w.WalletID
}

func TestTransferOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.openWallet(t, 1)
	dest := api.openWallet(t, 2)

	code, _ := api.do(t, http.MethodPost, "/v1/add-funds", 1, false, gin.H{"amount": "100", "idempotency_key": "seed"})
	require.Equal(t, http.StatusOK, code)

	code, r := api.do(t, http.MethodPost, "/v1/transfers", 1, false, gin.H{"destination_wallet_id": dest, "amount": "50.00", "note": "rent"})
	require.Equal(t, http.StatusOK, code, r.Error)
	var out struct {
		Transaction model.Transaction `json:"transaction"`
		Balance     string            `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &out))
	assert.Equal(t, "49.25", out.Balance)
	assert.Equal(t, "0.75", out.Transaction.Fee.StringFixed(2))

	code, r = api.do(t, http.MethodGet, "/v1/wallet/balance", 2, false, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"balance":"50.00"}`, string(r.Data))

	code, r = api.do(t, http.MethodPost, "/v1/transfers", 1, false, gin.H{"destination_wallet_id": dest, "amount": "500"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, r.Success)

	code, _ = api.do(t, http.MethodPost, "/v1/transfers", 1, false, gin.H{"destination_wallet_id": dest, "amount": "12.345"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = api.do(t, http.MethodPost, "/v1/transfers", 1, false, gin.H{"destination_wallet_id": dest, "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = api.do(t, http.MethodPost, "/v1/transfers", 1, false, gin.H{"destination_wallet_id": "WNOPE", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, code)

	code, r = api.do(t, http.MethodGet, "/v1/transactions?type=sent", 1, false, nil)
	require.Equal(t, http.StatusOK, code)
	var txs []model.Transaction
	require.NoError(t, json.Unmarshal(r.Data, &txs))
	require.Len(t, txs, 1)

	code, _ = api.do(t, http.MethodGet, "/v1/transactions/"+txs[0].TransactionID, 3, false, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = api.do(t, http.MethodGet, "/v1/receipts/"+txs[0].TransactionID, 2, false, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(t, http.MethodGet, "/v1/statement?from=2020-01-01T00:00:00Z", 1, false, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(t, http.MethodGet, "/v1/statement?from=yesterday", 1, false, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIdentityAndAdminGuards(t *testing.T) {
	api := newTestAPI(t)
	wid := api.openWallet(t, 1)

	code, _ := api.do(t, http.MethodGet, "/v1/wallet", 0, false, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	adjust := gin.H{"direction": "add", "amount": "20", "note": "promo"}
	code, _ = api.do(t, http.MethodPost, "/v1/admin/wallets/"+wid+"/adjust", 1, false, adjust)
	assert.Equal(t, http.StatusForbidden, code)

	code, r := api.do(t, http.MethodPost, "/v1/admin/wallets/"+wid+"/adjust", 99, true, adjust)
	require.Equal(t, http.StatusOK, code, r.Error)

	code, _ = api.do(t, http.MethodPost, "/v1/admin/wallets/"+wid+"/adjust", 99, true, gin.H{"direction": "steal", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPut, "/v1/admin/wallets/"+wid+"/status", 99, true, gin.H{"status": "frozen"})
	assert.Equal(t, http.StatusOK, code)
	code, r = api.do(t, http.MethodGet, "/v1/wallet", 1, false, nil)
	require.Equal(t, http.StatusOK, code)
	var w model.Wallet
	require.NoError(t, json.Unmarshal(r.Data, &w))
	assert.Equal(t, model.WalletFrozen, w.Status)
	assert.Equal(t, "20.00", w.Balance.StringFixed(2))

	code, _ = api.do(t, http.MethodGet, "/v1/admin/transactions?status=completed", 99, true, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(t, http.MethodGet, "/v1/admin/transactions?limit=abc", 99, true, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDepositFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.openWallet(t, 1)

	code, r := api.do(t, http.MethodPost, "/v1/deposits", 1, false, gin.H{"amount": "25", "phone": "0708374149"})
	require.Equal(t, http.StatusAccepted, code, r.Error)
	var init service.InitiateResult
	require.NoError(t, json.Unmarshal(r.Data, &init))
	assert.Equal(t, model.StatusPending, init.Status)

	// gateway unreachable: still pending, live status unknown
	code, r = api.do(t, http.MethodGet, "/v1/deposits/"+init.TransactionID+"/status", 1, false, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(r.Data), `"live":"unknown"`)

	cb := fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"mr","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":25},{"Name":"MpesaReceiptNumber","Value":"QKX9"},{"Name":"PhoneNumber","Value":254708374149}]}}}}`, init.CorrelationID)
	// forged or tokenless callbacks are acknowledged and dropped
	assert.Equal(t, http.StatusOK, api.callback(t, "", cb))
	assert.Equal(t, http.StatusOK, api.callback(t, "forged", cb))
	code, r = api.do(t, http.MethodGet, "/v1/wallet/balance", 1, false, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"balance":"0.00"}`, string(r.Data))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, api.callback(t, testCallbackToken, cb))
	}

	// garbage is acknowledged too
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits/mpesa/callback?token="+testCallbackToken, bytes.NewBufferString("nope"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	code, r = api.do(t, http.MethodGet, "/v1/wallet/balance", 1, false, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"balance":"25.00"}`, string(r.Data))

	code, r = api.do(t, http.MethodGet, "/v1/deposits/"+init.TransactionID+"/status", 1, false, nil)
	require.Equal(t, http.StatusOK, code)
	var st service.StatusResult
	require.NoError(t, json.Unmarshal(r.Data, &st))
	assert.Equal(t, model.StatusCompleted, st.Transaction.Status)
}

func TestCallbackOutsideRateLimit(t *testing.T) {
	api := newTestAPIWithLimit(t, config.RateLimitConfig{RPS: 1, Burst: 1})

	code, _ := api.do(t, http.MethodGet, "/v1/wallet/balance", 1, false, nil)
	assert.NotEqual(t, http.StatusTooManyRequests, code)
	code, _ = api.do(t, http.MethodGet, "/v1/wallet/balance", 1, false, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	code, _ = api.do(t, http.MethodGet, "/v1/admin/transactions", 99, true, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)

	cb := `{"Body":{"stkCallback":{"MerchantRequestID":"mr","CheckoutRequestID":"ws_CO_none","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, api.callback(t, testCallbackToken, cb))
	}
}

func TestRegisterValidators(t *testing.T) {
	require.NoError(t, registerValidators())
	require.NoError(t, registerValidators())
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrSelfTransfer, http.StatusBadRequest},
		{service.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{service.ErrWalletNotFound, http.StatusNotFound},
		{service.ErrTransactionNotFound, http.StatusNotFound},
		{service.ErrWalletInactive, http.StatusForbidden},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrDuplicateCorrelationID, http.StatusConflict},
		{fmt.Errorf("open payment: %w", gateway.ErrUnavailable), http.StatusServiceUnavailable},
		{lock.ErrNotAcquired, http.StatusServiceUnavailable},
		{gateway.ErrRejected, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
