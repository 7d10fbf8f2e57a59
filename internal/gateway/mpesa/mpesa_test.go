package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDaraja struct {
	tokenCalls int32
	push       func(w http.ResponseWriter, body stkPushRequest)
	query      func(w http.ResponseWriter, body stkQueryRequest)
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		atomic.AddInt32(&f.tokenCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "expires_in": "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body stkPushRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.push(w, body)
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		var body stkQueryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.query(w, body)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDaraja) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(config.MpesaConfig{
		BaseURL: srv.URL, ConsumerKey: "key", ConsumerSecret: "secret",
		ShortCode: "174379", Passkey: "pk", CallbackURL: "https://cb.example/mpesa",
		Timeout: 2 * time.Second, TokenSkew: time.Minute,
	}, zap.NewNop().Sugar())
	c.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }
	return c
}

func TestOpenPayment_Success(t *testing.T) {
	f := &fakeDaraja{push: func(w http.ResponseWriter, body stkPushRequest) {
		assert.Equal(t, "20261016093000", body.Timestamp)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("174379pk20261016093000")), body.Password)
		assert.Equal(t, int64(25), body.Amount)
		assert.Equal(t, "254708374149", body.PhoneNumber)
		assert.Equal(t, "254708374149", body.PartyA)
		assert.Equal(t, "174379", body.PartyB)
		assert.Equal(t, "DEP123", body.AccountReference)
		assert.Equal(t, "https://cb.example/mpesa", body.CallBackURL)
		_ = json.NewEncoder(w).Encode(stkPushResponse{
			MerchantRequestID: "mr-1", CheckoutRequestID: "ws_CO_1", ResponseCode: "0",
			CustomerMessage: "Success. Request accepted for processing",
		})
	}}
	c := newTestClient(t, f)

	sess, err := c.OpenPayment(context.Background(), gateway.PaymentRequest{
		Amount: decimal.NewFromInt(25), Customer: "0708374149", MerchantReference: "DEP123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", sess.CorrelationID)
	assert.Equal(t, "mr-1", sess.MerchantRequestID)

	// token is cached across calls
	_, err = c.OpenPayment(context.Background(), gateway.PaymentRequest{
		Amount: decimal.NewFromInt(25), Customer: "0708374149", MerchantReference: "DEP124",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
}

func TestOpenPayment_RejectedAndUnavailable(t *testing.T) {
	code := "1"
	status := http.StatusOK
	f := &fakeDaraja{push: func(w http.ResponseWriter, body stkPushRequest) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(stkPushResponse{ResponseCode: code, ResponseDescription: "rejected"})
	}}
	c := newTestClient(t, f)
	req := gateway.PaymentRequest{Amount: decimal.NewFromInt(25), Customer: "254708374149", MerchantReference: "DEP1"}

	_, err := c.OpenPayment(context.Background(), req)
	assert.ErrorIs(t, err, gateway.ErrRejected)

	status = http.StatusServiceUnavailable
	_, err = c.OpenPayment(context.Background(), req)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	_, err = c.OpenPayment(context.Background(), gateway.PaymentRequest{Amount: decimal.RequireFromString("25.50"), Customer: "254708374149"})
	assert.ErrorIs(t, err, gateway.ErrRejected)

	_, err = c.OpenPayment(context.Background(), gateway.PaymentRequest{Amount: decimal.NewFromInt(5), Customer: "12"})
	assert.ErrorIs(t, err, gateway.ErrRejected)
}

func TestOpenPayment_Timeout(t *testing.T) {
	f := &fakeDaraja{push: func(w http.ResponseWriter, body stkPushRequest) {
		time.Sleep(200 * time.Millisecond)
	}}
	c := newTestClient(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.OpenPayment(ctx, gateway.PaymentRequest{Amount: decimal.NewFromInt(1), Customer: "254708374149"})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestQueryStatus(t *testing.T) {
	var reply func(w http.ResponseWriter)
	f := &fakeDaraja{query: func(w http.ResponseWriter, body stkQueryRequest) {
		assert.Equal(t, "ws_CO_1", body.CheckoutRequestID)
		reply(w)
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	reply = func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`))
	}
	out, err := c.QueryStatus(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.IsType(t, gateway.Success{}, out)

	reply = func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"ResponseCode":"0","ResultCode":1032,"ResultDesc":"Request cancelled by user"}`))
	}
	out, err = c.QueryStatus(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.IsType(t, gateway.Failure{}, out)

	reply = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"requestId":"x","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
	}
	out, err = c.QueryStatus(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.IsType(t, gateway.Processing{}, out)

	reply = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	}
	_, err = c.QueryStatus(ctx, "ws_CO_1")
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestParseCallback(t *testing.T) {
	success := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"mr-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,
		"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[
		{"Name":"Amount","Value":25.00},{"Name":"MpesaReceiptNumber","Value":"QKX1"},
		{"Name":"TransactionDate","Value":20261016093512},{"Name":"PhoneNumber","Value":254708374149}]}}}}`)
	n, err := ParseCallback(success)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", n.CorrelationID)
	assert.Equal(t, "mr-1", n.MerchantRequestID)
	s, ok := n.Outcome.(gateway.Success)
	require.True(t, ok)
	assert.Equal(t, "25.00", s.Amount.StringFixed(2))
	assert.Equal(t, "QKX1", s.Receipt)
	assert.Equal(t, "254708374149", s.Payer)

	cancelled := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"mr-2","CheckoutRequestID":"ws_CO_2","ResultCode":"1032","ResultDesc":"Request cancelled by user"}}}`)
	n, err = ParseCallback(cancelled)
	require.NoError(t, err)
	assert.IsType(t, gateway.Failure{}, n.Outcome)

	_, err = ParseCallback([]byte(`not json`))
	assert.ErrorIs(t, err, gateway.ErrInvalidCallback)
	_, err = ParseCallback([]byte(`{"Body":{"stkCallback":{}}}`))
	assert.ErrorIs(t, err, gateway.ErrInvalidCallback)
}

func TestNormalizeMSISDN(t *testing.T) {
	for in, want := range map[string]string{
		"0708374149":     "254708374149",
		"708374149":      "254708374149",
		"+254708374149":  "254708374149",
		"254 708 374149": "254708374149",
		"0110000000":     "254110000000",
	} {
		got, err := NormalizeMSISDN(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "12345", "07083741ab", "4470837414"} {
		_, err := NormalizeMSISDN(bad)
		assert.Error(t, err, bad)
	}
}
