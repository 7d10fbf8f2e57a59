// Package mpesa is the Safaricom Daraja adapter: STK push to collect deposits, STK query
// for status checks and parsing of STK callbacks.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	sandboxURL    = "https://sandbox.safaricom.co.ke"
	productionURL = "https://api.safaricom.co.ke"

	timestampLayout = "20060102150405"
)

// Client talks to Daraja.
type Client struct {
	cfg        config.MpesaConfig
	baseURL    string
	httpClient *http.Client
	tokens     *TokenCache
	log        *zap.SugaredLogger
	now        func() time.Time
}

// NewClient builds a Daraja client from explicit configuration.
func NewClient(cfg config.MpesaConfig, log *zap.SugaredLogger) *Client {
	baseURL := sandboxURL
	if cfg.Environment == "production" {
		baseURL = productionURL
	}
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
		now:        time.Now,
	}
	c.tokens = NewTokenCache(cfg.TokenSkew, c.fetchToken)
	return c
}

func (c *Client) Name() string { return "mpesa" }

// stkPushRequest is the body of /mpesa/stkpush/v1/processrequest.
type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string   `json:"ResponseCode"`
	ResponseDescription string   `json:"ResponseDescription"`
	MerchantRequestID   string   `json:"MerchantRequestID"`
	CheckoutRequestID   string   `json:"CheckoutRequestID"`
	ResultCode          flexCode `json:"ResultCode"`
	ResultDesc          string   `json:"ResultDesc"`
	ErrorCode           string   `json:"errorCode"`
	ErrorMessage        string   `json:"errorMessage"`
}

// stkCallback is the body Daraja POSTs to CallBackURL.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string   `json:"MerchantRequestID"`
			CheckoutRequestID string   `json:"CheckoutRequestID"`
			ResultCode        flexCode `json:"ResultCode"`
			ResultDesc        string   `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// flexCode accepts a result code sent either as a JSON number or a string.
type flexCode string

func (f *flexCode) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	*f = flexCode(strings.TrimSpace(s))
	return nil
}

// OpenPayment sends an STK push prompt to the customer's handset.
func (c *Client) OpenPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentSession, error) {
	if !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: M-Pesa collects whole amounts only, got %s", gateway.ErrRejected, req.Amount)
	}
	phone, err := NormalizeMSISDN(req.Customer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrRejected, err)
	}
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = c.cfg.CallbackURL
	}
	desc := req.Description
	if desc == "" {
		desc = "Deposit to Wallet"
	}

	ts := c.now().Format(timestampLayout)
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.IntPart(),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       callbackURL,
		AccountReference:  req.MerchantReference,
		TransactionDesc:   desc,
	}

	var resp stkPushResponse
	status, err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: stk push http %d %s", gateway.ErrUnavailable, status, resp.ErrorMessage)
	}
	if status != http.StatusOK || resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk push code=%q %s%s", gateway.ErrRejected,
			resp.ResponseCode+resp.ErrorCode, resp.ResponseDescription, resp.ErrorMessage)
	}
	return &gateway.PaymentSession{
		CorrelationID:     resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// QueryStatus asks Daraja for the state of an STK push.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (gateway.Outcome, error) {
	ts := c.now().Format(timestampLayout)
	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}
	var resp stkQueryResponse
	status, err := c.post(ctx, "/mpesa/stkpushquery/v1/query", body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 500 && resp.ErrorCode != errStillProcessing {
		return nil, fmt.Errorf("%w: stk query http %d %s", gateway.ErrUnavailable, status, resp.ErrorMessage)
	}
	if status >= 400 && status < 500 {
		return nil, fmt.Errorf("%w: stk query http %d %s %s", gateway.ErrRejected, status, resp.ErrorCode, resp.ErrorMessage)
	}
	return MapResult(RawResult{
		ResponseCode: resp.ResponseCode,
		ResultCode:   string(resp.ResultCode),
		ResultDesc:   resp.ResultDesc,
		ErrorCode:    resp.ErrorCode,
		ErrorMessage: resp.ErrorMessage,
	}), nil
}

// ParseCallback decodes an STK callback body into a Notification.
func (c *Client) ParseCallback(body []byte) (*gateway.Notification, error) {
	return ParseCallback(body)
}

// ParseCallback is the pure parser behind Client.ParseCallback.
func ParseCallback(body []byte) (*gateway.Notification, error) {
	var cb stkCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidCallback, err)
	}
	s := cb.Body.StkCallback
	if s.CheckoutRequestID == "" && s.MerchantRequestID == "" {
		return nil, fmt.Errorf("%w: missing request ids", gateway.ErrInvalidCallback)
	}

	raw := RawResult{
		ResultCode:     string(s.ResultCode),
		ResultDesc:     s.ResultDesc,
		AmountRequired: true,
	}
	for _, item := range s.CallbackMetadata.Item {
		v := strings.Trim(strings.TrimSpace(string(item.Value)), `"`)
		switch item.Name {
		case "Amount":
			if d, err := decimal.NewFromString(v); err == nil {
				raw.Amount = &d
			}
		case "MpesaReceiptNumber":
			raw.Receipt = v
		case "PhoneNumber":
			raw.Phone = v
		}
	}

	correlation := s.CheckoutRequestID
	if correlation == "" {
		correlation = s.MerchantRequestID
	}
	return &gateway.Notification{
		CorrelationID:     correlation,
		MerchantRequestID: s.MerchantRequestID,
		Outcome:           MapResult(raw),
	}, nil
}

func (c *Client) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + ts))
}

// fetchToken calls the OAuth endpoint with Basic auth.
func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode >= 500 {
			return "", 0, fmt.Errorf("%w: token http %d: %s", gateway.ErrUnavailable, resp.StatusCode, b)
		}
		return "", 0, fmt.Errorf("%w: token http %d: %s", gateway.ErrRejected, resp.StatusCode, b)
	}
	var out struct {
		AccessToken string   `json:"access_token"`
		ExpiresIn   flexCode `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("%w: decode token: %v", gateway.ErrUnavailable, err)
	}
	secs, err := strconv.Atoi(string(out.ExpiresIn))
	if err != nil {
		secs = 3599
	}
	return out.AccessToken, time.Duration(secs) * time.Second, nil
}

// post sends an authenticated JSON request and decodes any JSON answer into out.
// A 401 drops the cached token and retries once.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Get(ctx)
		if err != nil {
			return 0, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, classifyTransport(err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return 0, classifyTransport(err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.tokens.Invalidate()
			continue
		}
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, out); err != nil && resp.StatusCode < 500 {
				return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", gateway.ErrUnavailable, path, err)
			}
		}
		c.log.Debugw("mpesa call", "path", path, "status", resp.StatusCode)
		return resp.StatusCode, nil
	}
}

func classifyTransport(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: timeout: %v", gateway.ErrUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
}

// NormalizeMSISDN converts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and 2547XXXXXXXX
// (and the 01 prefix equivalents) into 2547XXXXXXXX form.
func NormalizeMSISDN(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	switch {
	case strings.HasPrefix(p, "254") && len(p) == 12:
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case (strings.HasPrefix(p, "7") || strings.HasPrefix(p, "1")) && len(p) == 9:
		p = "254" + p
	default:
		return "", fmt.Errorf("unsupported phone number %q", phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("unsupported phone number %q", phone)
		}
	}
	return p, nil
}
