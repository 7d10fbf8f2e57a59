package mpesa

import (
	"strings"

	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/shopspring/decimal"
)

// Daraja result codes seen on STK callbacks and STK queries.
const (
	codeSuccess          = "0"
	codeInsufficient     = "1"
	codeSubscriberLocked = "1001"
	codeExpired          = "1019"
	codeCancelled        = "1032"
	codeUnreachable      = "1037"
	codeWrongPin         = "2001"
	codeStillProcessing  = "4999"
	errStillProcessing   = "500.001.1001"
)

var failureReasons = map[string]string{
	codeInsufficient:     "insufficient M-Pesa balance",
	codeSubscriberLocked: "subscriber busy with another transaction",
	codeExpired:          "transaction expired",
	codeCancelled:        "cancelled by user",
	codeUnreachable:      "customer unreachable",
	codeWrongPin:         "wrong PIN entered",
}

// RawResult is every status-bearing field Daraja may send for one STK payment.
// The same provider reports state through ResponseCode, ResultCode/ResultDesc and
// errorCode/errorMessage depending on the endpoint and the phase of the payment.
type RawResult struct {
	ResponseCode string
	ResultCode   string
	ResultDesc   string
	ErrorCode    string
	ErrorMessage string
	Amount       *decimal.Decimal
	Receipt      string
	Phone        string
	// AmountRequired makes a success without an Amount item non-final. Callbacks set it;
	// status queries never carry the amount and confirm the requested one.
	AmountRequired bool
}

// MapResult turns raw Daraja fields into a canonical outcome. ResultCode wins over the
// descriptions; descriptions are consulted only when no code was sent.
func MapResult(r RawResult) gateway.Outcome {
	if r.ErrorCode != "" {
		// errors are about the request, not the payment, except the "still processing" one
		detail := strings.TrimSpace(r.ErrorCode + " " + r.ErrorMessage)
		return gateway.Processing{Detail: detail}
	}

	code := strings.TrimSpace(r.ResultCode)
	if code == "" {
		if r.ResponseCode != "" && r.ResponseCode != codeSuccess {
			return gateway.Processing{Detail: "status query not accepted: " + r.ResultDesc}
		}
		desc := strings.ToLower(r.ResultDesc)
		switch {
		case strings.Contains(desc, "cancel"):
			return gateway.Failure{Code: codeCancelled, Reason: r.ResultDesc}
		default:
			return gateway.Processing{Detail: r.ResultDesc}
		}
	}

	switch code {
	case codeSuccess:
		if r.Amount != nil && r.Amount.IsPositive() {
			return gateway.Success{Amount: *r.Amount, Receipt: r.Receipt, Payer: r.Phone}
		}
		if r.AmountRequired {
			return gateway.Processing{Detail: "success reported without amount"}
		}
		return gateway.Success{Amount: decimal.Zero, Receipt: r.Receipt, Payer: r.Phone}
	case codeStillProcessing, errStillProcessing:
		return gateway.Processing{Detail: r.ResultDesc}
	}

	reason := r.ResultDesc
	if reason == "" {
		reason = failureReasons[code]
	}
	if reason == "" {
		reason = "payment failed with code " + code
	}
	return gateway.Failure{Code: code, Reason: reason}
}
