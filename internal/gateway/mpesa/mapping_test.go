package mpesa

import (
	"testing"

	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMapResult(t *testing.T) {
	tests := []struct {
		name string
		in   RawResult
		want string
	}{
		{"callback success", RawResult{ResultCode: "0", Amount: dec("25"), AmountRequired: true}, "success"},
		{"callback success without amount", RawResult{ResultCode: "0", AmountRequired: true}, "processing"},
		{"query success confirms requested amount", RawResult{ResponseCode: "0", ResultCode: "0"}, "success"},
		{"cancelled", RawResult{ResultCode: "1032", ResultDesc: "Request cancelled by user"}, "failure"},
		{"timeout", RawResult{ResultCode: "1037"}, "failure"},
		{"insufficient", RawResult{ResultCode: "1"}, "failure"},
		{"wrong pin", RawResult{ResultCode: "2001"}, "failure"},
		{"unknown non-zero code", RawResult{ResultCode: "9999"}, "failure"},
		{"still processing code", RawResult{ResultCode: "4999"}, "processing"},
		{"being processed error", RawResult{ErrorCode: "500.001.1001", ErrorMessage: "The transaction is being processed"}, "processing"},
		{"other api error is not a payment outcome", RawResult{ErrorCode: "400.002.02", ErrorMessage: "Bad Request - Invalid CheckoutRequestID"}, "processing"},
		{"query not accepted", RawResult{ResponseCode: "1", ResultDesc: "busy"}, "processing"},
		{"no code, cancel description", RawResult{ResultDesc: "Request Cancelled by user"}, "failure"},
		{"no code, no hint", RawResult{ResultDesc: "accepted"}, "processing"},
		// code wins over a contradicting description
		{"code zero beats cancel text", RawResult{ResultCode: "0", ResultDesc: "cancelled", Amount: dec("10"), AmountRequired: true}, "success"},
		{"code 1032 beats success text", RawResult{ResultCode: "1032", ResultDesc: "The service request is processed successfully."}, "failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapResult(tt.in).String())
		})
	}
}

func TestMapResult_Payloads(t *testing.T) {
	out := MapResult(RawResult{ResultCode: "0", Amount: dec("25.00"), Receipt: "QKX1", Phone: "254708374149", AmountRequired: true})
	s, ok := out.(gateway.Success)
	require.True(t, ok)
	assert.Equal(t, "25.00", s.Amount.StringFixed(2))
	assert.Equal(t, "QKX1", s.Receipt)
	assert.Equal(t, "254708374149", s.Payer)

	out = MapResult(RawResult{ResultCode: "1032"})
	f, ok := out.(gateway.Failure)
	require.True(t, ok)
	assert.Equal(t, "1032", f.Code)
	assert.Equal(t, "cancelled by user", f.Reason)
}
