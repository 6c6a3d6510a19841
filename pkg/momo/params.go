package momo

import (
	"strconv"

	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// Provider-documented bounds for a single transaction, in VND.
const (
	MinAmount int64 = 1_000
	MaxAmount int64 = 50_000_000
)

// Result codes the reconciler distinguishes. Everything else is a failure.
// ResultCodePending marks a transaction still waiting on the payer and is
// only meaningful on the query endpoint.
const (
	ResultCodeSuccess   = 0
	ResultCodePending   = 1000
	ResultCodeCancelled = 1003
	ResultCodeExpired   = 1005
)

const requestTypeCaptureWallet = "captureWallet"

// CreatePaymentParams carries the merchant-side fields of a create request.
type CreatePaymentParams struct {
	OrderRef  string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string
}

// CreatePaymentResult is the provider's answer to a create request.
type CreatePaymentResult struct {
	OrderRef     string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

// QueryStatusResult is the provider's answer to a query request.
type QueryStatusResult struct {
	OrderRef     string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
}

// RefundParams carries a refund request. OrderRef must be a fresh
// refund-scoped reference, never the original payment reference, so the
// provider treats repeats of the same refund as one idempotent operation.
type RefundParams struct {
	OrderRef    string
	RequestID   string
	TransID     int64
	Amount      int64
	Description string
}

// RefundResult is the provider's answer to a refund request.
type RefundResult struct {
	OrderRef     string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

// IPNPayload is the provider-pushed notification of a transaction result.
type IPNPayload struct {
	PartnerCode  string `json:"partnerCode"`
	OrderRef     string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// StatusForResultCode maps a provider result code onto the payment status
// enum. The webhook path and the poll path both go through this table so
// the two sources of truth converge on the same answer.
func StatusForResultCode(code int) enums.PaymentStatus {
	switch code {
	case ResultCodeSuccess:
		return enums.PaymentStatusCompleted
	case ResultCodeCancelled:
		return enums.PaymentStatusCancelled
	case ResultCodeExpired:
		return enums.PaymentStatusExpired
	default:
		return enums.PaymentStatusFailed
	}
}

func formatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10)
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatInt(v int) string {
	return strconv.Itoa(v)
}
