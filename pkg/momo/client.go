package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nmtruong/fulfillment-backend/pkg/config"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
)

const (
	createPath = "/v2/gateway/api/create"
	queryPath  = "/v2/gateway/api/query"
	refundPath = "/v2/gateway/api/refund"

	defaultRequestTimeout = 10 * time.Second
)

var (
	errPartnerCodeRequired = errors.New("momo partner code is required")
	errAccessKeyRequired   = errors.New("momo access key is required")
	errSecretKeyRequired   = errors.New("momo secret key is required")
	errLoggerRequired      = errors.New("momo logger is required")
)

// Client signs, sends, and parses requests to the MoMo wallet gateway. All
// calls are bounded by the configured request timeout; a timed-out call
// surfaces as a gateway error so the enclosing transaction rolls back.
type Client struct {
	partnerCode string
	accessKey   string
	secretKey   string
	endpoint    string
	redirectURL string
	ipnURL      string
	httpClient  *http.Client
	logger      *logger.Logger
}

// NewClient initializes the MoMo wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.MoMoConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if strings.TrimSpace(cfg.PartnerCode) == "" {
		return nil, errPartnerCodeRequired
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, errAccessKeyRequired
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errSecretKeyRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	c := &Client{
		partnerCode: strings.TrimSpace(cfg.PartnerCode),
		accessKey:   strings.TrimSpace(cfg.AccessKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		endpoint:    strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		redirectURL: cfg.RedirectURL,
		ipnURL:      cfg.IPNURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logg,
	}

	logg.Info(ctx, "momo client initialized")
	return c, nil
}

// CreatePayment registers a payment intent with the provider and returns
// the redirect/deeplink/QR payload. The amount bounds are checked before
// any network I/O.
func (c *Client) CreatePayment(ctx context.Context, params CreatePaymentParams) (*CreatePaymentResult, error) {
	if params.OrderRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	if params.RequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if params.Amount < MinAmount || params.Amount > MaxAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount must be between %d and %d", MinAmount, MaxAmount)).
			WithDetails(map[string]any{"amount": params.Amount})
	}

	signature := signPayload(c.secretKey, map[string]string{
		"accessKey":   c.accessKey,
		"amount":      formatAmount(params.Amount),
		"extraData":   params.ExtraData,
		"ipnUrl":      c.ipnURL,
		"orderId":     params.OrderRef,
		"orderInfo":   params.OrderInfo,
		"partnerCode": c.partnerCode,
		"redirectUrl": c.redirectURL,
		"requestId":   params.RequestID,
		"requestType": requestTypeCaptureWallet,
	})

	body := map[string]any{
		"partnerCode": c.partnerCode,
		"requestId":   params.RequestID,
		"amount":      params.Amount,
		"orderId":     params.OrderRef,
		"orderInfo":   params.OrderInfo,
		"redirectUrl": c.redirectURL,
		"ipnUrl":      c.ipnURL,
		"requestType": requestTypeCaptureWallet,
		"extraData":   params.ExtraData,
		"lang":        "vi",
		"signature":   signature,
	}

	c.log(ctx, "request", "create_payment", map[string]any{
		"order_ref": params.OrderRef,
		"amount":    params.Amount,
	})

	var result CreatePaymentResult
	if err := c.post(ctx, createPath, body, &result); err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, err
	}
	if result.ResultCode != ResultCodeSuccess {
		c.log(ctx, "error", "create_payment", map[string]any{
			"error":       result.Message,
			"result_code": result.ResultCode,
		})
		return nil, pkgerrors.New(pkgerrors.CodeGateway,
			fmt.Sprintf("momo create payment rejected: %s", result.Message)).
			WithDetails(map[string]any{"result_code": result.ResultCode})
	}

	c.log(ctx, "response", "create_payment", map[string]any{
		"order_ref":   result.OrderRef,
		"result_code": result.ResultCode,
	})
	return &result, nil
}

// QueryStatus asks the provider for the current result of a payment
// attempt. A non-success result code is data, not a transport failure; the
// caller maps it through StatusForResultCode.
func (c *Client) QueryStatus(ctx context.Context, orderRef, requestID string) (*QueryStatusResult, error) {
	if orderRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	if requestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	signature := signPayload(c.secretKey, map[string]string{
		"accessKey":   c.accessKey,
		"orderId":     orderRef,
		"partnerCode": c.partnerCode,
		"requestId":   requestID,
	})

	body := map[string]any{
		"partnerCode": c.partnerCode,
		"requestId":   requestID,
		"orderId":     orderRef,
		"lang":        "vi",
		"signature":   signature,
	}

	c.log(ctx, "request", "query_status", map[string]any{"order_ref": orderRef})

	var result QueryStatusResult
	if err := c.post(ctx, queryPath, body, &result); err != nil {
		c.log(ctx, "error", "query_status", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "query_status", map[string]any{
		"order_ref":   result.OrderRef,
		"result_code": result.ResultCode,
	})
	return &result, nil
}

// Refund asks the provider to return captured money. The refund is scoped
// to params.OrderRef, which must be a new reference distinct from the
// original payment's, and returns the provider's refund transaction id.
func (c *Client) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	if params.OrderRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund order reference required")
	}
	if params.RequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if params.TransID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference required")
	}
	if params.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	signature := signPayload(c.secretKey, map[string]string{
		"accessKey":   c.accessKey,
		"amount":      formatAmount(params.Amount),
		"description": params.Description,
		"orderId":     params.OrderRef,
		"partnerCode": c.partnerCode,
		"requestId":   params.RequestID,
		"transId":     formatInt64(params.TransID),
	})

	body := map[string]any{
		"partnerCode": c.partnerCode,
		"orderId":     params.OrderRef,
		"requestId":   params.RequestID,
		"amount":      params.Amount,
		"transId":     params.TransID,
		"description": params.Description,
		"lang":        "vi",
		"signature":   signature,
	}

	c.log(ctx, "request", "refund", map[string]any{
		"refund_ref": params.OrderRef,
		"amount":     params.Amount,
	})

	var result RefundResult
	if err := c.post(ctx, refundPath, body, &result); err != nil {
		c.log(ctx, "error", "refund", map[string]any{"error": err.Error()})
		return nil, err
	}
	if result.ResultCode != ResultCodeSuccess {
		c.log(ctx, "error", "refund", map[string]any{
			"error":       result.Message,
			"result_code": result.ResultCode,
		})
		return nil, pkgerrors.New(pkgerrors.CodeGateway,
			fmt.Sprintf("momo refund rejected: %s", result.Message)).
			WithDetails(map[string]any{"result_code": result.ResultCode})
	}

	c.log(ctx, "response", "refund", map[string]any{
		"refund_ref": result.OrderRef,
		"trans_id":   result.TransID,
	})
	return &result, nil
}

// VerifyIPN checks the notification's signature over its own field set.
// An invalid signature must be rejected before any state is touched.
func (c *Client) VerifyIPN(payload *IPNPayload) error {
	if payload == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification payload required")
	}
	fields := map[string]string{
		"accessKey":    c.accessKey,
		"amount":       formatAmount(payload.Amount),
		"extraData":    payload.ExtraData,
		"message":      payload.Message,
		"orderId":      payload.OrderRef,
		"orderInfo":    payload.OrderInfo,
		"orderType":    payload.OrderType,
		"partnerCode":  payload.PartnerCode,
		"payType":      payload.PayType,
		"requestId":    payload.RequestID,
		"responseTime": formatInt64(payload.ResponseTime),
		"resultCode":   formatInt(payload.ResultCode),
		"transId":      formatInt64(payload.TransID),
	}
	if !verifySignature(c.secretKey, fields, payload.Signature) {
		return pkgerrors.New(pkgerrors.CodeSignature, "momo notification signature mismatch")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode momo request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(encoded))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build momo request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "momo request failed")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return pkgerrors.New(pkgerrors.CodeGateway,
			fmt.Sprintf("momo returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode momo response")
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("momo %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("momo %s", phase))
	}
}
