package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/billforge/billforge/internal/config"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/httpclient"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// RefundResult is the gateway's answer to a refund request
type RefundResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refund_id"`
	Message  string `json:"message,omitempty"`
}

// PaymentGatewayService is the boundary to the external payment gateway.
// Gateway-specific callback parsing is opaque to the billing core.
type PaymentGatewayService interface {
	ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*RefundResult, error)
	ParseRefundAmount(paymentMethod string, callbackData map[string]string) (decimal.Decimal, error)
	IsRefundSuccess(paymentMethod string, callbackData map[string]string) bool
}

type httpGateway struct {
	client httpclient.Client
	config *config.GatewayConfig
	logger *logger.Logger
}

// NewHTTPGateway creates a gateway client talking JSON over HTTP
func NewHTTPGateway(cfg *config.Configuration, client httpclient.Client, logger *logger.Logger) PaymentGatewayService {
	return &httpGateway{
		client: client,
		config: &cfg.Gateway,
		logger: logger,
	}
}

type refundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
	TenantID      string          `json:"tenant_id"`
}

func (g *httpGateway) ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	body, err := json.Marshal(refundRequest{
		TransactionID: transactionID,
		Amount:        amount,
		Reason:        reason,
		TenantID:      types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode refund request").
			Mark(ierr.ErrSystem)
	}

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    g.config.BaseURL + "/v1/refunds",
		Headers: map[string]string{
			"Authorization": "Bearer " + g.config.APIKey,
		},
		Body: body,
	})
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		g.logger.Warnw("gateway rejected refund request",
			"transaction_id", transactionID,
			"status_code", resp.StatusCode,
		)
		return &RefundResult{
			Success: false,
			Message: "gateway returned status " + http.StatusText(resp.StatusCode),
		}, nil
	}

	var result RefundResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Gateway returned an unparseable refund response").
			Mark(ierr.ErrHTTPClient)
	}
	return &result, nil
}

func (g *httpGateway) ParseRefundAmount(paymentMethod string, callbackData map[string]string) (decimal.Decimal, error) {
	raw, ok := callbackData["refund_amount"]
	if !ok {
		raw, ok = callbackData["amount"]
	}
	if !ok {
		return decimal.Zero, ierr.NewError("refund amount missing from callback").
			WithHint("Callback data does not carry a refund amount").
			Mark(ierr.ErrValidation)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Callback refund amount is not a valid number").
			Mark(ierr.ErrValidation)
	}
	return amount, nil
}

func (g *httpGateway) IsRefundSuccess(paymentMethod string, callbackData map[string]string) bool {
	switch callbackData["status"] {
	case "succeeded", "success", "SUCCESS":
		return true
	default:
		return false
	}
}
