package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/go-resty/resty/v2"
)

// ErrChargeDeclined is returned when the processor reports any non-success
// status for a charge. The attempt is terminal; the session stays active
// and the caller may retry until it expires.
var ErrChargeDeclined = errors.New("external charge declined")

// ChargeRequest describes an external charge. Amount is minor units.
type ChargeRequest struct {
	Amount      core.Money `json:"amount"`
	Currency    string     `json:"currency"`
	Reference   string     `json:"reference"`
	Description string     `json:"description,omitempty"`
}

// ChargeResult is the processor's acknowledgement of a successful charge.
type ChargeResult struct {
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
}

// Processor drives charges on the external card rail.
type Processor interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}

// HTTPProcessor talks to the external processor over its REST API with its
// own timeout so a slow processor cannot block the calling request
// indefinitely.
type HTTPProcessor struct {
	client *resty.Client
}

// NewHTTPProcessor builds a processor client. apiKey may be empty in
// development environments.
func NewHTTPProcessor(baseURL, apiKey string, timeout time.Duration) *HTTPProcessor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPProcessor{client: client}
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Charge submits the charge and treats anything but an explicit success
// status as a declined attempt.
func (p *HTTPProcessor) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	log := logger.FromContext(ctx)
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("processor charge amount must be positive, got %d", req.Amount)
	}
	var out chargeResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/v1/charges")
	if err != nil {
		return nil, fmt.Errorf("processor request failed: %w", err)
	}
	if resp.IsError() {
		log.Warn("processor rejected charge", "status", resp.StatusCode(), "reference", req.Reference, "detail", out.Error)
		return nil, fmt.Errorf("%w: http %d", ErrChargeDeclined, resp.StatusCode())
	}
	if out.Status != "succeeded" {
		log.Warn("processor charge not successful", "status", out.Status, "reference", req.Reference)
		return nil, fmt.Errorf("%w: status %s", ErrChargeDeclined, out.Status)
	}
	return &ChargeResult{ProviderRef: out.ID, Status: out.Status}, nil
}
