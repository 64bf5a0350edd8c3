package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/order"
	"github.com/go-resty/resty/v2"
)

// LabelService creates shipping labels for confirmed orders.
type LabelService interface {
	CreateLabel(ctx context.Context, ord *order.Order) (trackingNumber string, err error)
}

// Notifier tells the seller their listing sold.
type Notifier interface {
	NotifySale(ctx context.Context, ord *order.Order) error
}

// HTTPLabelService talks to the shipping-label provider.
type HTTPLabelService struct {
	client *resty.Client
}

func NewHTTPLabelService(baseURL string, timeout time.Duration) *HTTPLabelService {
	return &HTTPLabelService{client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

type labelResponse struct {
	TrackingNumber string `json:"tracking_number"`
}

func (s *HTTPLabelService) CreateLabel(ctx context.Context, ord *order.Order) (string, error) {
	var out labelResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"order_id":         ord.ID,
			"shipping_address": ord.ShippingAddress,
		}).
		SetResult(&out).
		Post("/v1/labels")
	if err != nil {
		return "", fmt.Errorf("label request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("label service returned http %d", resp.StatusCode())
	}
	return out.TrackingNumber, nil
}

// HTTPNotifier posts sale notifications to the notification service.
type HTTPNotifier struct {
	client *resty.Client
}

func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

func (n *HTTPNotifier) NotifySale(ctx context.Context, ord *order.Order) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"seller_id": ord.SellerID,
			"order_id":  ord.ID,
			"total":     ord.Total.Decimal(),
		}).
		Post("/v1/notifications/sale")
	if err != nil {
		return fmt.Errorf("notify request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification service returned http %d", resp.StatusCode())
	}
	return nil
}
