package fulfillment

import (
	"context"
	"time"

	"github.com/cardmart/cardmart/engine/order"
	"github.com/cardmart/cardmart/pkg/logger"
)

// Dispatcher runs the compensating side effects after an order is durable:
// shipping-label creation and seller notification. These calls are
// fire-and-forget with their own timeouts; a failure is logged and never
// reverses the order or re-opens the session.
type Dispatcher struct {
	labels   LabelService
	notifier Notifier
	orders   order.Repository
	timeout  time.Duration
	// bounds concurrent side-effect goroutines
	sem chan struct{}
}

func NewDispatcher(labels LabelService, notifier Notifier, orders order.Repository, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		labels:   labels,
		notifier: notifier,
		orders:   orders,
		timeout:  timeout,
		sem:      make(chan struct{}, 16),
	}
}

// AfterOrderConfirmed schedules both side effects. It never blocks the
// caller beyond semaphore acquisition and never returns an error.
func (d *Dispatcher) AfterOrderConfirmed(ctx context.Context, ord *order.Order) {
	log := logger.FromContext(ctx)
	select {
	case d.sem <- struct{}{}:
		go func() {
			defer func() { <-d.sem }()
			bgCtx := context.WithoutCancel(ctx)
			d.createLabel(bgCtx, ord)
			d.notifySeller(bgCtx, ord)
		}()
	default:
		log.Warn("side-effect queue full, skipping fulfillment calls", "order_id", ord.ID)
	}
}

func (d *Dispatcher) createLabel(ctx context.Context, ord *order.Order) {
	log := logger.FromContext(ctx)
	if d.labels == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	tracking, err := d.labels.CreateLabel(callCtx, ord)
	if err != nil {
		log.Warn("shipping label creation failed", "order_id", ord.ID, "error", err)
		return
	}
	writeCtx, cancelWrite := context.WithTimeout(ctx, d.timeout)
	defer cancelWrite()
	if err := d.orders.SetTracking(writeCtx, ord.ID, tracking); err != nil {
		log.Warn("failed to record tracking number", "order_id", ord.ID, "error", err)
		return
	}
	log.Info("shipping label created", "order_id", ord.ID, "tracking_number", tracking)
}

func (d *Dispatcher) notifySeller(ctx context.Context, ord *order.Order) {
	log := logger.FromContext(ctx)
	if d.notifier == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.notifier.NotifySale(callCtx, ord); err != nil {
		log.Warn("seller notification failed", "order_id", ord.ID, "seller_id", ord.SellerID, "error", err)
		return
	}
	log.Debug("seller notified", "order_id", ord.ID)
}
