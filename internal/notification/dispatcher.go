package notification

import (
	"context"
	"sync"
	"time"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/order"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Dispatcher sends order notifications in the background, paced so the
// downstream mailer is not flooded. Failures are logged and counted, never
// returned: the orders are already paid.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	metrics *metrics.Checkout
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, perSecond float64, m *metrics.Checkout) *Dispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
		timeout: time.Minute,
	}
}

// OrdersPaid queues one customer and one vendor message per order and
// returns immediately.
func (d *Dispatcher) OrdersPaid(ctx context.Context, orders []order.Order) {
	if len(orders) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		d.dispatch(ctx, orders)
	}()
}

func (d *Dispatcher) dispatch(ctx context.Context, orders []order.Order) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "notification"),
		zap.String("method", "OrdersPaid"),
	)

	for _, o := range orders {
		for _, msg := range orderPaidMessages(o) {
			if err := d.limiter.Wait(ctx); err != nil {
				log.Error("notification dropped", zap.Int64("order_id", o.ID), zap.Error(err))
				d.metrics.NotificationFailures.Inc()
				continue
			}
			if err := d.sender.Send(ctx, msg); err != nil {
				log.Error("failed to send notification",
					zap.Int64("order_id", o.ID),
					zap.String("recipient", string(msg.Recipient)),
					zap.Error(err),
				)
				d.metrics.NotificationFailures.Inc()
				continue
			}
			d.metrics.NotificationsSent.Inc()
		}
	}
}

// Wait blocks until queued notifications are done. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
