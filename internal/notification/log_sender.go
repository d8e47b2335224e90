package notification

import (
	"context"

	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

// LogSender writes messages to the log. Used when no broker is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m Message) error {
	logger.FromCtx(ctx).Info("notification",
		zap.String("kind", m.Kind),
		zap.String("recipient", string(m.Recipient)),
		zap.Int64("order_id", m.OrderID),
		zap.String("total", m.Total),
	)
	return nil
}
