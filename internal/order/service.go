package order

import (
	"context"
	"time"

	"marketplace-be/internal/auth"
	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	GetOrder(ctx context.Context, p auth.Principal, id int64) (*Order, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id int64, to Status) (*Order, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) GetOrder(ctx context.Context, p auth.Principal, id int64) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(p, o) {
		logger.FromCtx(ctx).Warn("order access denied",
			zap.String("layer", "service"),
			zap.Int64("order_id", id),
			zap.String("role", string(p.Role)),
		)
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) UpdateStatus(ctx context.Context, p auth.Principal, id int64, to Status) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateStatus"),
		zap.Int64("order_id", id),
		zap.String("to", string(to)),
		zap.String("role", string(p.Role)),
	)

	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanView(p, o) {
		log.Warn("order access denied")
		return nil, ErrForbidden
	}
	if !CanTransition(p, o, to) {
		log.Warn("transition not allowed", zap.String("from", string(o.Status)))
		return nil, ErrInvalidTransition
	}

	at := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, o.Status, to, at); err != nil {
		return nil, err
	}

	o.Status = to
	if o.StatusTimes == nil {
		o.StatusTimes = map[Status]time.Time{}
	}
	o.StatusTimes[to] = at
	switch to {
	case StatusPaid:
		o.PaidAt = &at
	case StatusProcessing:
		o.ProcessingAt = &at
	case StatusShipped:
		o.ShippedAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	}

	log.Info("order status updated")
	return o, nil
}
