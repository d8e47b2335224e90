package checkout

import (
	"context"
	"errors"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"

	"go.uber.org/zap"
)

// Notifier is told about orders once their settlement has committed.
type Notifier interface {
	OrdersPaid(ctx context.Context, orders []order.Order)
}

// Engine confirms payments and settles sessions. Every trigger (client
// poll, gateway callback, approved card sale) ends in settle.
type Engine struct {
	repo     Repository
	gateway  payment.Gateway
	notifier Notifier
	metrics  *metrics.Checkout
}

func NewEngine(repo Repository, gateway payment.Gateway, notifier Notifier, m *metrics.Checkout) *Engine {
	if m == nil {
		m = metrics.NewCheckout()
	}
	return &Engine{repo: repo, gateway: gateway, notifier: notifier, metrics: m}
}

// Confirm is the client poll after returning from the hosted payment page.
func (e *Engine) Confirm(ctx context.Context, sessionID string, customerID int64) (*ConfirmResult, error) {
	s, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CustomerID != customerID {
		return nil, ErrForbidden
	}
	return e.confirm(ctx, s)
}

// ConfirmFromGateway is the same routine triggered by a gateway callback.
// The callback is never trusted on its own: the gateway is queried again.
func (e *Engine) ConfirmFromGateway(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	s, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.confirm(ctx, s)
}

func (e *Engine) confirm(ctx context.Context, s *Session) (*ConfirmResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "engine"),
		zap.String("method", "Confirm"),
		zap.String("session_id", s.ID),
	)

	if s.Status == StatusPaid && len(s.CreatedOrderIDs) > 0 {
		e.metrics.IdempotentHits.Inc()
		return &ConfirmResult{
			SessionID:      s.ID,
			Status:         StatusPaid,
			OrderIDs:       s.CreatedOrderIDs,
			AlreadySettled: true,
		}, nil
	}
	if s.Status != StatusPending {
		return &ConfirmResult{SessionID: s.ID, Status: s.Status, OrderIDs: []int64{}}, nil
	}

	pending := &ConfirmResult{SessionID: s.ID, Status: StatusPending, OrderIDs: []int64{}}

	// Card sessions settle inline with the sale. A pending one with a
	// recorded approval was charged but its settlement did not commit.
	if s.Metadata.PaymentMethod == MethodCard {
		if s.Payment.LastStatus == "approved" && s.Payment.Reference != "" {
			log.Info("retrying settlement of approved card sale")
			return e.settle(ctx, s, s.Payment)
		}
		return pending, nil
	}
	if s.Payment.Reference == "" {
		return pending, nil
	}

	records, err := e.gateway.QueryPaymentLinks(ctx, s.ID)
	if err != nil {
		log.Error("failed to query payment link", zap.Error(err))
		return nil, err
	}

	rec, ok := payment.FindLink(records, s.ID, s.Payment.Reference)
	if !ok {
		log.Warn("no payment link matches session", zap.Int("records", len(records)))
		return pending, nil
	}
	if !rec.Status.Paid() {
		return pending, nil
	}

	info := s.Payment
	info.LastStatus = "paid"
	return e.settle(ctx, s, info)
}

func (e *Engine) settle(ctx context.Context, s *Session, info PaymentInfo) (*ConfirmResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "engine"),
		zap.String("method", "settle"),
		zap.String("session_id", s.ID),
	)

	timer := metrics.StartTimer()
	st, err := e.repo.Settle(ctx, s, info)

	var conflict *StockConflictError
	if errors.As(err, &conflict) {
		e.metrics.StockConflicts.Inc()
		return nil, e.flagConflict(ctx, s, info, conflict)
	}
	if err != nil {
		// The charge went through, so a failed settlement is flagged even
		// when a later retry may still succeed.
		log.Error("settlement failed", zap.Error(err))
		e.flagReconciliation(ctx, s, info, ReasonSettlementFailed, []StockShortfall{})
		return nil, err
	}

	if st.AlreadySettled {
		e.metrics.IdempotentHits.Inc()
		return &ConfirmResult{
			SessionID:      s.ID,
			Status:         StatusPaid,
			OrderIDs:       st.OrderIDs,
			AlreadySettled: true,
		}, nil
	}

	e.metrics.Settlements.Inc()
	e.metrics.ObserveSettlement(timer.Duration())
	log.Info("session settled", zap.Int64s("order_ids", st.OrderIDs))

	if e.notifier != nil {
		e.notifier.OrdersPaid(ctx, st.Orders)
	}

	return &ConfirmResult{SessionID: s.ID, Status: StatusPaid, OrderIDs: st.OrderIDs}, nil
}

// flagConflict records a charge that could not be settled so it can be
// refunded or fulfilled by hand. The session is left pending.
func (e *Engine) flagConflict(ctx context.Context, s *Session, info PaymentInfo, conflict *StockConflictError) error {
	out := &SettlementConflictError{SessionID: s.ID, Shortfalls: conflict.Items}
	out.ReconciliationID = e.flagReconciliation(ctx, s, info, ReasonStockConflict, conflict.Items)
	return out
}

// flagReconciliation writes the reconciliation row and returns its id, or
// zero when the write itself failed. It runs detached from ctx so a request
// timeout that broke the settlement does not also drop the record.
func (e *Engine) flagReconciliation(ctx context.Context, s *Session, info PaymentInfo, reason string, shortfalls []StockShortfall) int64 {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "engine"),
		zap.String("method", "flagReconciliation"),
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
	)

	id, err := e.repo.FlagReconciliation(context.WithoutCancel(ctx), Reconciliation{
		SessionID:        s.ID,
		PaymentReference: info.Reference,
		AmountCents:      s.AmountTotalCents,
		Shortfalls:       shortfalls,
		Reason:           reason,
	})
	if err != nil {
		log.Error("paid session not settled and not flagged", zap.Error(err))
		return 0
	}

	e.metrics.Reconciliations.Inc()
	log.Error("paid session not settled, flagged for reconciliation",
		zap.Int64("reconciliation_id", id),
		zap.String("payment_reference", info.Reference),
	)
	return id
}

// GetStatus is the client-facing read of a session.
func (e *Engine) GetStatus(ctx context.Context, sessionID string, customerID int64) (*StatusView, error) {
	s, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CustomerID != customerID {
		return nil, ErrForbidden
	}

	ids := s.CreatedOrderIDs
	if ids == nil {
		ids = []int64{}
	}
	return &StatusView{
		SessionID:        s.ID,
		Status:           s.Status,
		PaymentReference: redact(s.Payment.Reference),
		AmountTotal:      s.AmountTotalCents.Format(),
		OrderIDs:         ids,
	}, nil
}
