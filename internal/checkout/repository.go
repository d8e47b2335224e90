package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/money"
	"marketplace-be/internal/order"
	"marketplace-be/internal/product"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// SetPaymentReference stores the gateway correlation of a pending session.
	SetPaymentReference(ctx context.Context, id string, info PaymentInfo) error
	// MarkFailed moves a pending session to failed, or returns
	// ErrSessionNotPending.
	MarkFailed(ctx context.Context, id string, info PaymentInfo) error
	// Settle turns a verified-paid pending session into orders in one
	// transaction. A session that is already paid comes back with
	// AlreadySettled set and nothing written.
	Settle(ctx context.Context, s *Session, info PaymentInfo) (*Settlement, error)
	FlagReconciliation(ctx context.Context, rec Reconciliation) (int64, error)
}

type repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) CreateSession(ctx context.Context, s *Session) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateSession"),
		zap.String("session_id", s.ID),
	)

	snapshot, err := json.Marshal(s.Snapshot)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	paymentInfo, err := json.Marshal(s.Payment)
	if err != nil {
		return err
	}

	if s.Status == "" {
		s.Status = StatusPending
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO checkout_sessions (
			id, customer_id, cart_id, status, amount_total_cents,
			snapshot, metadata, payment
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`,
		s.ID, s.CustomerID, s.CartID, s.Status, s.AmountTotalCents,
		snapshot, metadata, paymentInfo,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		log.Error("failed to insert checkout session", zap.Error(err))
		return err
	}

	return nil
}

func (r *repository) GetSession(ctx context.Context, id string) (*Session, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetSession"),
		zap.String("session_id", id),
	)

	if !validSessionID(id) {
		return nil, ErrSessionNotFound
	}

	var (
		s           Session
		cartID      sql.NullInt64
		snapshot    []byte
		metadata    []byte
		paymentInfo []byte
		orderIDs    pq.Int64Array
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			id, customer_id, cart_id, status, amount_total_cents,
			snapshot, metadata, payment, created_order_ids,
			processed_at, created_at, updated_at
		FROM checkout_sessions
		WHERE id = $1
	`, id).Scan(
		&s.ID, &s.CustomerID, &cartID, &s.Status, &s.AmountTotalCents,
		&snapshot, &metadata, &paymentInfo, &orderIDs,
		&s.ProcessedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		log.Error("failed to query checkout session", zap.Error(err))
		return nil, err
	}

	if cartID.Valid {
		s.CartID = &cartID.Int64
	}
	s.CreatedOrderIDs = []int64(orderIDs)

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{snapshot, &s.Snapshot},
		{metadata, &s.Metadata},
		{paymentInfo, &s.Payment},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			log.Error("failed to decode checkout session", zap.Error(err))
			return nil, err
		}
	}

	return &s, nil
}

func (r *repository) SetPaymentReference(ctx context.Context, id string, info PaymentInfo) error {
	if !validSessionID(id) {
		return ErrSessionNotFound
	}

	paymentInfo, err := json.Marshal(info)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET payment = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, paymentInfo)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to store payment reference",
			zap.String("session_id", id), zap.Error(err))
		return err
	}
	return requireRow(res)
}

func (r *repository) MarkFailed(ctx context.Context, id string, info PaymentInfo) error {
	if !validSessionID(id) {
		return ErrSessionNotFound
	}

	paymentInfo, err := json.Marshal(info)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = 'failed', payment = $2, processed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, paymentInfo, r.now())
	if err != nil {
		logger.FromCtx(ctx).Error("failed to mark session failed",
			zap.String("session_id", id), zap.Error(err))
		return err
	}
	return requireRow(res)
}

// validSessionID reports whether id can name a session row. Anything else
// would only reach postgres as an invalid uuid cast.
func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotPending
	}
	return nil
}

func (r *repository) Settle(ctx context.Context, s *Session, info PaymentInfo) (*Settlement, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Settle"),
		zap.String("session_id", s.ID),
	)

	if !validSessionID(s.ID) {
		return nil, ErrSessionNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// The session row lock serialises every settlement attempt for this
	// session; whoever gets it second sees the paid status.
	var (
		status   Status
		orderIDs pq.Int64Array
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, created_order_ids
		FROM checkout_sessions
		WHERE id = $1
		FOR UPDATE
	`, s.ID).Scan(&status, &orderIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		log.Error("failed to lock session", zap.Error(err))
		return nil, err
	}
	if status == StatusPaid {
		return &Settlement{OrderIDs: []int64(orderIDs), AlreadySettled: true}, nil
	}
	if status != StatusPending {
		return nil, ErrSessionNotPending
	}

	demand := s.Snapshot.demand()
	keys := sortedKeys(demand)

	available, err := lockStock(ctx, tx, keys)
	if err != nil {
		log.Error("failed to lock stock", zap.Error(err))
		return nil, err
	}
	if short := s.Snapshot.shortfalls(available); len(short) > 0 {
		log.Warn("stock conflict at settlement", zap.Int("shortfalls", len(short)))
		return nil, &StockConflictError{Items: short}
	}

	now := r.now()
	orders := buildOrders(s, info, now)
	ids := make([]int64, 0, len(orders))
	for i := range orders {
		if err := order.CreateTx(ctx, tx, &orders[i]); err != nil {
			return nil, err
		}
		ids = append(ids, orders[i].ID)
	}

	for _, k := range keys {
		if err := decrementStock(ctx, tx, k, demand[k]); err != nil {
			log.Error("failed to decrement stock",
				zap.Int64("product_id", k.ProductID),
				zap.Int64("variant_id", k.VariantID),
				zap.Error(err),
			)
			return nil, err
		}
	}

	paymentInfo, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = 'paid', created_order_ids = $2, payment = $3,
			processed_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, s.ID, pq.Array(ids), paymentInfo, now)
	if err != nil {
		log.Error("failed to mark session paid", zap.Error(err))
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}

	if s.CartID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE carts SET completed = true, updated_at = $2 WHERE id = $1
		`, *s.CartID, now); err != nil {
			log.Error("failed to complete cart", zap.Error(err))
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items WHERE cart_id = $1
		`, *s.CartID); err != nil {
			log.Error("failed to clear cart items", zap.Error(err))
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit settlement", zap.Error(err))
		return nil, err
	}
	committed = true

	return &Settlement{OrderIDs: ids, Orders: orders}, nil
}

// lockStock reads and row-locks each stock row in the given order. Keys
// must be sorted so two settlements never wait on each other in a cycle.
func lockStock(ctx context.Context, tx *sql.Tx, keys []product.StockKey) (map[product.StockKey]int, error) {
	out := make(map[product.StockKey]int, len(keys))
	for _, k := range keys {
		var (
			qty int
			err error
		)
		if k.HasVariant() {
			err = tx.QueryRowContext(ctx, `
				SELECT stock_qty FROM product_variants
				WHERE id = $1 AND product_id = $2
				FOR UPDATE
			`, k.VariantID, k.ProductID).Scan(&qty)
		} else {
			err = tx.QueryRowContext(ctx, `
				SELECT stock_qty FROM products
				WHERE id = $1
				FOR UPDATE
			`, k.ProductID).Scan(&qty)
		}
		if errors.Is(err, sql.ErrNoRows) {
			qty, err = 0, nil
		}
		if err != nil {
			return nil, err
		}
		out[k] = qty
	}
	return out, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, k product.StockKey, qty int) error {
	if k.HasVariant() {
		_, err := tx.ExecContext(ctx, `
			UPDATE product_variants
			SET stock_qty = stock_qty - $2,
				archived = archived OR (stock_qty - $2) <= 0,
				updated_at = now()
			WHERE id = $1
		`, k.VariantID, qty)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty - $2,
			archived = archived OR (stock_qty - $2) <= 0,
			updated_at = now()
		WHERE id = $1
	`, k.ProductID, qty)
	return err
}

// buildOrders makes one paid order per vendor group in snapshot order. Each
// carries its proportional share of the card fee in metadata.
func buildOrders(s *Session, info PaymentInfo, paidAt time.Time) []order.Order {
	fees := money.Allocate(s.Snapshot.Pricing.CardFeeCents, s.Snapshot.groupTotals())

	orders := make([]order.Order, 0, len(s.Snapshot.VendorGroups))
	for i, g := range s.Snapshot.VendorGroups {
		at := paidAt
		o := order.Order{
			CustomerID:    s.CustomerID,
			VendorID:      g.VendorID,
			SessionID:     s.ID,
			Status:        order.StatusPaid,
			SubtotalCents: g.SubtotalCents,
			TaxCents:      g.TaxCents,
			ShippingCents: g.ShippingCents,
			TotalCents:    g.TotalCents(),
			Metadata: order.Metadata{
				ShippingAddress:   s.Snapshot.ShippingAddress,
				Passthrough:       s.Snapshot.Passthrough,
				PaymentMethod:     string(s.Metadata.PaymentMethod),
				PaymentProvider:   info.Provider,
				PaymentReference:  info.Reference,
				CardFeeShareCents: fees[i],
			},
			PaidAt: &at,
			Items:  make([]order.LineItem, 0, len(g.Items)),
		}
		for _, it := range g.Items {
			productID := it.ProductID
			o.Items = append(o.Items, order.LineItem{
				ProductID:      &productID,
				VariantID:      it.VariantID,
				Name:           it.Name,
				Quantity:       it.Quantity,
				UnitPriceCents: it.UnitPriceCents,
				Metadata: order.LineItemMetadata{
					TaxCentsPerUnit: it.TaxCentsPerUnit,
					WeightLbs:       it.WeightLbs,
					ImageURL:        it.ImageURL,
				},
			})
		}
		orders = append(orders, o)
	}
	return orders
}

func (r *repository) FlagReconciliation(ctx context.Context, rec Reconciliation) (int64, error) {
	shortfalls, err := json.Marshal(rec.Shortfalls)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO payment_reconciliations (
			session_id, payment_reference, amount_cents, shortfalls, reason
		)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, rec.SessionID, rec.PaymentReference, rec.AmountCents, shortfalls, rec.Reason).Scan(&id)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to flag reconciliation",
			zap.String("session_id", rec.SessionID), zap.Error(err))
		return 0, err
	}
	return id, nil
}
