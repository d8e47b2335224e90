package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateTx inserts o and its line items through q, normally the settlement
// transaction. o.ID, o.CreatedAt and each item ID are filled in.
func CreateTx(ctx context.Context, q Querier, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateTx"),
		zap.String("session_id", o.SessionID),
	)

	if o.Status == "" {
		o.Status = StatusPaid
	}
	if o.PaidAt == nil && o.Status == StatusPaid {
		now := time.Now().UTC()
		o.PaidAt = &now
	}
	if o.StatusTimes == nil {
		o.StatusTimes = map[Status]time.Time{}
	}
	if o.PaidAt != nil {
		o.StatusTimes[StatusPaid] = *o.PaidAt
	}

	metadata, err := json.Marshal(o.Metadata)
	if err != nil {
		return err
	}
	statusTimes, err := json.Marshal(o.StatusTimes)
	if err != nil {
		return err
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO orders (
			customer_id, vendor_id, session_id, status,
			subtotal_cents, tax_cents, shipping_cents, total_cents,
			metadata, status_times, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		o.CustomerID, o.VendorID, o.SessionID, o.Status,
		o.SubtotalCents, o.TaxCents, o.ShippingCents, o.TotalCents,
		metadata, statusTimes, o.PaidAt,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID

		itemMeta, err := json.Marshal(it.Metadata)
		if err != nil {
			return err
		}

		err = q.QueryRowContext(ctx, `
			INSERT INTO order_line_items (
				order_id, product_id, variant_id, name,
				quantity, unit_price_cents, metadata
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`,
			it.OrderID, it.ProductID, it.VariantID, it.Name,
			it.Quantity, it.UnitPriceCents, itemMeta,
		).Scan(&it.ID)
		if err != nil {
			log.Error("failed to insert line item", zap.Int64("order_id", o.ID), zap.Error(err))
			return err
		}
	}

	return nil
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	// UpdateStatus moves the order from one status to another, failing
	// with ErrInvalidTransition if it is no longer in from.
	UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetByID"),
		zap.Int64("order_id", id),
	)

	var (
		o           Order
		vendor      sql.NullInt64
		metadata    []byte
		statusTimes []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			id, customer_id, vendor_id, session_id, status,
			subtotal_cents, tax_cents, shipping_cents, total_cents,
			metadata, status_times,
			paid_at, processing_at, shipped_at, delivered_at,
			created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&o.ID, &o.CustomerID, &vendor, &o.SessionID, &o.Status,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.TotalCents,
		&metadata, &statusTimes,
		&o.PaidAt, &o.ProcessingAt, &o.ShippedAt, &o.DeliveredAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		log.Error("failed to query order", zap.Error(err))
		return nil, err
	}
	if vendor.Valid {
		o.VendorID = &vendor.Int64
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return nil, err
		}
	}
	if len(statusTimes) > 0 {
		if err := json.Unmarshal(statusTimes, &o.StatusTimes); err != nil {
			return nil, err
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, name, quantity, unit_price_cents, metadata
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		log.Error("failed to query line items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	o.Items = []LineItem{}
	for rows.Next() {
		var (
			it       LineItem
			product  sql.NullInt64
			variant  sql.NullInt64
			itemMeta []byte
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &product, &variant, &it.Name, &it.Quantity, &it.UnitPriceCents, &itemMeta); err != nil {
			return nil, err
		}
		if product.Valid {
			it.ProductID = &product.Int64
		}
		if variant.Valid {
			it.VariantID = &variant.Int64
		}
		if len(itemMeta) > 0 {
			if err := json.Unmarshal(itemMeta, &it.Metadata); err != nil {
				return nil, err
			}
		}
		o.Items = append(o.Items, it)
	}

	return &o, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) error {
	column, ok := stampColumns[to]
	if !ok {
		return ErrInvalidStatus
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE orders
		SET status = $1,
		    %s = $2,
		    status_times = COALESCE(status_times, '{}'::jsonb) || jsonb_build_object($1::text, $2::timestamptz),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, column), to, at, id, from)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update order status",
			zap.String("layer", "repository"),
			zap.Int64("order_id", id),
			zap.Error(err),
		)
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
