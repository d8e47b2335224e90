package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"marketplace-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetOpenCart(ctx context.Context, customerID int64) (*Cart, error)
	GetOrCreateOpenCart(ctx context.Context, customerID int64) (*Cart, error)
	GetCart(ctx context.Context, cartID int64) (*Cart, error)
	ListItems(ctx context.Context, cartID int64) ([]CartItem, error)
	GetItem(ctx context.Context, cartID, itemID int64) (*CartItem, error)
	FindItem(ctx context.Context, cartID, productID int64, variantID *int64) (*CartItem, error)
	CreateItem(ctx context.Context, item *CartItem) error
	UpdateItem(ctx context.Context, item *CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID int64) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const cartColumns = `id, customer_id, completed, created_at, updated_at`

const itemColumns = `
	id, cart_id, product_id, variant_id, vendor_id, name,
	quantity, unit_price_cents, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCart(row rowScanner) (*Cart, error) {
	var c Cart
	if err := row.Scan(&c.ID, &c.CustomerID, &c.Completed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanItem(row rowScanner) (*CartItem, error) {
	var (
		it       CartItem
		variant  sql.NullInt64
		vendor   sql.NullInt64
		metadata []byte
	)
	err := row.Scan(
		&it.ID, &it.CartID, &it.ProductID, &variant, &vendor, &it.Name,
		&it.Quantity, &it.UnitPriceCents, &metadata, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if variant.Valid {
		it.VariantID = &variant.Int64
	}
	if vendor.Valid {
		it.VendorID = &vendor.Int64
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &it.Metadata); err != nil {
			return nil, err
		}
	}
	return &it, nil
}

func (r *repository) GetOpenCart(ctx context.Context, customerID int64) (*Cart, error) {
	c, err := scanCart(r.db.QueryRowContext(ctx, `
		SELECT `+cartColumns+`
		FROM carts
		WHERE customer_id = $1 AND completed = false
	`, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	return c, err
}

// GetOrCreateOpenCart relies on the partial unique index over
// (customer_id) WHERE NOT completed: a concurrent insert falls through to
// the existing row.
func (r *repository) GetOrCreateOpenCart(ctx context.Context, customerID int64) (*Cart, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetOrCreateOpenCart"),
	)

	c, err := scanCart(r.db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO carts (customer_id)
			VALUES ($1)
			ON CONFLICT (customer_id) WHERE completed = false DO NOTHING
			RETURNING `+cartColumns+`
		)
		SELECT `+cartColumns+` FROM ins
		UNION ALL
		SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND completed = false
		LIMIT 1
	`, customerID))
	if err != nil {
		log.Error("failed to get or create cart", zap.Error(err))
		return nil, err
	}
	return c, nil
}

func (r *repository) GetCart(ctx context.Context, cartID int64) (*Cart, error) {
	c, err := scanCart(r.db.QueryRowContext(ctx, `
		SELECT `+cartColumns+` FROM carts WHERE id = $1
	`, cartID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	return c, err
}

func (r *repository) ListItems(ctx context.Context, cartID int64) ([]CartItem, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListItems"),
		zap.Int64("cart_id", cartID),
	)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`, cartID)
	if err != nil {
		log.Error("failed to query cart items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	items := []CartItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			log.Error("failed to scan cart item", zap.Error(err))
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *repository) GetItem(ctx context.Context, cartID, itemID int64) (*CartItem, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM cart_items
		WHERE cart_id = $1 AND id = $2
	`, cartID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	return it, err
}

// FindItem returns nil without error when the cart has no line for the
// product/variant pair.
func (r *repository) FindItem(ctx context.Context, cartID, productID int64, variantID *int64) (*CartItem, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2 AND variant_id IS NOT DISTINCT FROM $3
	`, cartID, productID, variantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (r *repository) CreateItem(ctx context.Context, item *CartItem) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateItem"),
		zap.Int64("cart_id", item.CartID),
		zap.Int64("product_id", item.ProductID),
	)

	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (
			cart_id, product_id, variant_id, vendor_id, name,
			quantity, unit_price_cents, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		item.CartID, item.ProductID, item.VariantID, item.VendorID, item.Name,
		item.Quantity, item.UnitPriceCents, metadata,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == PgUniqueViolation {
			log.Warn("cart item already exists")
			return ErrCartItemAlreadyExist
		}
		log.Error("failed to insert cart item", zap.Error(err))
		return err
	}

	return nil
}

// UpdateItem rewrites quantity and the frozen price of a line.
func (r *repository) UpdateItem(ctx context.Context, item *CartItem) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, `
		UPDATE cart_items
		SET quantity = $1,
		    unit_price_cents = $2,
		    metadata = $3,
		    updated_at = NOW()
		WHERE id = $4 AND cart_id = $5
		RETURNING updated_at
	`, item.Quantity, item.UnitPriceCents, metadata, item.ID, item.CartID).Scan(&item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCartItemNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update cart item",
			zap.String("layer", "repository"),
			zap.Int64("item_id", item.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *repository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND id = $2
	`, cartID, itemID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}
