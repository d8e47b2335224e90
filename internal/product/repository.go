package product

import (
	"context"
	"database/sql"
	"errors"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/money"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetForPricing(ctx context.Context, productID int64, variantID *int64) (*Product, *Variant, error)
	GetStock(ctx context.Context, keys []StockKey) (map[StockKey]int, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetForPricing(ctx context.Context, productID int64, variantID *int64) (*Product, *Variant, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetForPricing"),
		zap.Int64("product_id", productID),
	)

	var (
		p      Product
		vendor sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			id, vendor_id, name,
			base_cost_cents, duty_cents, margin_percent, tax_percent, taxable,
			weight_lbs, image_url, stock_qty, archived
		FROM products
		WHERE id = $1
	`, productID).Scan(
		&p.ID, &vendor, &p.Name,
		&p.BaseCostCents, &p.DutyCents, &p.MarginPercent, &p.TaxPercent, &p.Taxable,
		&p.WeightLbs, &p.ImageURL, &p.StockQty, &p.Archived,
	)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("product not found")
		return nil, nil, ErrProductNotFound
	}
	if err != nil {
		log.Error("failed to query product", zap.Error(err))
		return nil, nil, err
	}
	if vendor.Valid {
		p.VendorID = &vendor.Int64
	}
	if p.Archived {
		return nil, nil, ErrUnavailable
	}

	if variantID == nil {
		return &p, nil, nil
	}

	var (
		v      Variant
		cost   sql.NullInt64
		weight sql.NullFloat64
	)
	err = r.db.QueryRowContext(ctx, `
		SELECT id, product_id, name, base_cost_cents, weight_lbs, image_url, stock_qty, archived
		FROM product_variants
		WHERE id = $1 AND product_id = $2
	`, *variantID, productID).Scan(
		&v.ID, &v.ProductID, &v.Name, &cost, &weight, &v.ImageURL, &v.StockQty, &v.Archived,
	)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("variant not found", zap.Int64("variant_id", *variantID))
		return nil, nil, ErrVariantNotFound
	}
	if err != nil {
		log.Error("failed to query variant", zap.Error(err))
		return nil, nil, err
	}
	if v.Archived {
		return nil, nil, ErrUnavailable
	}
	if cost.Valid {
		c := money.Cents(cost.Int64)
		v.BaseCostCents = &c
	}
	if weight.Valid {
		v.WeightLbs = &weight.Float64
	}

	return &p, &v, nil
}

// GetStock reads current stock for each key without locking. Keys with no
// matching row are reported with zero stock.
func (r *repository) GetStock(ctx context.Context, keys []StockKey) (map[StockKey]int, error) {
	out := make(map[StockKey]int, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var productIDs, variantIDs []int64
	for _, k := range keys {
		out[k] = 0
		if k.HasVariant() {
			variantIDs = append(variantIDs, k.VariantID)
		} else {
			productIDs = append(productIDs, k.ProductID)
		}
	}

	if len(productIDs) > 0 {
		rows, err := r.db.QueryContext(ctx,
			`SELECT id, stock_qty FROM products WHERE id = ANY($1)`,
			pq.Array(productIDs),
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var qty int
			if err := rows.Scan(&id, &qty); err != nil {
				return nil, err
			}
			out[StockKey{ProductID: id}] = qty
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(variantIDs) > 0 {
		rows, err := r.db.QueryContext(ctx,
			`SELECT product_id, id, stock_qty FROM product_variants WHERE id = ANY($1)`,
			pq.Array(variantIDs),
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var k StockKey
			var qty int
			if err := rows.Scan(&k.ProductID, &k.VariantID, &qty); err != nil {
				return nil, err
			}
			out[k] = qty
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return out, nil
}
