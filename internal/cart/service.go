package cart

import (
	"context"
	"errors"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/product"

	"go.uber.org/zap"
)

// Service defines the business logic for carts.
type Service interface {
	AddItem(ctx context.Context, params AddItemParams) (*CartItem, error)
	// UpdateItem sets a line's quantity; zero removes the line and
	// returns a nil item.
	UpdateItem(ctx context.Context, params UpdateItemParams) (*CartItem, error)
	RemoveItem(ctx context.Context, customerID, itemID int64) error
	GetCart(ctx context.Context, customerID int64) (*View, error)
}

type service struct {
	repo        Repository
	productRepo product.Repository
}

func NewService(repo Repository, productRepo product.Repository) Service {
	return &service{repo: repo, productRepo: productRepo}
}

// AddItem prices the product server-side and adds it to the customer's open
// cart, creating the cart on first use. Adding an existing product/variant
// merges into its line and refreshes the frozen price.
func (s *service) AddItem(ctx context.Context, params AddItemParams) (*CartItem, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AddItem"),
		zap.Int64("product_id", params.ProductID),
		zap.Int("quantity", params.Quantity),
	)

	if params.Quantity <= 0 {
		log.Warn("invalid quantity")
		return nil, ErrInvalidQuantity
	}

	p, v, err := s.productRepo.GetForPricing(ctx, params.ProductID, params.VariantID)
	if err != nil {
		return nil, err
	}
	quote := product.UnitPrice(p, v)

	cart, err := s.repo.GetOrCreateOpenCart(ctx, params.CustomerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindItem(ctx, cart.ID, params.ProductID, params.VariantID)
	if err != nil {
		return nil, err
	}

	finalQty := params.Quantity
	if existing != nil {
		finalQty += existing.Quantity
	}

	available := p.StockQty
	if v != nil {
		available = v.StockQty
	}
	if finalQty > available {
		log.Warn("insufficient stock",
			zap.Int("requested", finalQty),
			zap.Int("available", available),
		)
		return nil, ErrInsufficientStock
	}

	meta := ItemMetadata{
		TaxCentsPerUnit: quote.TaxCentsPerUnit,
		WeightLbs:       quote.WeightLbs,
		ImageURL:        quote.ImageURL,
	}

	if existing != nil {
		existing.Quantity = finalQty
		existing.UnitPriceCents = quote.UnitPriceCents
		existing.Metadata = meta
		if err := s.repo.UpdateItem(ctx, existing); err != nil {
			return nil, err
		}
		log.Info("cart item merged", zap.Int64("item_id", existing.ID))
		return existing, nil
	}

	name := p.Name
	if v != nil && v.Name != "" {
		name = p.Name + " - " + v.Name
	}

	item := &CartItem{
		CartID:         cart.ID,
		ProductID:      p.ID,
		VariantID:      params.VariantID,
		VendorID:       p.VendorID,
		Name:           name,
		Quantity:       finalQty,
		UnitPriceCents: quote.UnitPriceCents,
		Metadata:       meta,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	log.Info("cart item added", zap.Int64("item_id", item.ID), zap.Int64("unit_price_cents", int64(item.UnitPriceCents)))
	return item, nil
}

func (s *service) UpdateItem(ctx context.Context, params UpdateItemParams) (*CartItem, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateItem"),
		zap.Int64("item_id", params.ItemID),
	)

	if params.Quantity < 0 {
		log.Warn("invalid quantity", zap.Int("quantity", params.Quantity))
		return nil, ErrInvalidQuantity
	}

	cart, err := s.repo.GetOpenCart(ctx, params.CustomerID)
	if err != nil {
		return nil, err
	}

	if params.Quantity == 0 {
		return nil, s.repo.DeleteItem(ctx, cart.ID, params.ItemID)
	}

	item, err := s.repo.GetItem(ctx, cart.ID, params.ItemID)
	if err != nil {
		return nil, err
	}

	stock, err := s.productRepo.GetStock(ctx, []product.StockKey{item.StockKey()})
	if err != nil {
		return nil, err
	}
	if available := stock[item.StockKey()]; params.Quantity > available {
		log.Warn("insufficient stock",
			zap.Int("requested", params.Quantity),
			zap.Int("available", available),
		)
		return nil, ErrInsufficientStock
	}

	item.Quantity = params.Quantity
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, customerID, itemID int64) error {
	cart, err := s.repo.GetOpenCart(ctx, customerID)
	if err != nil {
		return err
	}
	return s.repo.DeleteItem(ctx, cart.ID, itemID)
}

// GetCart returns the open cart. A customer without one gets an empty view.
func (s *service) GetCart(ctx context.Context, customerID int64) (*View, error) {
	cart, err := s.repo.GetOpenCart(ctx, customerID)
	if errors.Is(err, ErrCartNotFound) {
		return &View{Items: []CartItem{}, Pricing: Price(nil)}, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	return &View{Cart: cart, Items: items, Pricing: Price(items)}, nil
}
