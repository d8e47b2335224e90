package transport

import (
	"net/http"

	"marketplace-be/internal/cart"
)

type AddItemRequestDTO struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	VariantID *int64 `json:"variantId,omitempty" validate:"omitempty,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(r.Context(), p.CustomerID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decode(w, r, &req) {
		return
	}

	item, err := h.carts.AddItem(r.Context(), cart.AddItemParams{
		CustomerID: p.CustomerID,
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, item)
}

// UpdateItem sets the line quantity; zero removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	itemID, ok := int64Param(w, r, "itemID")
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decode(w, r, &req) {
		return
	}

	item, err := h.carts.UpdateItem(r.Context(), cart.UpdateItemParams{
		CustomerID: p.CustomerID,
		ItemID:     itemID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	RespondJSON(w, http.StatusOK, item)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	itemID, ok := int64Param(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(r.Context(), p.CustomerID, itemID); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
