package transport

import (
	"net/http"

	"marketplace-be/internal/order"
)

type UpdateStatusRequestDTO struct {
	Status order.Status `json:"status" validate:"required"`
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := int64Param(w, r, "orderID")
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), p, orderID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := int64Param(w, r, "orderID")
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if !decode(w, r, &req) {
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), p, orderID, req.Status)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, o)
}
