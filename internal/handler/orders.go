package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/storefront-client/internal/model"
)

type orderView struct {
	model.Order
	Cancellable bool `json:"cancellable"`
}

func viewOf(o model.Order) orderView {
	return orderView{Order: o, Cancellable: o.Cancellable()}
}

// ListOrders возвращает заказы текущего покупателя.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Orders.List(r.Context())
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}

	res := make([]orderView, 0, len(list))
	for _, o := range list {
		res = append(res, viewOf(o))
	}
	writeJSON(w, http.StatusOK, res)
}

// GetOrder возвращает заказ с позициями и адресом доставки.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.Orders.Get(r.Context(), model.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*o))
}

// CancelOrder отменяет заказ, ожидающий оплаты.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.Orders.Cancel(r.Context(), model.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*o))
}
