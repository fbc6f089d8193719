package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/validation"
)

type cartResponse struct {
	Items     []model.CartItem `json:"items"`
	Total     decimal.Decimal  `json:"total"`
	Count     int              `json:"count"`
	IsLoading bool             `json:"isLoading"`
}

type cartItemRequest struct {
	ProductID model.ID `json:"productId"`
	Quantity  int      `json:"quantity"`
}

// cartView строит ответ из одного снимка корзины, поэтому итоги всегда
// соответствуют отданным строкам.
func (h *Handler) cartView() cartResponse {
	st := h.engine.Cart.State()
	total := decimal.Zero
	count := 0
	for _, it := range st.Items {
		total = total.Add(it.LineTotal())
		count += it.Quantity
	}
	return cartResponse{
		Items:     st.Items,
		Total:     total,
		Count:     count,
		IsLoading: st.IsLoading,
	}
}

// GetCart возвращает локальную копию корзины.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cartView())
}

// RefreshCart перечитывает корзину с сервера.
func (h *Handler) RefreshCart(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cart.FetchCart(r.Context()); err != nil {
		h.fail(w, "fetch cart", err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView())
}

// AddCartItem добавляет товар в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeBody(r, &req); err != nil || req.ProductID == "" {
		badRequest(w)
		return
	}

	if err := h.engine.Cart.AddItem(r.Context(), req.ProductID, validation.ClampQuantity(req.Quantity)); err != nil {
		h.fail(w, "add cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView())
}

// UpdateCartItem изменяет количество товара в строке корзины.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	id := model.ID(chi.URLParam(r, "id"))
	if err := h.engine.Cart.UpdateQuantity(r.Context(), id, validation.ClampQuantity(req.Quantity)); err != nil {
		h.fail(w, "update cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView())
}

// RemoveCartItem удаляет строку корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	if err := h.engine.Cart.RemoveItem(r.Context(), id); err != nil {
		h.fail(w, "remove cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView())
}
