package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/checkout"
	"github.com/mmeshcher/storefront-client/internal/model"
)

type checkoutResponse struct {
	State   checkout.State   `json:"state"`
	Summary checkout.Summary `json:"summary"`
}

type selectAddressRequest struct {
	AddressID model.ID `json:"addressId"`
}

func (h *Handler) checkoutView(st checkout.State) checkoutResponse {
	return checkoutResponse{State: st, Summary: h.engine.Checkout.Summary()}
}

// respondCheckout отдаёт состояние оформления. При ошибке статус ответа
// отражает её, а тело по-прежнему содержит состояние.
func (h *Handler) respondCheckout(w http.ResponseWriter, op string, st checkout.State, err error) {
	code := http.StatusOK
	if err != nil {
		code = statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error(op+" error", zap.Error(err))
		}
	}
	writeJSON(w, code, h.checkoutView(st))
}

// GetCheckout возвращает текущий шаг оформления и итоги заказа.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.checkoutView(h.engine.Checkout.State()))
}

// BeginCheckout открывает оформление заказа.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Checkout.Begin(r.Context())
	h.respondCheckout(w, "begin checkout", st, err)
}

// SelectAddress выбирает адрес доставки.
func (h *Handler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	var req selectAddressRequest
	if err := decodeBody(r, &req); err != nil || req.AddressID == "" {
		badRequest(w)
		return
	}

	err := h.engine.Checkout.SelectAddress(req.AddressID)
	h.respondCheckout(w, "select address", h.engine.Checkout.State(), err)
}

// PlaceOrder создаёт заказ и инициализирует оплату.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Checkout.PlaceOrder(r.Context())
	h.respondCheckout(w, "place order", st, err)
}

// RetryCheckout начинает оформление заново после неудачи.
func (h *Handler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Checkout.Retry(r.Context())
	h.respondCheckout(w, "retry checkout", st, err)
}

// PaymentSuccess принимает возврат от провайдера после успешной оплаты.
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Checkout.CompleteSuccess(r.URL.Query())
	writeJSON(w, http.StatusOK, h.checkoutView(st))
}

// PaymentFailed принимает возврат от провайдера после неудачной оплаты.
func (h *Handler) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Checkout.CompleteFailure(r.URL.Query())
	writeJSON(w, http.StatusOK, h.checkoutView(st))
}

// ListAddresses возвращает адресную книгу пользователя.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Checkout.Addresses().List(r.Context())
	if err != nil {
		h.fail(w, "list addresses", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateAddress добавляет адрес в адресную книгу.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var req model.Address
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	addr, err := h.engine.Checkout.Addresses().Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create address", err)
		return
	}
	writeJSON(w, http.StatusCreated, addr)
}

// UpdateAddress заменяет адрес из адресной книги.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req model.Address
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	id := model.ID(chi.URLParam(r, "id"))
	addr, err := h.engine.Checkout.Addresses().Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, "update address", err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

// DeleteAddress удаляет адрес из адресной книги.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	if err := h.engine.Checkout.Addresses().Delete(r.Context(), id); err != nil {
		h.fail(w, "delete address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
