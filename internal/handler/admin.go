package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/storefront-client/internal/admin"
	"github.com/mmeshcher/storefront-client/internal/model"
)

type pathRequest struct {
	Path string `json:"path"`
}

type signalRequest struct {
	Signal string `json:"signal"`
}

type logoutRequest struct {
	Confirm bool `json:"confirm"`
}

type orderStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

type userRoleRequest struct {
	Role model.Role `json:"role"`
}

// requireAuthorized пропускает запросы консоли, только пока охрана раздела
// подтвердила права администратора.
func (h *Handler) requireAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if st := h.engine.Guard.State(); st.Status != admin.StatusAuthorized {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EnterAdmin проверяет права при входе в раздел администратора.
func (h *Handler) EnterAdmin(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w)
		return
	}
	if req.Path == "" {
		req.Path = admin.AreaPrefix
	}

	h.engine.Guard.Enter(r.Context(), req.Path)
	writeJSON(w, http.StatusOK, h.engine.Guard.State())
}

// VisitAdmin фиксирует переход внутри раздела.
func (h *Handler) VisitAdmin(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeBody(r, &req); err != nil || req.Path == "" {
		badRequest(w)
		return
	}

	h.engine.Guard.Visit(req.Path)
	writeJSON(w, http.StatusOK, h.engine.Guard.State())
}

// AdminActivity отмечает активность пользователя.
func (h *Handler) AdminActivity(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	if err := h.engine.Guard.Touch(req.Signal); err != nil {
		h.fail(w, "admin activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaveAdmin снимает наблюдение при выходе из раздела.
func (h *Handler) LeaveAdmin(w http.ResponseWriter, r *http.Request) {
	h.engine.Guard.Leave()
	writeJSON(w, http.StatusOK, h.engine.Guard.State())
}

// AdminLogout завершает сессию из раздела после подтверждения.
func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	confirm := admin.ConfirmFunc(func(string) bool { return req.Confirm })
	if err := h.engine.Guard.Logout(r.Context(), confirm); err != nil {
		h.fail(w, "admin logout", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Guard.State())
}

// AdminState возвращает состояние охраны раздела.
func (h *Handler) AdminState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Guard.State())
}

// AdminOrders возвращает все заказы.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.Console.ListOrders(r.Context())
	if err != nil {
		h.fail(w, "admin orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// AdminUsers возвращает всех пользователей.
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.engine.Console.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "admin users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// AdminProducts возвращает каталог.
func (h *Handler) AdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.Console.ListProducts(r.Context())
	if err != nil {
		h.fail(w, "admin products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// AdminStats возвращает агрегаты панели.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Console.DashboardStats(r.Context())
	if err != nil {
		h.fail(w, "admin stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	id := model.ID(chi.URLParam(r, "id"))
	if err := h.engine.Console.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		h.fail(w, "update order status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUserRole меняет роль пользователя.
func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	id := model.ID(chi.URLParam(r, "id"))
	if err := h.engine.Console.UpdateUserRole(r.Context(), id, req.Role); err != nil {
		h.fail(w, "update user role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		badRequest(w)
		return
	}

	p, err := h.engine.Console.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct изменяет товар каталога.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	id := model.ID(chi.URLParam(r, "id"))
	p, err := h.engine.Console.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct удаляет товар из каталога.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	if err := h.engine.Console.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
