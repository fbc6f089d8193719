package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/storefront-client/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware локального API клиента витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/navigation", h.Navigation)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
			r.Post("/check", h.CheckAuth)
			r.Patch("/profile", h.UpdateProfile)
			r.Post("/password", h.ChangePassword)
			r.Post("/password-reset/request", h.RequestPasswordReset)
			r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/refresh", h.RefreshCart)
			r.Post("/items", h.AddCartItem)
			r.Patch("/items/{id}", h.UpdateCartItem)
			r.Delete("/items/{id}", h.RemoveCartItem)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/state", h.AdminState)
			r.Post("/enter", h.EnterAdmin)
			r.Post("/visit", h.VisitAdmin)
			r.Post("/activity", h.AdminActivity)
			r.Post("/leave", h.LeaveAdmin)
			r.Post("/logout", h.AdminLogout)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuthorized)

				r.Get("/orders", h.AdminOrders)
				r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
				r.Get("/users", h.AdminUsers)
				r.Patch("/users/{id}/role", h.UpdateUserRole)
				r.Get("/stats", h.AdminStats)
				r.Get("/products", h.AdminProducts)
				r.Post("/products", h.CreateProduct)
				r.Patch("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)
			})
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.Post("/begin", h.BeginCheckout)
			r.Post("/address", h.SelectAddress)
			r.Post("/place", h.PlaceOrder)
			r.Post("/retry", h.RetryCheckout)

			r.Get("/addresses", h.ListAddresses)
			r.Post("/addresses", h.CreateAddress)
			r.Patch("/addresses/{id}", h.UpdateAddress)
			r.Delete("/addresses/{id}", h.DeleteAddress)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
		})

		r.Get("/payment/success", h.PaymentSuccess)
		r.Get("/payment/failed", h.PaymentFailed)

		r.Route("/search", func(r chi.Router) {
			r.Post("/query", h.TypeQuery)
			r.Get("/suggestions", h.Suggestions)
			r.Get("/recent", h.RecentSearches)
			r.Post("/recent", h.AddRecentSearch)
			r.Delete("/recent", h.ClearRecentSearches)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
