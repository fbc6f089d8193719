// Package backendtest поднимает в процессе REST-бэкенд витрины для тестов клиента.
package backendtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront-client/internal/model"
)

// APIPrefix является общим префиксом путей API.
const APIPrefix = "/api/v1"

// CartEnvelope определяет форму обёртки ответа GET /cart.
type CartEnvelope string

const (
	EnvelopeNested    CartEnvelope = "nested"    // {"data":{"items":[...]}}
	EnvelopeCartItems CartEnvelope = "cartItems" // {"data":{"cartItems":[...]}}
	EnvelopeFlat      CartEnvelope = "flat"      // {"items":[...]}
	EnvelopeBare      CartEnvelope = "bare"      // [...]
)

type account struct {
	user         model.User
	passwordHash []byte
}

type product struct {
	id    string
	name  string
	price decimal.Decimal
	image string
	stock int
}

// Line описывает строку корзины на стороне сервера.
type Line struct {
	ID        string
	ProductID string
	Quantity  int
}

type failure struct {
	status  int
	message string
}

// Server эмулирует бэкенд витрины в тестах. Безопасен для конкурентного использования.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	secret    []byte
	accounts  map[string]*account
	products  map[string]*product
	carts     map[model.ID][]*Line
	addresses map[model.ID][]model.Address
	orders    map[string]model.Order
	ownerOf   map[string]model.ID
	failures  map[string]failure
	resets    map[string]string
	envelope  CartEnvelope

	omitLoginUser bool
	calls     []string
	nextUser  int
}

// New запускает тестовый бэкенд.
func New() *Server {
	s := &Server{
		secret:    []byte("backendtest-secret"),
		accounts:  make(map[string]*account),
		products:  make(map[string]*product),
		carts:     make(map[model.ID][]*Line),
		addresses: make(map[model.ID][]model.Address),
		orders:    make(map[string]model.Order),
		ownerOf:   make(map[string]model.ID),
		failures:  make(map[string]failure),
		resets:    make(map[string]string),
		envelope:  EnvelopeNested,
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// APIURL возвращает базовый адрес API.
func (s *Server) APIURL() string {
	return s.URL + APIPrefix
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)
		r.Post("/auth/password-reset/request", s.requestReset)
		r.Post("/auth/password-reset/confirm", s.confirmReset)
		r.Get("/products", s.listProducts)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/profile", s.profile)
			r.Patch("/auth/profile", s.updateProfile)

			r.Get("/cart", s.getCart)
			r.Post("/cart/items", s.addCartItem)
			r.Patch("/cart/items/{id}", s.updateCartItem)
			r.Delete("/cart/items/{id}", s.deleteCartItem)

			r.Get("/addresses", s.listAddresses)
			r.Post("/addresses", s.createAddress)
			r.Patch("/addresses/{id}", s.updateAddress)
			r.Delete("/addresses/{id}", s.deleteAddress)

			r.Post("/orders/from-cart", s.orderFromCart)
			r.Get("/orders/my", s.myOrders)
			r.Get("/orders/{id}", s.getOrder)
			r.Patch("/orders/{id}/cancel", s.cancelOrder)
			r.Post("/payments/init", s.initPayment)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/admin/orders", s.adminOrders)
				r.Patch("/admin/orders/{id}/status", s.adminOrderStatus)
				r.Get("/admin/users", s.adminUsers)
				r.Patch("/admin/users/{id}/role", s.adminUserRole)
				r.Get("/admin/dashboard/stats", s.adminStats)

				r.Post("/products", s.createProduct)
				r.Patch("/products/{id}", s.updateProduct)
				r.Delete("/products/{id}", s.deleteProduct)
			})
		})
	})

	return r
}

// AddUser регистрирует пользователя напрямую в хранилище бэкенда.
func (s *Server) AddUser(name, email, password string, role model.Role) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(name, email, password, role)
}

func (s *Server) addUserLocked(name, email, password string, role model.Role) model.User {
	s.nextUser++
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := model.User{
		ID:        model.ID("u" + strconv.Itoa(s.nextUser)),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.accounts[strings.ToLower(email)] = &account{user: u, passwordHash: hash}
	return u
}

// SetRole меняет роль пользователя.
func (s *Server) SetRole(email string, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		a.user.Role = role
	}
}

// AddProduct добавляет товар в каталог.
func (s *Server) AddProduct(id, name, price string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &product{
		id:    id,
		name:  name,
		price: decimal.RequireFromString(price),
		image: "https://img.example/" + id + ".png",
		stock: stock,
	}
}

// SetPrice меняет текущую цену товара. Цена в корзине не фиксируется при добавлении.
func (s *Server) SetPrice(id, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.price = decimal.RequireFromString(price)
	}
}

// AddAddress добавляет адрес пользователю.
func (s *Server) AddAddress(email string, addr model.Address) model.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[strings.ToLower(email)]
	if addr.ID == "" {
		addr.ID = model.ID(uuid.NewString())
	}
	s.addresses[a.user.ID] = append(s.addresses[a.user.ID], addr)
	return addr
}

// CartLines возвращает копию серверной корзины пользователя.
func (s *Server) CartLines(email string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[strings.ToLower(email)]
	if a == nil {
		return nil
	}
	res := make([]Line, 0, len(s.carts[a.user.ID]))
	for _, l := range s.carts[a.user.ID] {
		res = append(res, *l)
	}
	return res
}

// Orders возвращает число созданных заказов.
func (s *Server) Orders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// AddOrder создаёт заказ пользователя напрямую в хранилище бэкенда.
func (s *Server) AddOrder(email string, status model.OrderStatus, total string) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[strings.ToLower(email)]
	o := model.Order{
		ID:          model.ID(uuid.NewString()),
		Status:      status,
		TotalAmount: decimal.RequireFromString(total),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	s.orders[o.ID.String()] = o
	s.ownerOf[o.ID.String()] = a.user.ID
	return o
}

// SetCartEnvelope задаёт форму обёртки ответа корзины.
func (s *Server) SetCartEnvelope(e CartEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelope = e
}

// Fail заставляет бэкенд отвечать status на запрос method path (путь без префикса API).
func (s *Server) Fail(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, message: message}
}

// ClearFailures снимает все внедрённые ошибки.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Calls возвращает журнал запросов в виде "METHOD /path".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]string, len(s.calls))
	copy(res, s.calls)
	return res
}

// Token выпускает действительный токен пользователя.
func (s *Server) Token(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[strings.ToLower(email)]
	if a == nil {
		return ""
	}
	token, _ := s.issueToken(a.user)
	return token
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+strings.TrimPrefix(r.URL.Path, APIPrefix))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+strings.TrimPrefix(r.URL.Path, APIPrefix)]
		s.mu.Unlock()
		if ok {
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(u model.User) (string, error) {
	c := claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

type ctxKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		c := &claims{}
		token, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		s.mu.Lock()
		a := s.accountByIDLocked(model.ID(c.Subject))
		s.mu.Unlock()
		if a == nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithAccount(r, a)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		role := current(r).user.Role
		s.mu.Unlock()
		if role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[strings.ToLower(req.Email)]; exists {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	u := s.addUserLocked(req.Name, req.Email, req.Password, model.RoleUser)
	writeJSON(w, http.StatusCreated, map[string]any{"data": u})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	a := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if a == nil || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.issueToken(a.user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	s.mu.Lock()
	omit := s.omitLoginUser
	s.mu.Unlock()
	if omit {
		writeJSON(w, http.StatusOK, map[string]any{"token": token})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": a.user})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := current(r).user
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": u})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := current(r).user.ID
	raw := make([]map[string]any, 0, len(s.carts[uid]))
	for _, l := range s.carts[uid] {
		p := s.products[l.ProductID]
		rec := map[string]any{
			"id":         l.ID,
			"product_id": l.ProductID,
			"quantity":   l.Quantity,
		}
		if p != nil {
			rec["product"] = map[string]any{
				"name":      p.name,
				"price":     p.price.InexactFloat64(),
				"image_url": p.image,
			}
		}
		raw = append(raw, rec)
	}

	switch s.envelope {
	case EnvelopeCartItems:
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"cartItems": raw}})
	case EnvelopeFlat:
		writeJSON(w, http.StatusOK, map[string]any{"items": raw})
	case EnvelopeBare:
		writeJSON(w, http.StatusOK, raw)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"items": raw}})
	}
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID model.ID `json:"product_id"`
		Quantity  int      `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.products[req.ProductID.String()]
	if p == nil {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	uid := current(r).user.ID
	for _, l := range s.carts[uid] {
		if l.ProductID == p.id {
			if l.Quantity+req.Quantity > p.stock {
				writeError(w, http.StatusBadRequest, "Insufficient stock")
				return
			}
			l.Quantity += req.Quantity
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": l.ID}})
			return
		}
	}

	if req.Quantity > p.stock {
		writeError(w, http.StatusBadRequest, "Insufficient stock")
		return
	}
	l := &Line{ID: uuid.NewString(), ProductID: p.id, Quantity: req.Quantity}
	s.carts[uid] = append(s.carts[uid], l)
	writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": l.ID}})
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid := current(r).user.ID
	id := chi.URLParam(r, "id")
	for _, l := range s.carts[uid] {
		if l.ID == id {
			if p := s.products[l.ProductID]; p != nil && req.Quantity > p.stock {
				writeError(w, http.StatusBadRequest, "Insufficient stock")
				return
			}
			l.Quantity = req.Quantity
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": l.ID}})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Cart item not found")
}

func (s *Server) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := current(r).user.ID
	id := chi.URLParam(r, "id")
	lines := s.carts[uid]
	for i, l := range lines {
		if l.ID == id {
			s.carts[uid] = append(lines[:i], lines[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Cart item not found")
}

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.addresses[current(r).user.ID]
	if list == nil {
		list = []model.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (s *Server) createAddress(w http.ResponseWriter, r *http.Request) {
	var addr model.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil || addr.FullName == "" {
		writeError(w, http.StatusBadRequest, "Full name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid := current(r).user.ID
	addr.ID = model.ID(uuid.NewString())
	if addr.IsDefault {
		for i := range s.addresses[uid] {
			s.addresses[uid][i].IsDefault = false
		}
	}
	s.addresses[uid] = append(s.addresses[uid], addr)
	writeJSON(w, http.StatusCreated, map[string]any{"data": addr})
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	var patch model.Address
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid := current(r).user.ID
	id := model.ID(chi.URLParam(r, "id"))
	for i, a := range s.addresses[uid] {
		if a.ID == id {
			patch.ID = id
			s.addresses[uid][i] = patch
			writeJSON(w, http.StatusOK, map[string]any{"data": patch})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Address not found")
}

func (s *Server) deleteAddress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := current(r).user.ID
	id := model.ID(chi.URLParam(r, "id"))
	list := s.addresses[uid]
	for i, a := range list {
		if a.ID == id {
			s.addresses[uid] = append(list[:i], list[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Address not found")
}

func (s *Server) orderFromCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AddressID model.ID `json:"addressId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AddressID == "" {
		writeError(w, http.StatusBadRequest, "Address is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid := current(r).user.ID
	var shipping *model.Address
	for _, a := range s.addresses[uid] {
		if a.ID == req.AddressID {
			shipping = &a
		}
	}
	if shipping == nil {
		writeError(w, http.StatusBadRequest, "Address not found")
		return
	}
	if len(s.carts[uid]) == 0 {
		writeError(w, http.StatusBadRequest, "Cart is empty")
		return
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(s.carts[uid]))
	for _, l := range s.carts[uid] {
		if p := s.products[l.ProductID]; p != nil {
			total = total.Add(p.price.Mul(decimal.NewFromInt(int64(l.Quantity))))
			items = append(items, model.OrderItem{
				ID:       model.ID(uuid.NewString()),
				Quantity: l.Quantity,
				Price:    p.price,
				Product:  &model.Product{ID: model.ID(p.id), Name: p.name, Price: p.price, ImageURL: p.image},
			})
		}
	}

	o := model.Order{
		ID:              model.ID(uuid.NewString()),
		Status:          model.OrderStatusPending,
		TotalAmount:     total,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		Items:           items,
		ShippingAddress: shipping,
	}
	s.orders[o.ID.String()] = o
	s.ownerOf[o.ID.String()] = uid
	s.carts[uid] = nil

	writeJSON(w, http.StatusCreated, map[string]any{"data": o})
}

func (s *Server) initPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID model.ID `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerOf[req.OrderID.String()] != current(r).user.ID {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"paymentID": "pay-" + req.OrderID.String(),
			"bkashURL":  "https://pay.example/checkout?order=" + req.OrderID.String(),
		},
	})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("search"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]map[string]any, 0)
	for _, p := range s.products {
		if q != "" && !strings.Contains(strings.ToLower(p.name), q) {
			continue
		}
		res = append(res, productJSON(p))
		if limit > 0 && len(res) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"products": res}})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := &product{id: uuid.NewString(), name: req.Name, price: req.Price, image: req.ImageURL, stock: req.Stock}
	s.products[p.id] = p
	writeJSON(w, http.StatusCreated, map[string]any{"data": productJSON(p)})
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[chi.URLParam(r, "id")]
	if p == nil {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if req.Name != "" {
		p.name = req.Name
	}
	if !req.Price.IsZero() {
		p.price = req.Price
	}
	p.stock = req.Stock
	writeJSON(w, http.StatusOK, map[string]any{"data": productJSON(p)})
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := s.products[id]; !ok {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	delete(s.products, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		list = append(list, o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"orders": list}})
}

func (s *Server) adminOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	o, ok := s.orders[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	o.Status = req.Status
	s.orders[id] = o
	writeJSON(w, http.StatusOK, map[string]any{"data": o})
}

func (s *Server) adminUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]model.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a.user)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"users": list}})
}

func (s *Server) adminUserRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role model.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.ID(chi.URLParam(r, "id"))
	for _, a := range s.accounts {
		if a.user.ID == id {
			a.user.Role = req.Role
			writeJSON(w, http.StatusOK, map[string]any{"data": a.user})
			return
		}
	}
	writeError(w, http.StatusNotFound, "User not found")
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := model.DashboardStats{
		TotalOrders:   len(s.orders),
		TotalRevenue:  decimal.Zero,
		TotalUsers:    len(s.accounts),
		TotalProducts: len(s.products),
		RecentOrders:  []model.Order{},
	}
	for _, o := range s.orders {
		stats.TotalRevenue = stats.TotalRevenue.Add(o.TotalAmount)
		if o.Status == model.OrderStatusPending {
			stats.PendingOrders++
		}
		stats.RecentOrders = append(stats.RecentOrders, o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func productJSON(p *product) map[string]any {
	return map[string]any{
		"id":        p.id,
		"name":      p.name,
		"price":     p.price.InexactFloat64(),
		"stock":     p.stock,
		"image_url": p.image,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// ErrUnknownUser возвращается помощниками, если пользователь не зарегистрирован.
var ErrUnknownUser = errors.New("unknown user")

// UserID возвращает идентификатор пользователя по email.
func (s *Server) UserID(email string) (model.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[strings.ToLower(email)]
	if a == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, email)
	}
	return a.user.ID, nil
}

func contextWithAccount(r *http.Request, a *account) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, a)
}

func current(r *http.Request) *account {
	a, _ := r.Context().Value(ctxKey{}).(*account)
	if a == nil {
		return &account{}
	}
	return a
}

// OmitLoginUser включает ответы на вход, содержащие только токен.
func (s *Server) OmitLoginUser(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitLoginUser = omit
}

// ResetToken возвращает последний выданный токен сброса пароля для email.
func (s *Server) ResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.resets {
		if strings.EqualFold(e, email) {
			return token
		}
	}
	return ""
}

// OrderStatus возвращает статус заказа на стороне сервера.
func (s *Server) OrderStatus(id model.ID) model.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id.String()].Status
}

func (s *Server) accountByIDLocked(id model.ID) *account {
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		CurrentPassword string `json:"currentPassword"`
		Password        string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := current(r)
	if req.Password != "" {
		if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.CurrentPassword)) != nil {
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		a.passwordHash, _ = bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	}
	if req.Email != "" && !strings.EqualFold(req.Email, a.user.Email) {
		if _, taken := s.accounts[strings.ToLower(req.Email)]; taken {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		delete(s.accounts, strings.ToLower(a.user.Email))
		a.user.Email = req.Email
		s.accounts[strings.ToLower(req.Email)] = a
	}
	if req.Name != "" {
		a.user.Name = req.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": a.user})
}

func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	s.mu.Lock()
	if _, ok := s.accounts[strings.ToLower(req.Email)]; ok {
		s.resets[uuid.NewString()] = req.Email
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "If the email exists, a reset link has been sent"})
}

func (s *Server) confirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.resets[req.Token]
	a := s.accounts[strings.ToLower(email)]
	if !ok || a == nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}
	a.passwordHash, _ = bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	delete(s.resets, req.Token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password has been reset"})
}

func (s *Server) myOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := current(r).user.ID
	list := make([]model.Order, 0)
	for id, o := range s.orders {
		if s.ownerOf[id] == uid {
			list = append(list, o)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (s *Server) ownOrderLocked(r *http.Request) (model.Order, bool) {
	id := chi.URLParam(r, "id")
	o, ok := s.orders[id]
	if !ok || s.ownerOf[id] != current(r).user.ID {
		return model.Order{}, false
	}
	return o, true
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.ownOrderLocked(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": o})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.ownOrderLocked(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	if o.Status != model.OrderStatusPending {
		writeError(w, http.StatusBadRequest, "Only pending orders can be cancelled")
		return
	}
	o.Status = model.OrderStatusCancelled
	s.orders[o.ID.String()] = o
	writeJSON(w, http.StatusOK, map[string]any{"data": o})
}
