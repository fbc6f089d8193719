// Package checkout ведёт пользователя от просмотра корзины через создание
// заказа и инициализацию оплаты до подтверждения платёжным провайдером.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/model"
)

// Status описывает шаг оформления заказа.
type Status string

const (
	StatusEmptyCart           Status = "EMPTY_CART"
	StatusReview              Status = "REVIEW"
	StatusPlacingOrder        Status = "PLACING_ORDER"
	StatusInitializingPayment Status = "INITIALIZING_PAYMENT"
	StatusRedirected          Status = "REDIRECTED"
	StatusSuccess             Status = "SUCCESS"
	StatusFailed              Status = "FAILED"
)

// ShippingFee задаёт фиксированную стоимость доставки.
var ShippingFee = decimal.NewFromInt(60)

const (
	paymentInitFailed     = "Payment initialization failed"
	defaultPaymentFailure = "Something went wrong with your payment."
	defaultOrderFailure   = "Failed to place order"
)

var (
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("your cart is empty")
	// ErrNoAddress возвращается, если адрес доставки не выбран.
	ErrNoAddress = errors.New("please select a shipping address")
	// ErrUnknownAddress возвращается при выборе адреса, которого нет среди загруженных.
	ErrUnknownAddress = errors.New("unknown shipping address")
	// ErrInvalidState возвращается, если действие недоступно на текущем шаге.
	ErrInvalidState = errors.New("action not allowed in current checkout state")
	// ErrPaymentInit возвращается, если оплату не удалось инициализировать.
	ErrPaymentInit = errors.New(paymentInitFailed)
)

// Cart описывает корзину, которую оформляет Flow.
type Cart interface {
	Items() []model.CartItem
	Total() decimal.Decimal
	IsEmpty() bool
	ClearCartLocally()
}

// Redirector выполняет полный переход на страницу платёжного провайдера.
type Redirector interface {
	Redirect(target string)
}

// Gateway описывает методы API-клиента, нужные оформлению заказа.
type Gateway interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Patch(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Delete(ctx context.Context, path string) (*apiclient.Response, error)
}

// State описывает текущий шаг оформления заказа.
type State struct {
	Status            Status          `json:"status"`
	Addresses         []model.Address `json:"addresses"`
	SelectedAddressID model.ID        `json:"selectedAddressId,omitempty"`
	NeedsAddress      bool            `json:"needsAddress"`
	OrderID           model.ID        `json:"orderId,omitempty"`
	RedirectURL       string          `json:"redirectUrl,omitempty"`
	TransactionID     string          `json:"trxID,omitempty"`
	FailureMessage    string          `json:"failureMessage,omitempty"`
	LastError         string          `json:"lastError,omitempty"`
}

// Summary содержит итоги заказа.
type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shippingFee"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"itemCount"`
}

// Flow ведёт оформление заказа по шагам. Безопасна для конкурентного использования.
type Flow struct {
	api        Gateway
	cart       Cart
	addresses  *Addresses
	redirector Redirector
	logger     *zap.Logger

	mu    sync.Mutex
	state State
}

// NewFlow создаёт оформление заказа для корзины cart.
func NewFlow(api Gateway, cart Cart, redirector Redirector, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		api:        api,
		cart:       cart,
		addresses:  NewAddresses(api, logger),
		redirector: redirector,
		logger:     logger,
		state:      State{Status: StatusEmptyCart, Addresses: []model.Address{}},
	}
}

// State возвращает снимок состояния.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() State {
	st := f.state
	st.Addresses = append([]model.Address(nil), f.state.Addresses...)
	if st.Addresses == nil {
		st.Addresses = []model.Address{}
	}
	return st
}

// Summary считает итоги по текущей корзине.
func (f *Flow) Summary() Summary {
	subtotal := f.cart.Total()
	count := 0
	for _, it := range f.cart.Items() {
		count += it.Quantity
	}
	return Summary{
		Subtotal:    subtotal,
		ShippingFee: ShippingFee,
		Total:       subtotal.Add(ShippingFee),
		ItemCount:   count,
	}
}

// Begin открывает оформление: для пустой корзины шаг EMPTY_CART, иначе загружает
// адреса и выбирает адрес по умолчанию либо первый.
func (f *Flow) Begin(ctx context.Context) (State, error) {
	if f.cart.IsEmpty() {
		f.mu.Lock()
		f.state = State{Status: StatusEmptyCart, Addresses: []model.Address{}}
		st := f.snapshotLocked()
		f.mu.Unlock()
		return st, nil
	}

	list, err := f.addresses.List(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = State{
		Status:            StatusReview,
		Addresses:         list,
		SelectedAddressID: pickAddress(list),
	}
	f.state.NeedsAddress = f.state.SelectedAddressID == ""
	if err != nil {
		f.state.LastError = errorMessage(err, "Failed to fetch addresses")
	}
	return f.snapshotLocked(), err
}

func pickAddress(list []model.Address) model.ID {
	for _, a := range list {
		if a.IsDefault {
			return a.ID
		}
	}
	if len(list) > 0 {
		return list[0].ID
	}
	return ""
}

// SelectAddress выбирает адрес доставки среди загруженных.
func (f *Flow) SelectAddress(id model.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Status != StatusReview {
		return ErrInvalidState
	}
	for _, a := range f.state.Addresses {
		if a.ID == id {
			f.state.SelectedAddressID = id
			f.state.NeedsAddress = false
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownAddress, id)
}

// PlaceOrder создаёт заказ из корзины, инициализирует оплату и перенаправляет
// пользователя к платёжному провайдеру.
func (f *Flow) PlaceOrder(ctx context.Context) (State, error) {
	f.mu.Lock()
	if f.state.Status != StatusReview {
		f.mu.Unlock()
		return f.State(), ErrInvalidState
	}
	if f.cart.IsEmpty() {
		f.state.Status = StatusEmptyCart
		f.mu.Unlock()
		return f.State(), ErrEmptyCart
	}
	addressID := f.state.SelectedAddressID
	if addressID == "" {
		f.state.LastError = ErrNoAddress.Error()
		f.mu.Unlock()
		return f.State(), ErrNoAddress
	}
	f.state.Status = StatusPlacingOrder
	f.state.LastError = ""
	f.mu.Unlock()

	resp, err := f.api.Post(ctx, "/orders/from-cart", map[string]model.ID{"addressId": addressID})
	if err != nil {
		f.logger.Warn("create order error", zap.Error(err))
		f.set(func(st *State) {
			st.Status = StatusReview
			st.LastError = errorMessage(err, defaultOrderFailure)
		})
		return f.State(), fmt.Errorf("create order: %w", err)
	}

	var order model.Order
	if err := resp.Decode(&order); err != nil || order.ID == "" {
		if err == nil {
			err = errors.New("order response has no id")
		}
		f.fail(defaultOrderFailure)
		return f.State(), fmt.Errorf("create order: %w", err)
	}

	f.set(func(st *State) {
		st.Status = StatusInitializingPayment
		st.OrderID = order.ID
	})

	redirectURL, err := f.initPayment(ctx, order.ID)
	if err != nil {
		f.logger.Warn("init payment error", zap.String("orderID", order.ID.String()), zap.Error(err))
		f.fail(errorMessage(err, paymentInitFailed))
		return f.State(), err
	}

	f.set(func(st *State) {
		st.Status = StatusRedirected
		st.RedirectURL = redirectURL
	})
	if f.redirector != nil {
		f.redirector.Redirect(redirectURL)
	}

	f.logger.Info("redirected to payment provider", zap.String("orderID", order.ID.String()))
	return f.State(), nil
}

func (f *Flow) initPayment(ctx context.Context, orderID model.ID) (string, error) {
	resp, err := f.api.Post(ctx, "/payments/init", map[string]model.ID{"order_id": orderID})
	if err != nil {
		return "", fmt.Errorf("init payment: %w", err)
	}

	var payload struct {
		BkashURL string `json:"bkashURL"`
	}
	if err := resp.Decode(&payload); err != nil || payload.BkashURL == "" {
		return "", ErrPaymentInit
	}
	return payload.BkashURL, nil
}

// CompleteSuccess обрабатывает возврат от провайдера после успешной оплаты.
// Корзина очищается локально.
func (f *Flow) CompleteSuccess(query url.Values) State {
	f.cart.ClearCartLocally()
	f.set(func(st *State) {
		st.Status = StatusSuccess
		st.TransactionID = query.Get("trxID")
		st.FailureMessage = ""
	})
	return f.State()
}

// CompleteFailure обрабатывает возврат от провайдера после неудачной оплаты. Корзина не меняется.
func (f *Flow) CompleteFailure(query url.Values) State {
	msg := query.Get("message")
	if msg == "" {
		msg = defaultPaymentFailure
	}
	f.fail(msg)
	return f.State()
}

// Retry начинает оформление заново после неудачи.
func (f *Flow) Retry(ctx context.Context) (State, error) {
	f.mu.Lock()
	status := f.state.Status
	f.mu.Unlock()

	if status != StatusFailed {
		return f.State(), ErrInvalidState
	}
	return f.Begin(ctx)
}

// Addresses возвращает адресную книгу пользователя.
func (f *Flow) Addresses() *Addresses {
	return f.addresses
}

func (f *Flow) set(mutate func(*State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(&f.state)
}

func (f *Flow) fail(reason string) {
	f.set(func(st *State) {
		st.Status = StatusFailed
		st.FailureMessage = reason
	})
}

func errorMessage(err error, fallback string) string {
	if msg := apiclient.Message(err); msg != "" {
		return msg
	}
	if errors.Is(err, ErrPaymentInit) {
		return paymentInitFailed
	}
	return fallback
}
