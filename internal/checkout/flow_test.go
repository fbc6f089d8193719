package checkout

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/backendtest"
	"github.com/mmeshcher/storefront-client/internal/cart"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

const testEmail = "ann@example.com"

type redirects struct {
	mu      sync.Mutex
	targets []string
}

func (r *redirects) Redirect(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
}

func (r *redirects) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

type fixture struct {
	backend *backendtest.Server
	client  *apiclient.Client
	cart    *cart.Store
	redir   *redirects
	flow    *Flow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := backendtest.New()
	t.Cleanup(backend.Close)
	backend.AddUser("Ann", testEmail, "secret1", model.RoleUser)
	backend.AddProduct("p1", "Mug", "10", 10)

	storage := repository.NewMemoryStorage()
	require.NoError(t, storage.Set(context.Background(), repository.KeyCredential, backend.Token(testEmail)))

	client := apiclient.NewClient(backend.APIURL(), storage)
	c := cart.NewStore(client, nil)
	r := &redirects{}

	return &fixture{
		backend: backend,
		client:  client,
		cart:    c,
		redir:   r,
		flow:    NewFlow(client, c, r, nil),
	}
}

func (f *fixture) fillCart(t *testing.T, qty int) {
	t.Helper()
	require.NoError(t, f.cart.AddItem(context.Background(), "p1", qty))
}

func TestBegin_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.flow.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusEmptyCart, st.Status)

	_, err = f.flow.PlaceOrder(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, f.backend.Orders())
	assert.NotContains(t, f.backend.Calls(), "POST /orders/from-cart")
}

func TestPlaceOrder_CartEmptiedAfterReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.AddAddress(testEmail, model.Address{FullName: "Ann", City: "Dhaka"})
	f.fillCart(t, 1)

	st, err := f.flow.Begin(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusReview, st.Status)

	f.cart.ClearCartLocally()

	st, err = f.flow.PlaceOrder(ctx)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StatusEmptyCart, st.Status)
	assert.NotContains(t, f.backend.Calls(), "POST /orders/from-cart")
}

func TestBegin_SelectsDefaultAddress(t *testing.T) {
	f := newFixture(t)
	f.backend.AddAddress(testEmail, model.Address{ID: "a1", FullName: "Ann", City: "Dhaka"})
	f.backend.AddAddress(testEmail, model.Address{ID: "a2", FullName: "Ann", City: "Sylhet", IsDefault: true})
	f.fillCart(t, 1)

	st, err := f.flow.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusReview, st.Status)
	assert.Len(t, st.Addresses, 2)
	assert.Equal(t, model.ID("a2"), st.SelectedAddressID)
	assert.False(t, st.NeedsAddress)

	require.NoError(t, f.flow.SelectAddress("a1"))
	assert.Equal(t, model.ID("a1"), f.flow.State().SelectedAddressID)

	assert.ErrorIs(t, f.flow.SelectAddress("zzz"), ErrUnknownAddress)
	assert.Equal(t, model.ID("a1"), f.flow.State().SelectedAddressID)
}

func TestBegin_FirstAddressWithoutDefault(t *testing.T) {
	f := newFixture(t)
	f.backend.AddAddress(testEmail, model.Address{ID: "a1", FullName: "Ann"})
	f.backend.AddAddress(testEmail, model.Address{ID: "a2", FullName: "Ann"})
	f.fillCart(t, 1)

	st, err := f.flow.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ID("a1"), st.SelectedAddressID)
}

func TestPlaceOrder_NoAddress(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, 1)
	ctx := context.Background()

	st, err := f.flow.Begin(ctx)
	require.NoError(t, err)
	assert.True(t, st.NeedsAddress)

	st, err = f.flow.PlaceOrder(ctx)
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Equal(t, StatusReview, st.Status)
	assert.Zero(t, f.backend.Orders())
}

func TestPlaceOrder_RedirectsToProvider(t *testing.T) {
	f := newFixture(t)
	f.backend.AddAddress(testEmail, model.Address{ID: "a1", FullName: "Ann", IsDefault: true})
	f.fillCart(t, 2)
	ctx := context.Background()

	_, err := f.flow.Begin(ctx)
	require.NoError(t, err)

	st, err := f.flow.PlaceOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRedirected, st.Status)
	assert.NotEmpty(t, st.OrderID)

	targets := f.redir.all()
	require.Len(t, targets, 1)
	assert.True(t, strings.HasPrefix(targets[0], "https://pay.example/checkout"))
	assert.Contains(t, targets[0], st.OrderID.String())
	assert.Equal(t, 1, f.backend.Orders())

	assert.Len(t, f.cart.Items(), 1, "local cart is only cleared on confirmation")

	st = f.flow.CompleteSuccess(url.Values{"trxID": {"TRX-42"}})
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "TRX-42", st.TransactionID)
	assert.True(t, f.cart.IsEmpty())
}

func TestPlaceOrder_OrderFailureReturnsToReview(t *testing.T) {
	f := newFixture(t)
	f.backend.AddAddress(testEmail, model.Address{ID: "a1", FullName: "Ann", IsDefault: true})
	f.fillCart(t, 2)
	ctx := context.Background()

	_, err := f.flow.Begin(ctx)
	require.NoError(t, err)

	f.backend.Fail(http.MethodPost, "/orders/from-cart", http.StatusBadRequest, "Product out of stock")

	st, err := f.flow.PlaceOrder(ctx)
	require.Error(t, err)
	assert.Equal(t, "Product out of stock", apiclient.Message(err))
	assert.Equal(t, StatusReview, st.Status)
	assert.Equal(t, "Product out of stock", st.LastError)
	assert.Equal(t, model.ID("a1"), st.SelectedAddressID)
	assert.Empty(t, f.redir.all())

	items := f.cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.NotContains(t, f.backend.Calls(), "POST /payments/init")
}

func TestPlaceOrder_PaymentInitFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.AddAddress(testEmail, model.Address{ID: "a1", FullName: "Ann", IsDefault: true})
	f.fillCart(t, 1)
	ctx := context.Background()

	_, err := f.flow.Begin(ctx)
	require.NoError(t, err)

	f.backend.Fail(http.MethodPost, "/payments/init", http.StatusBadGateway, "bKash unavailable")

	st, err := f.flow.PlaceOrder(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "bKash unavailable", st.FailureMessage)
	assert.NotEmpty(t, st.OrderID, "order was created and is not rolled back")
	assert.Equal(t, 1, f.backend.Orders())
	assert.Empty(t, f.redir.all())

	calls := 0
	for _, c := range f.backend.Calls() {
		if c == "POST /payments/init" {
			calls++
		}
	}
	assert.Equal(t, 1, calls, "payment init is not retried")
}

func TestPlaceOrder_MissingRedirectURL(t *testing.T) {
	gw := &stubGateway{responses: map[string]string{
		"GET /addresses":         `{"data":[{"id":"a1","fullName":"Ann","isDefault":true}]}`,
		"POST /orders/from-cart": `{"data":{"id":"o1","status":"PENDING"}}`,
		"POST /payments/init":    `{"data":{"paymentID":"x"}}`,
	}}
	c := &stubCart{items: []model.CartItem{{ID: "c1", Price: decimal.NewFromInt(5), Quantity: 1}}}
	r := &redirects{}
	flow := NewFlow(gw, c, r, nil)
	ctx := context.Background()

	_, err := flow.Begin(ctx)
	require.NoError(t, err)

	st, err := flow.PlaceOrder(ctx)
	assert.ErrorIs(t, err, ErrPaymentInit)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "Payment initialization failed", st.FailureMessage)
	assert.Equal(t, model.ID("o1"), st.OrderID)
	assert.Empty(t, r.all())
}

func TestCompleteFailure_KeepsCartAndAllowsRetry(t *testing.T) {
	f := newFixture(t)
	f.backend.AddAddress(testEmail, model.Address{ID: "a1", FullName: "Ann", IsDefault: true})
	f.backend.AddProduct("p2", "Plate", "5", 10)
	f.fillCart(t, 1)
	require.NoError(t, f.cart.AddItem(context.Background(), "p2", 1))
	ctx := context.Background()

	st := f.flow.CompleteFailure(url.Values{"message": {"Insufficient funds"}})
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "Insufficient funds", st.FailureMessage)
	assert.Len(t, f.cart.Items(), 2)

	st, err := f.flow.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusReview, st.Status)
	assert.Empty(t, st.FailureMessage)

	_, err = f.flow.Retry(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteFailure_DefaultMessage(t *testing.T) {
	f := newFixture(t)

	st := f.flow.CompleteFailure(url.Values{})
	assert.Equal(t, "Something went wrong with your payment.", st.FailureMessage)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, 2)

	sum := f.flow.Summary()
	assert.True(t, decimal.NewFromInt(20).Equal(sum.Subtotal))
	assert.True(t, decimal.NewFromInt(60).Equal(sum.ShippingFee))
	assert.True(t, decimal.NewFromInt(80).Equal(sum.Total))
	assert.Equal(t, 2, sum.ItemCount)
}

func TestAddresses_Lifecycle(t *testing.T) {
	f := newFixture(t)
	book := f.flow.Addresses()
	ctx := context.Background()

	created, err := book.Create(ctx, model.Address{FullName: "Ann", City: "Dhaka", IsDefault: true})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := book.Update(ctx, created.ID, model.Address{FullName: "Ann B", City: "Khulna"})
	require.NoError(t, err)
	assert.Equal(t, "Khulna", updated.City)

	list, err := book.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ann B", list[0].FullName)

	require.NoError(t, book.Delete(ctx, created.ID))
	list, err = book.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = book.Create(ctx, model.Address{})
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))
}

type stubGateway struct {
	responses map[string]string
}

func (g *stubGateway) respond(method, path string) (*apiclient.Response, error) {
	body, ok := g.responses[method+" "+path]
	if !ok {
		return nil, &apiclient.StatusError{Method: method, Path: path, StatusCode: http.StatusNotFound}
	}
	return &apiclient.Response{Method: method, Path: path, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (g *stubGateway) Get(_ context.Context, path string) (*apiclient.Response, error) {
	return g.respond(http.MethodGet, path)
}

func (g *stubGateway) Post(_ context.Context, path string, _ any) (*apiclient.Response, error) {
	return g.respond(http.MethodPost, path)
}

func (g *stubGateway) Patch(_ context.Context, path string, _ any) (*apiclient.Response, error) {
	return g.respond(http.MethodPatch, path)
}

func (g *stubGateway) Delete(_ context.Context, path string) (*apiclient.Response, error) {
	return g.respond(http.MethodDelete, path)
}

type stubCart struct {
	items []model.CartItem
}

func (c *stubCart) Items() []model.CartItem { return c.items }

func (c *stubCart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (c *stubCart) IsEmpty() bool { return len(c.items) == 0 }

func (c *stubCart) ClearCartLocally() { c.items = nil }
