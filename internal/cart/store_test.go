package cart

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/backendtest"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

const testEmail = "ann@example.com"

func newTestCart(t *testing.T) (*Store, *backendtest.Server) {
	t.Helper()

	backend := backendtest.New()
	t.Cleanup(backend.Close)

	backend.AddUser("Ann", testEmail, "secret1", model.RoleUser)
	backend.AddProduct("p1", "Mug", "10", 10)
	backend.AddProduct("p2", "Plate", "4.50", 3)

	storage := repository.NewMemoryStorage()
	require.NoError(t, storage.Set(context.Background(), repository.KeyCredential, backend.Token(testEmail)))

	client := apiclient.NewClient(backend.APIURL(), storage)
	return NewStore(client, nil), backend
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []model.CartItem
	}{
		{
			name: "nested items with product",
			body: `{"data":{"items":[{"id":1,"product_id":"p1","quantity":2,"product":{"name":"Mug","price":10,"image_url":"m.png"}}]}}`,
			want: []model.CartItem{{ID: "1", ProductID: "p1", Name: "Mug", Price: decimal.NewFromInt(10), Image: "m.png", Quantity: 2}},
		},
		{
			name: "cartItems key and camel case",
			body: `{"data":{"cartItems":[{"id":"c1","productId":"p2","name":"Plate","price":"4.5","image":"p.png","quantity":1}]}}`,
			want: []model.CartItem{{ID: "c1", ProductID: "p2", Name: "Plate", Price: decimal.RequireFromString("4.5"), Image: "p.png", Quantity: 1}},
		},
		{
			name: "flat items",
			body: `{"items":[{"id":"c1","product_id":"p1","quantity":3,"product":{"name":"Mug","price":1,"imageUrl":"alt.png"}}]}`,
			want: []model.CartItem{{ID: "c1", ProductID: "p1", Name: "Mug", Price: decimal.NewFromInt(1), Image: "alt.png", Quantity: 3}},
		},
		{
			name: "missing fields get defaults",
			body: `{"data":{"items":[{"id":"c9"}]}}`,
			want: []model.CartItem{{ID: "c9", Name: UnknownProductName, Price: decimal.Zero, Quantity: 1}},
		},
		{
			name: "unknown envelope is empty",
			body: `{"data":{"basket":[{"id":"c1"}]}}`,
			want: []model.CartItem{},
		},
		{
			name: "bare array",
			body: `[{"id":"c1","product_id":"p1","quantity":1,"price":2}]`,
			want: []model.CartItem{{ID: "c1", ProductID: "p1", Name: UnknownProductName, Price: decimal.NewFromInt(2), Quantity: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].ID, got[i].ID)
				assert.Equal(t, tt.want[i].ProductID, got[i].ProductID)
				assert.Equal(t, tt.want[i].Name, got[i].Name)
				assert.True(t, tt.want[i].Price.Equal(got[i].Price), "price %s != %s", got[i].Price, tt.want[i].Price)
				assert.Equal(t, tt.want[i].Image, got[i].Image)
				assert.Equal(t, tt.want[i].Quantity, got[i].Quantity)
			}
		})
	}
}

func TestAddItem_RoundTrip(t *testing.T) {
	s, backend := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	require.NoError(t, s.AddItem(ctx, "p1", 1))

	items := s.Items()
	require.Len(t, items, 1, "server merges lines of the same product")
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, decimal.NewFromInt(20).Equal(s.Total()), "total = %s", s.Total())
	assert.Equal(t, 2, s.Count())
	assert.False(t, s.State().IsLoading)

	lines := backend.CartLines(testEmail)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAddItem_ClampsQuantity(t *testing.T) {
	s, backend := newTestCart(t)

	require.NoError(t, s.AddItem(context.Background(), "p2", 0))

	lines := backend.CartLines(testEmail)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestFetchCart_UsesLatestPrice(t *testing.T) {
	s, backend := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	backend.SetPrice("p1", "12.25")
	require.NoError(t, s.FetchCart(ctx))

	assert.True(t, decimal.RequireFromString("12.25").Equal(s.Total()))
}

func TestFetchCart_Envelopes(t *testing.T) {
	for _, e := range []backendtest.CartEnvelope{
		backendtest.EnvelopeNested,
		backendtest.EnvelopeCartItems,
		backendtest.EnvelopeFlat,
		backendtest.EnvelopeBare,
	} {
		t.Run(string(e), func(t *testing.T) {
			s, backend := newTestCart(t)
			ctx := context.Background()

			require.NoError(t, s.AddItem(ctx, "p2", 2))
			backend.SetCartEnvelope(e)
			require.NoError(t, s.FetchCart(ctx))

			items := s.Items()
			require.Len(t, items, 1)
			assert.Equal(t, "Plate", items[0].Name)
			assert.Equal(t, 2, items[0].Quantity)
		})
	}
}

func TestFetchCart_UnauthorizedIsSilent(t *testing.T) {
	s, backend := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	require.Len(t, s.Items(), 1)

	backend.Fail(http.MethodGet, "/cart", http.StatusUnauthorized, "Invalid token")

	assert.NoError(t, s.FetchCart(ctx))
	assert.Empty(t, s.Items())
}

func TestFetchCart_ServerErrorResetsAndReports(t *testing.T) {
	s, backend := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	backend.Fail(http.MethodGet, "/cart", http.StatusInternalServerError, "db down")

	err := s.FetchCart(ctx)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apiclient.StatusCode(err))
	assert.Empty(t, s.Items())
	assert.False(t, s.State().IsLoading)
}

func TestFetchCart_CancelledContextDiscardsResult(t *testing.T) {
	s, _ := newTestCart(t)
	require.NoError(t, s.AddItem(context.Background(), "p1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.FetchCart(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.Items(), 1)
}

func TestUpdateQuantity_FailureShowsServerValue(t *testing.T) {
	s, _ := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p2", 1))
	id := s.Items()[0].ID

	err := s.UpdateQuantity(ctx, id, 99)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))
	assert.Equal(t, "Insufficient stock", apiclient.Message(err))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)

	require.NoError(t, s.UpdateQuantity(ctx, id, 3))
	assert.Equal(t, 3, s.Items()[0].Quantity)
}

func TestRemoveItem(t *testing.T) {
	s, backend := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	require.NoError(t, s.AddItem(ctx, "p2", 1))
	require.Len(t, s.Items(), 2)

	var mugID model.ID
	for _, it := range s.Items() {
		if it.ProductID == "p1" {
			mugID = it.ID
		}
	}
	require.NoError(t, s.RemoveItem(ctx, mugID))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, model.ID("p2"), items[0].ProductID)
	assert.Len(t, backend.CartLines(testEmail), 1)
}

func TestClearCartLocally(t *testing.T) {
	s, backend := newTestCart(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "p1", 1))
	calls := len(backend.Calls())

	s.ClearCartLocally()

	assert.True(t, s.IsEmpty())
	assert.True(t, s.Total().IsZero())
	assert.Len(t, backend.Calls(), calls, "clear must not hit the network")
	assert.Len(t, backend.CartLines(testEmail), 1, "server cart is untouched")
}

func TestNormalize_KeepsValidLinesNextToOddOnes(t *testing.T) {
	body := `{"data":{"items":[
		{"id":"c1","product_id":"p1","quantity":2,"product":{"name":"Mug","price":10}},
		{"id":"c2","product_id":"p2","quantity":"3","price":"4.5"},
		{"id":"c3","product_id":"p3","quantity":null,"price":"n/a"},
		"garbage",
		{"id":{"nested":true}}
	]}}`

	got, err := Normalize([]byte(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedItem)
	assert.Contains(t, err.Error(), "cart item 3")

	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Quantity)
	assert.Equal(t, 3, got[1].Quantity)
	assert.True(t, decimal.RequireFromString("4.5").Equal(got[1].Price))
	assert.Equal(t, 1, got[2].Quantity)
	assert.True(t, got[2].Price.IsZero())
}

type staticGateway struct {
	body []byte
}

func (g staticGateway) Get(ctx context.Context, path string) (*apiclient.Response, error) {
	return &apiclient.Response{Method: http.MethodGet, Path: path, StatusCode: http.StatusOK, Body: g.body}, nil
}

func (g staticGateway) Post(ctx context.Context, path string, body any) (*apiclient.Response, error) {
	return g.Get(ctx, path)
}

func (g staticGateway) Patch(ctx context.Context, path string, body any) (*apiclient.Response, error) {
	return g.Get(ctx, path)
}

func (g staticGateway) Delete(ctx context.Context, path string) (*apiclient.Response, error) {
	return g.Get(ctx, path)
}

func TestFetchCart_SkipsMalformedLines(t *testing.T) {
	s := NewStore(staticGateway{body: []byte(`{"data":{"items":[{"id":"c1","product_id":"p1","quantity":2,"price":5},42]}}`)}, nil)

	require.NoError(t, s.FetchCart(context.Background()))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, model.ID("c1"), items[0].ID)
	assert.True(t, decimal.NewFromInt(10).Equal(s.Total()))
}
