// Package cart синхронизирует локальную корзину с корзиной на сервере.
//
// Сервер считается источником истины: после каждой мутации корзина
// перечитывается целиком, локальных оптимистичных изменений нет.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/model"
)

// UnknownProductName подставляется, если сервер не прислал название товара.
const UnknownProductName = "Unknown Product"

var listKeys = []string{"items", "cartItems"}

// Gateway описывает методы API-клиента, нужные корзине.
type Gateway interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Patch(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Delete(ctx context.Context, path string) (*apiclient.Response, error)
}

// State описывает состояние корзины.
type State struct {
	Items     []model.CartItem `json:"items"`
	IsLoading bool             `json:"isLoading"`
}

// Store хранит клиентскую копию корзины. Безопасна для конкурентного использования;
// одновременные вызовы не упорядочиваются, побеждает последний ответ.
type Store struct {
	api    Gateway
	logger *zap.Logger

	mu    sync.RWMutex
	items []model.CartItem
	// inflight считает незавершённые операции, IsLoading = inflight > 0.
	inflight int
}

// NewStore создаёт пустую корзину.
func NewStore(api Gateway, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		api:    api,
		logger: logger,
		items:  []model.CartItem{},
	}
}

// State возвращает снимок состояния.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Items: s.copyLocked(), IsLoading: s.inflight > 0}
}

// Items возвращает копию строк корзины.
func (s *Store) Items() []model.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() []model.CartItem {
	res := make([]model.CartItem, len(s.items))
	copy(res, s.items)
	return res
}

// Total возвращает сумму стоимостей строк.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Count возвращает общее количество единиц товара.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// IsEmpty сообщает, пуста ли корзина.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}

func (s *Store) begin() func() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}
}

func (s *Store) replace(items []model.CartItem) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// FetchCart перечитывает корзину с сервера. При ошибке корзина очищается;
// ответ 401 ошибкой не считается. Если контекст отменён, результат отбрасывается.
func (s *Store) FetchCart(ctx context.Context) error {
	done := s.begin()
	defer done()

	resp, err := s.api.Get(ctx, "/cart")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.replace([]model.CartItem{})
		if apiclient.IsUnauthorized(err) {
			return nil
		}
		s.logger.Warn("fetch cart error", zap.Error(err))
		return fmt.Errorf("fetch cart: %w", err)
	}

	items, err := Normalize(resp.Body)
	if err != nil && errors.Is(err, ErrMalformedItem) {
		s.logger.Warn("skip malformed cart items", zap.Error(err))
		err = nil
	}
	if err != nil {
		s.replace([]model.CartItem{})
		s.logger.Warn("decode cart error", zap.Error(err))
		return fmt.Errorf("fetch cart: %w", err)
	}

	s.replace(items)
	return nil
}

// AddItem добавляет товар в корзину и перечитывает её. Количество меньше 1 считается равным 1.
func (s *Store) AddItem(ctx context.Context, productID model.ID, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	done := s.begin()
	defer done()

	_, err := s.api.Post(ctx, "/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   quantity,
	})
	return s.afterMutation(ctx, "add cart item", err)
}

// RemoveItem удаляет строку корзины и перечитывает её.
func (s *Store) RemoveItem(ctx context.Context, itemID model.ID) error {
	done := s.begin()
	defer done()

	_, err := s.api.Delete(ctx, "/cart/items/"+itemID.String())
	return s.afterMutation(ctx, "remove cart item", err)
}

// UpdateQuantity меняет количество в строке корзины и перечитывает её.
// Локальное состояние до ответа сервера не меняется.
func (s *Store) UpdateQuantity(ctx context.Context, itemID model.ID, quantity int) error {
	done := s.begin()
	defer done()

	_, err := s.api.Patch(ctx, "/cart/items/"+itemID.String(), map[string]int{
		"quantity": quantity,
	})
	return s.afterMutation(ctx, "update cart item", err)
}

// afterMutation перечитывает корзину после мутации независимо от её исхода,
// чтобы отображалось состояние сервера. Ошибка мутации важнее ошибки чтения.
func (s *Store) afterMutation(ctx context.Context, op string, mutErr error) error {
	if mutErr != nil {
		s.logger.Warn(op+" error", zap.Error(mutErr))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	fetchErr := s.FetchCart(ctx)
	if mutErr != nil {
		return fmt.Errorf("%s: %w", op, mutErr)
	}
	return fetchErr
}

// ClearCartLocally очищает локальную корзину без обращения к серверу.
func (s *Store) ClearCartLocally() {
	s.replace([]model.CartItem{})
}

// ErrMalformedItem помечает строку корзины, которую не удалось разобрать.
var ErrMalformedItem = errors.New("malformed cart item")

// Normalize извлекает строки корзины из ответа сервера и приводит их к каноническому виду.
// Неразборчивые строки пропускаются: вместе с остальными строками возвращается
// ошибка, оборачивающая ErrMalformedItem.
func Normalize(body []byte) ([]model.CartItem, error) {
	raw, err := envelope.List(body, listKeys...)
	if err != nil {
		return nil, err
	}

	items := make([]model.CartItem, 0, len(raw))
	var skipped []error
	for i, r := range raw {
		it, err := transform(r)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("cart item %d: %w", i, err))
			continue
		}
		items = append(items, it)
	}
	return items, errors.Join(skipped...)
}

// flexInt принимает число, число в строке или null.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		var s string
		if json.Unmarshal(data, &s) != nil {
			*n = 0
			return nil
		}
		num = json.Number(strings.TrimSpace(s))
	}
	if v, err := num.Int64(); err == nil {
		*n = flexInt(v)
		return nil
	}
	if f, err := num.Float64(); err == nil {
		*n = flexInt(f)
		return nil
	}
	*n = 0
	return nil
}

// flexDecimal принимает число или число в строке; иное значение считается отсутствующим.
type flexDecimal struct {
	decimal.NullDecimal
}

func (d *flexDecimal) UnmarshalJSON(data []byte) error {
	if err := d.NullDecimal.UnmarshalJSON(data); err != nil {
		d.NullDecimal = decimal.NullDecimal{}
	}
	return nil
}

type rawProduct struct {
	Name        string      `json:"name"`
	Price       flexDecimal `json:"price"`
	ImageURL    string      `json:"image_url"`
	ImageURLAlt string      `json:"imageUrl"`
}

type rawItem struct {
	ID           model.ID    `json:"id"`
	ProductID    model.ID    `json:"product_id"`
	ProductIDAlt model.ID    `json:"productId"`
	Name         string      `json:"name"`
	Price        flexDecimal `json:"price"`
	Image        string      `json:"image"`
	Quantity     flexInt     `json:"quantity"`
	Product      *rawProduct `json:"product"`
}

func transform(raw json.RawMessage) (model.CartItem, error) {
	var r rawItem
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.CartItem{}, fmt.Errorf("decode cart item: %w: %w", ErrMalformedItem, err)
	}

	it := model.CartItem{
		ID:        r.ID,
		ProductID: firstID(r.ProductID, r.ProductIDAlt),
		Name:      UnknownProductName,
		Price:     decimal.Zero,
		Quantity:  int(r.Quantity),
	}

	var p rawProduct
	if r.Product != nil {
		p = *r.Product
	}

	switch {
	case p.Name != "":
		it.Name = p.Name
	case r.Name != "":
		it.Name = r.Name
	}

	switch {
	case p.Price.Valid && !p.Price.Decimal.IsZero():
		it.Price = p.Price.Decimal
	case r.Price.Valid:
		it.Price = r.Price.Decimal
	}

	it.Image = firstString(p.ImageURL, p.ImageURLAlt, r.Image)

	if it.Quantity < 1 {
		it.Quantity = 1
	}
	return it, nil
}

func firstID(ids ...model.ID) model.ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
