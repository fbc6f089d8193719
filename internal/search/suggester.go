// Package search выдаёт подсказки поиска товаров с задержкой ввода и хранит
// историю недавних запросов.
package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/model"
)

const (
	// DefaultDelay задаёт паузу между последним вводом и запросом подсказок.
	DefaultDelay = 300 * time.Millisecond
	// SuggestionLimit ограничивает число подсказок.
	SuggestionLimit = 5
)

// Gateway описывает методы API-клиента, нужные подсказкам.
type Gateway interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
}

// Snapshot описывает текущее состояние подсказок.
type Snapshot struct {
	Query       string          `json:"query"`
	Suggestions []model.Product `json:"suggestions"`
	IsLoading   bool            `json:"isLoading"`
}

// Option настраивает Suggester.
type Option func(*Suggester)

// WithDelay задаёт задержку ввода.
func WithDelay(d time.Duration) Option {
	return func(s *Suggester) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Suggester) {
		if l != nil {
			s.logger = l
		}
	}
}

// Suggester запрашивает подсказки только для последнего введённого запроса.
type Suggester struct {
	api    Gateway
	logger *zap.Logger
	delay  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	gen         uint64
	timer       *time.Timer
	query       string
	suggestions []model.Product
	loading     bool
}

// NewSuggester создаёт источник подсказок.
func NewSuggester(api Gateway, opts ...Option) *Suggester {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Suggester{
		api:         api,
		logger:      zap.NewNop(),
		delay:       DefaultDelay,
		ctx:         ctx,
		cancel:      cancel,
		suggestions: []model.Product{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Type регистрирует новый ввод. Каждый вызов перезапускает задержку;
// пустой запрос сразу очищает подсказки.
func (s *Suggester) Type(query string) {
	trimmed := strings.TrimSpace(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.query = query

	if trimmed == "" {
		s.suggestions = []model.Product{}
		s.loading = false
		return
	}

	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() {
		s.run(gen, trimmed)
	})
}

func (s *Suggester) run(gen uint64, query string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.mu.Unlock()

	products := s.fetch(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.suggestions = products
	s.loading = false
}

func (s *Suggester) fetch(query string) []model.Product {
	path := "/products?search=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(SuggestionLimit)
	resp, err := s.api.Get(s.ctx, path)
	if err != nil {
		s.logger.Debug("suggestions error", zap.String("query", query), zap.Error(err))
		return []model.Product{}
	}

	products, err := envelope.DecodeList[model.Product](resp.Body, "products")
	if err != nil {
		s.logger.Debug("suggestions decode error", zap.String("query", query), zap.Error(err))
		return []model.Product{}
	}
	if len(products) > SuggestionLimit {
		products = products[:SuggestionLimit]
	}
	return products
}

// Snapshot возвращает текущее состояние подсказок.
func (s *Suggester) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Query:       s.query,
		Suggestions: append([]model.Product{}, s.suggestions...),
		IsLoading:   s.loading,
	}
}

// Close останавливает ожидающий запрос.
func (s *Suggester) Close() {
	s.mu.Lock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.cancel()
}
