package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/repository"
)

// MaxRecent ограничивает число хранимых недавних запросов.
const MaxRecent = 5

// Recent хранит последние различные поисковые запросы, новые первыми.
type Recent struct {
	storage repository.Storage
	logger  *zap.Logger

	mu    sync.Mutex
	items []string
}

// NewRecent создаёт историю и загружает сохранённые запросы. Без хранилища
// история живёт только в памяти.
func NewRecent(ctx context.Context, storage repository.Storage, logger *zap.Logger) *Recent {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recent{storage: storage, logger: logger, items: []string{}}
	if storage == nil {
		return r
	}

	raw, err := storage.Get(ctx, repository.KeyRecentSearches)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("load recent searches error", zap.Error(err))
		}
		return r
	}

	var saved []string
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		logger.Warn("decode recent searches error", zap.Error(err))
		return r
	}
	if len(saved) > MaxRecent {
		saved = saved[:MaxRecent]
	}
	r.items = saved
	return r
}

// List возвращает недавние запросы.
func (r *Recent) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.items...)
}

// Add запоминает запрос и возвращает обновлённую историю. Пустой запрос игнорируется.
func (r *Recent) Add(ctx context.Context, term string) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return r.List(), nil
	}

	r.mu.Lock()
	updated := make([]string, 0, MaxRecent)
	updated = append(updated, term)
	for _, s := range r.items {
		if s != term && len(updated) < MaxRecent {
			updated = append(updated, s)
		}
	}
	r.items = updated
	res := append([]string{}, updated...)
	r.mu.Unlock()

	if r.storage == nil {
		return res, nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return res, fmt.Errorf("encode recent searches: %w", err)
	}
	if err := r.storage.Set(ctx, repository.KeyRecentSearches, string(raw)); err != nil {
		return res, fmt.Errorf("save recent searches: %w", err)
	}
	return res, nil
}

// Clear очищает историю.
func (r *Recent) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.items = []string{}
	r.mu.Unlock()

	if r.storage == nil {
		return nil
	}
	if err := r.storage.Delete(ctx, repository.KeyRecentSearches); err != nil {
		return fmt.Errorf("clear recent searches: %w", err)
	}
	return nil
}
