package checkout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/model"
)

// Addresses работает с адресной книгой пользователя на сервере.
type Addresses struct {
	api    Gateway
	logger *zap.Logger
}

// NewAddresses создаёт адресную книгу.
func NewAddresses(api Gateway, logger *zap.Logger) *Addresses {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Addresses{api: api, logger: logger}
}

// List возвращает адреса пользователя. При ошибке возвращается пустой список и ошибка.
func (a *Addresses) List(ctx context.Context) ([]model.Address, error) {
	resp, err := a.api.Get(ctx, "/addresses")
	if err != nil {
		a.logger.Warn("fetch addresses error", zap.Error(err))
		return []model.Address{}, fmt.Errorf("list addresses: %w", err)
	}
	list, err := envelope.DecodeList[model.Address](resp.Body, "addresses")
	if err != nil {
		return []model.Address{}, fmt.Errorf("list addresses: %w", err)
	}
	return list, nil
}

// Create добавляет адрес.
func (a *Addresses) Create(ctx context.Context, addr model.Address) (*model.Address, error) {
	resp, err := a.api.Post(ctx, "/addresses", addr)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	var created model.Address
	if err := resp.Decode(&created); err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return &created, nil
}

// Update заменяет адрес.
func (a *Addresses) Update(ctx context.Context, id model.ID, addr model.Address) (*model.Address, error) {
	resp, err := a.api.Patch(ctx, "/addresses/"+id.String(), addr)
	if err != nil {
		return nil, fmt.Errorf("update address: %w", err)
	}
	var updated model.Address
	if err := resp.Decode(&updated); err != nil {
		return nil, fmt.Errorf("update address: %w", err)
	}
	return &updated, nil
}

// Delete удаляет адрес.
func (a *Addresses) Delete(ctx context.Context, id model.ID) error {
	if _, err := a.api.Delete(ctx, "/addresses/"+id.String()); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}
