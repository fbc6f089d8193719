// Package orders показывает покупателю его заказы и позволяет отменить ещё не оплаченный.
package orders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/model"
)

// ErrNotCancellable возвращается при попытке отменить заказ не в статусе PENDING.
var ErrNotCancellable = errors.New("only pending orders can be cancelled")

// Gateway описывает методы API-клиента, нужные истории заказов.
type Gateway interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
	Patch(ctx context.Context, path string, body any) (*apiclient.Response, error)
}

// History работает с заказами текущего покупателя. Заказ никогда не изменяется
// локально: после отмены он перечитывается с сервера.
type History struct {
	api    Gateway
	logger *zap.Logger
}

// NewHistory создаёт историю заказов.
func NewHistory(api Gateway, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{api: api, logger: logger}
}

// List возвращает заказы покупателя. При ошибке возвращается пустой список и ошибка.
func (h *History) List(ctx context.Context) ([]model.Order, error) {
	resp, err := h.api.Get(ctx, "/orders/my")
	if err != nil {
		h.logger.Warn("fetch orders error", zap.Error(err))
		return []model.Order{}, fmt.Errorf("list orders: %w", err)
	}
	list, err := envelope.DecodeList[model.Order](resp.Body, "orders")
	if err != nil {
		return []model.Order{}, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// Get возвращает заказ вместе с позициями и адресом доставки.
func (h *History) Get(ctx context.Context, id model.ID) (*model.Order, error) {
	resp, err := h.api.Get(ctx, "/orders/"+id.String())
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	var o model.Order
	if err := resp.Decode(&o); err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// Cancel отменяет заказ и возвращает его состояние на сервере.
// Заказ вне статуса PENDING отклоняется без обращения к серверу.
func (h *History) Cancel(ctx context.Context, id model.ID) (*model.Order, error) {
	o, err := h.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if !o.Cancellable() {
		return o, ErrNotCancellable
	}

	if _, err := h.api.Patch(ctx, "/orders/"+id.String()+"/cancel", nil); err != nil {
		return o, fmt.Errorf("cancel order: %w", err)
	}
	h.logger.Info("order cancelled", zap.String("order", id.String()))

	return h.Get(ctx, id)
}
