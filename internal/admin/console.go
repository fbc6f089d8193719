package admin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/model"
)

var (
	// ErrInvalidStatus возвращается для неизвестного статуса заказа.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidRole возвращается для неизвестной роли пользователя.
	ErrInvalidRole = errors.New("invalid user role")
)

// Gateway описывает методы API-клиента, нужные консоли администратора.
type Gateway interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Patch(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Delete(ctx context.Context, path string) (*apiclient.Response, error)
}

// Console выполняет операции консоли администратора. Чтения при ошибке возвращают
// пустой результат вместе с ошибкой; изменения подтверждаются сервером.
type Console struct {
	api    Gateway
	logger *zap.Logger
}

// NewConsole создаёт консоль администратора.
func NewConsole(api Gateway, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{api: api, logger: logger}
}

func listOf[T any](ctx context.Context, c *Console, path, key string) ([]T, error) {
	resp, err := c.api.Get(ctx, path)
	if err != nil {
		c.logger.Warn("admin list error", zap.String("path", path), zap.Error(err))
		return []T{}, fmt.Errorf("list %s: %w", key, err)
	}

	items, err := envelope.DecodeList[T](resp.Body, key)
	if err != nil {
		c.logger.Warn("admin list decode error", zap.String("path", path), zap.Error(err))
		return []T{}, fmt.Errorf("list %s: %w", key, err)
	}
	return items, nil
}

// ListOrders возвращает все заказы.
func (c *Console) ListOrders(ctx context.Context) ([]model.Order, error) {
	return listOf[model.Order](ctx, c, "/admin/orders", "orders")
}

// ListUsers возвращает всех пользователей.
func (c *Console) ListUsers(ctx context.Context) ([]model.User, error) {
	return listOf[model.User](ctx, c, "/admin/users", "users")
}

// ListProducts возвращает товары каталога.
func (c *Console) ListProducts(ctx context.Context) ([]model.Product, error) {
	return listOf[model.Product](ctx, c, "/products", "products")
}

// DashboardStats возвращает агрегаты панели.
func (c *Console) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	var stats model.DashboardStats

	resp, err := c.api.Get(ctx, "/admin/dashboard/stats")
	if err != nil {
		c.logger.Warn("dashboard stats error", zap.Error(err))
		return stats, fmt.Errorf("dashboard stats: %w", err)
	}
	if err := resp.Decode(&stats); err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	if stats.RecentOrders == nil {
		stats.RecentOrders = []model.Order{}
	}
	return stats, nil
}

// UpdateOrderStatus меняет статус заказа.
func (c *Console) UpdateOrderStatus(ctx context.Context, id model.ID, status model.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, err := c.api.Patch(ctx, "/admin/orders/"+id.String()+"/status", map[string]model.OrderStatus{
		"status": status,
	}); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// UpdateUserRole меняет роль пользователя.
func (c *Console) UpdateUserRole(ctx context.Context, id model.ID, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if _, err := c.api.Patch(ctx, "/admin/users/"+id.String()+"/role", map[string]model.Role{
		"role": role,
	}); err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return nil
}

// CreateProduct создаёт товар и возвращает его в виде, подтверждённом сервером.
func (c *Console) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	resp, err := c.api.Post(ctx, "/products", p)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	var created model.Product
	if err := resp.Decode(&created); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &created, nil
}

// UpdateProduct изменяет товар.
func (c *Console) UpdateProduct(ctx context.Context, id model.ID, p model.Product) (*model.Product, error) {
	resp, err := c.api.Patch(ctx, "/products/"+id.String(), p)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	var updated model.Product
	if err := resp.Decode(&updated); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &updated, nil
}

// DeleteProduct удаляет товар.
func (c *Console) DeleteProduct(ctx context.Context, id model.ID) error {
	if _, err := c.api.Delete(ctx, "/products/"+id.String()); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}
