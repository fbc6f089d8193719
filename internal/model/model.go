// Package model содержит доменные сущности клиента витрины.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ID хранит идентификатор сущности на стороне сервера. Сервер может прислать его строкой или числом.
type ID string

// UnmarshalJSON принимает идентификатор в виде JSON-строки или JSON-числа.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String возвращает строковое представление идентификатора.
func (id ID) String() string {
	return string(id)
}

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// UnmarshalJSON приводит роль к каноническому верхнему регистру.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode role: %w", err)
	}
	*r = Role(strings.ToUpper(strings.TrimSpace(s)))
	return nil
}

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User представляет идентичность пользователя в рамках сессии.
type User struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// IsAdmin сообщает, обладает ли пользователь ролью администратора.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CartItem описывает строку корзины в каноническом виде.
type CartItem struct {
	ID        ID              `json:"id"`
	ProductID ID              `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// LineTotal возвращает стоимость строки корзины.
func (c CartItem) LineTotal() decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Product описывает товар каталога.
type Product struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Category    string          `json:"category,omitempty"`
}

// UnmarshalJSON принимает как imageUrl, так и image_url.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var raw struct {
		plain
		ImageURLSnake string `json:"image_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Product(raw.plain)
	if p.ImageURL == "" {
		p.ImageURL = raw.ImageURLSnake
	}
	return nil
}

// Address описывает адрес доставки пользователя.
type Address struct {
	ID         ID     `json:"id"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	IsDefault  bool   `json:"isDefault"`
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid сообщает, известен ли статус заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order описывает заказ. Клиент не изменяет заказ локально.
type Order struct {
	ID          ID              `json:"id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	Customer    *User           `json:"user,omitempty"`

	Items           []OrderItem `json:"items,omitempty"`
	ShippingAddress *Address    `json:"shippingAddress,omitempty"`
}

// OrderItem описывает позицию заказа с ценой на момент покупки.
type OrderItem struct {
	ID       ID              `json:"id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Product  *Product        `json:"product,omitempty"`
}

// Cancellable сообщает, может ли покупатель отменить заказ.
func (o Order) Cancellable() bool {
	return o.Status == OrderStatusPending
}

// UnmarshalJSON принимает поля как в camelCase, так и в snake_case.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var raw struct {
		plain
		TotalAmountSnake *decimal.Decimal `json:"total_amount"`
		CreatedAtSnake   string           `json:"created_at"`
		ShippingSnake    *Address         `json:"shipping_address"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Order(raw.plain)
	if o.TotalAmount.IsZero() && raw.TotalAmountSnake != nil {
		o.TotalAmount = *raw.TotalAmountSnake
	}
	if o.CreatedAt == "" {
		o.CreatedAt = raw.CreatedAtSnake
	}
	if o.ShippingAddress == nil {
		o.ShippingAddress = raw.ShippingSnake
	}
	return nil
}

// PaymentSession связывает созданный заказ с адресом страницы платёжного провайдера.
type PaymentSession struct {
	OrderID     ID     `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
}

// DashboardStats содержит агрегаты панели администратора.
type DashboardStats struct {
	TotalOrders   int             `json:"totalOrders"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalUsers    int             `json:"totalUsers"`
	TotalProducts int             `json:"totalProducts"`
	PendingOrders int             `json:"pendingOrders"`
	RecentOrders  []Order         `json:"recentOrders"`
}
