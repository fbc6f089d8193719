// Package service собирает хранилища клиента витрины в единый движок.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/admin"
	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/cart"
	"github.com/mmeshcher/storefront-client/internal/checkout"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/orders"
	"github.com/mmeshcher/storefront-client/internal/repository"
	"github.com/mmeshcher/storefront-client/internal/search"
	"github.com/mmeshcher/storefront-client/internal/session"
)

// Options задаёт параметры движка.
type Options struct {
	AdminIdleTimeout   time.Duration
	AdminCheckInterval time.Duration
	SearchDelay        time.Duration
}

// Engine объединяет сессию, корзину, раздел администратора, оформление, заказы и поиск.
type Engine struct {
	Session   *session.Store
	Cart      *cart.Store
	Guard     *admin.Guard
	Console   *admin.Console
	Checkout  *checkout.Flow
	Orders    *orders.History
	Suggester *search.Suggester
	Recent    *search.Recent
	Outbox    *Outbox

	api     *apiclient.Client
	storage repository.Storage
	logger  *zap.Logger
}

// NewEngine создаёт движок поверх API-клиента и хранилища состояния.
func NewEngine(ctx context.Context, api *apiclient.Client, storage repository.Storage, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		api:     api,
		storage: storage,
		logger:  logger,
		Outbox:  NewOutbox(),
	}

	e.Session = session.NewStore(ctx, api, storage, logger.Named("session"))
	e.Cart = cart.NewStore(api, logger.Named("cart"))
	e.Guard = admin.NewGuard(e, api, e.Outbox,
		admin.WithIdleTimeout(opts.AdminIdleTimeout),
		admin.WithCheckInterval(opts.AdminCheckInterval),
		admin.WithLogger(logger.Named("admin")),
	)
	e.Console = admin.NewConsole(api, logger.Named("console"))
	e.Checkout = checkout.NewFlow(api, e.Cart, e.Outbox, logger.Named("checkout"))
	e.Orders = orders.NewHistory(api, logger.Named("orders"))
	e.Suggester = search.NewSuggester(api,
		search.WithDelay(opts.SearchDelay),
		search.WithLogger(logger.Named("search")),
	)
	e.Recent = search.NewRecent(ctx, storage, logger.Named("search"))

	return e
}

// Start проверяет сохранённую сессию и, если она подтверждена, загружает корзину.
func (e *Engine) Start(ctx context.Context) session.CheckResult {
	res := e.CheckAuth(ctx)
	if res.IsAuthenticated {
		if err := e.Cart.FetchCart(ctx); err != nil {
			e.logger.Warn("initial cart fetch error", zap.Error(err))
		}
	}
	e.logger.Info("engine started",
		zap.Bool("authenticated", res.IsAuthenticated),
		zap.Bool("expired", res.Expired),
	)
	return res
}

// CheckAuth сверяет сессию с сервером. После выхода локальная корзина очищается.
func (e *Engine) CheckAuth(ctx context.Context) session.CheckResult {
	res := e.Session.CheckAuth(ctx)
	if !res.IsAuthenticated {
		e.Cart.ClearCartLocally()
	}
	return res
}

// Login выполняет вход и перечитывает корзину пользователя.
func (e *Engine) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := e.Session.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := e.Cart.FetchCart(ctx); err != nil {
		e.logger.Warn("cart fetch after login error", zap.Error(err))
	}
	return user, nil
}

// Register регистрирует пользователя без входа.
func (e *Engine) Register(ctx context.Context, name, email, password string) error {
	return e.Session.Register(ctx, name, email, password)
}

// ConfirmPasswordReset задаёт новый пароль по токену и направляет на страницу входа.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if err := e.Session.ConfirmPasswordReset(ctx, token, password); err != nil {
		return err
	}
	e.Outbox.Navigate("/login")
	return nil
}

// Logout завершает сессию и очищает локальную корзину.
func (e *Engine) Logout(ctx context.Context) {
	e.Session.Logout(ctx)
	e.Cart.ClearCartLocally()
}

// Close освобождает ресурсы движка.
func (e *Engine) Close() error {
	e.Guard.Leave()
	e.Suggester.Close()
	if e.storage != nil {
		return e.storage.Close()
	}
	return nil
}
