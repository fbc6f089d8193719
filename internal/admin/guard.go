// Package admin защищает раздел администратора: проверяет сессию при входе,
// следит за бездействием и реагирует на отказы в доступе, а также
// предоставляет API консоли администратора.
package admin

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/session"
)

// Status описывает состояние охраны раздела администратора.
type Status string

const (
	StatusUnverified      Status = "UNVERIFIED"
	StatusVerifying       Status = "VERIFYING"
	StatusAuthorized      Status = "AUTHORIZED"
	StatusUnauthenticated Status = "UNAUTHENTICATED"
	StatusForbidden       Status = "FORBIDDEN"
	StatusTimedOut        Status = "TIMED_OUT"
)

const (
	// DefaultIdleTimeout задаёт порог бездействия, после которого сессия завершается.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultCheckInterval задаёт период проверки бездействия.
	DefaultCheckInterval = time.Minute

	// AreaPrefix является общим префиксом путей раздела администратора.
	AreaPrefix = "/admin"

	// LogoutPrompt передаётся Confirmer при выходе.
	LogoutPrompt = "Are you sure you want to logout?"

	timeoutTarget = "/login?session=timeout"
	homeTarget    = "/"
)

// ErrLogoutNotConfirmed возвращается, если пользователь не подтвердил выход.
var ErrLogoutNotConfirmed = errors.New("logout not confirmed")

// ErrUnknownSignal возвращается для неизвестного сигнала активности.
var ErrUnknownSignal = errors.New("unknown activity signal")

var activitySignals = map[string]struct{}{
	"pointerdown": {},
	"keydown":     {},
	"scroll":      {},
	"touchstart":  {},
}

// Navigator получает адреса переходов, которые должен выполнить интерфейс.
type Navigator interface {
	Navigate(target string)
}

// Confirmer запрашивает у пользователя подтверждение действия.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc позволяет использовать функцию как Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm реализует Confirmer.
func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// Sessions описывает операции сессии, которыми пользуется охрана.
type Sessions interface {
	CheckAuth(ctx context.Context) session.CheckResult
	Logout(ctx context.Context)
}

// Interceptable описывает API-клиент, к которому можно подключить перехватчик ответов.
type Interceptable interface {
	Use(fn apiclient.Interceptor) (release func())
}

// Snapshot описывает состояние охраны в момент вызова.
type Snapshot struct {
	Status       Status    `json:"status"`
	Path         string    `json:"path"`
	LastActivity time.Time `json:"lastActivity,omitzero"`
	Watching     bool      `json:"watching"`
}

// Option настраивает Guard.
type Option func(*Guard)

// WithIdleTimeout задаёт порог бездействия.
func WithIdleTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.idleTimeout = d
		}
	}
}

// WithCheckInterval задаёт период проверки бездействия.
func WithCheckInterval(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.checkInterval = d
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// Guard охраняет раздел администратора. Безопасна для конкурентного использования.
type Guard struct {
	sessions Sessions
	api      Interceptable
	nav      Navigator
	logger   *zap.Logger

	idleTimeout   time.Duration
	checkInterval time.Duration
	now           func() time.Time

	mu           sync.Mutex
	status       Status
	path         string
	lastActivity time.Time
	release      func()
	stop         chan struct{}
	// epoch увеличивается при каждом входе и выходе, чтобы отбрасывать устаревшие проверки.
	epoch uint64
}

// NewGuard создаёт охрану раздела администратора.
func NewGuard(sessions Sessions, api Interceptable, nav Navigator, opts ...Option) *Guard {
	g := &Guard{
		sessions:      sessions,
		api:           api,
		nav:           nav,
		logger:        zap.NewNop(),
		idleTimeout:   DefaultIdleTimeout,
		checkInterval: DefaultCheckInterval,
		now:           time.Now,
		status:        StatusUnverified,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State возвращает снимок состояния.
func (g *Guard) State() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		Status:       g.status,
		Path:         g.path,
		LastActivity: g.lastActivity,
		Watching:     g.stop != nil,
	}
}

// Enter проверяет сессию при входе в раздел по адресу path и возвращает итоговое состояние.
func (g *Guard) Enter(ctx context.Context, path string) Status {
	g.mu.Lock()
	g.teardownLocked()
	g.epoch++
	epoch := g.epoch
	g.status = StatusVerifying
	g.path = path
	g.mu.Unlock()

	res := g.sessions.CheckAuth(ctx)

	g.mu.Lock()
	if g.epoch != epoch {
		st := g.status
		g.mu.Unlock()
		return st
	}

	switch {
	case !res.IsAuthenticated:
		g.status = StatusUnauthenticated
		g.mu.Unlock()
		g.logger.Info("admin entry rejected: not authenticated", zap.String("path", path))
		g.navigate(redirectTarget(path))
		return StatusUnauthenticated

	case !res.User.IsAdmin():
		g.status = StatusForbidden
		g.mu.Unlock()
		g.logger.Info("admin entry rejected: forbidden", zap.String("path", path))
		return StatusForbidden
	}

	g.status = StatusAuthorized
	g.lastActivity = g.now()
	g.release = g.api.Use(g.intercept)
	g.stop = make(chan struct{})
	go g.watch(g.stop)
	g.mu.Unlock()

	g.logger.Info("admin session authorized", zap.String("path", path))
	return StatusAuthorized
}

// Visit запоминает текущий адрес внутри раздела.
func (g *Guard) Visit(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.path = path
}

// Touch отмечает активность пользователя. Учитываются только известные сигналы.
func (g *Guard) Touch(signal string) error {
	if _, ok := activitySignals[signal]; !ok {
		return ErrUnknownSignal
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == StatusAuthorized {
		g.lastActivity = g.now()
	}
	return nil
}

// Leave снимает наблюдение при выходе из раздела. Повторный вызов ничего не делает.
func (g *Guard) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teardownLocked()
	g.epoch++
	g.status = StatusUnverified
}

// Logout завершает сессию по явному запросу пользователя после подтверждения.
func (g *Guard) Logout(ctx context.Context, confirmer Confirmer) error {
	if confirmer == nil || !confirmer.Confirm(LogoutPrompt) {
		return ErrLogoutNotConfirmed
	}

	g.mu.Lock()
	g.teardownLocked()
	g.epoch++
	g.status = StatusUnauthenticated
	g.mu.Unlock()

	g.sessions.Logout(ctx)
	g.navigate(homeTarget)
	return nil
}

func (g *Guard) watch(stop <-chan struct{}) {
	ticker := time.NewTicker(g.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.checkIdle(context.Background())
		}
	}
}

// checkIdle завершает сессию, если бездействие превысило порог.
func (g *Guard) checkIdle(ctx context.Context) bool {
	g.mu.Lock()
	if g.status != StatusAuthorized || g.now().Sub(g.lastActivity) <= g.idleTimeout {
		g.mu.Unlock()
		return false
	}
	g.teardownLocked()
	g.epoch++
	g.status = StatusTimedOut
	g.mu.Unlock()

	g.logger.Info("admin session timed out due to inactivity")
	g.sessions.Logout(ctx)
	g.navigate(timeoutTarget)
	return true
}

func (g *Guard) intercept(ctx context.Context, resp *apiclient.Response) {
	if !apiclient.IsAuthStatus(resp.StatusCode) {
		return
	}

	g.mu.Lock()
	if g.status != StatusAuthorized || !InArea(g.path) {
		g.mu.Unlock()
		return
	}
	path := g.path
	g.teardownLocked()
	g.epoch++
	g.status = StatusUnauthenticated
	g.mu.Unlock()

	g.logger.Warn("admin access denied by backend",
		zap.Int("status", resp.StatusCode),
		zap.String("apiPath", resp.Path),
		zap.String("path", path),
	)
	g.sessions.Logout(ctx)
	g.navigate(redirectTarget(path))
}

// teardownLocked снимает перехватчик и останавливает наблюдение. Вызывается под g.mu.
func (g *Guard) teardownLocked() {
	if g.release != nil {
		g.release()
		g.release = nil
	}
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

func (g *Guard) navigate(target string) {
	if g.nav != nil {
		g.nav.Navigate(target)
	}
}

// InArea сообщает, относится ли путь к разделу администратора.
func InArea(path string) bool {
	return path == AreaPrefix || strings.HasPrefix(path, AreaPrefix+"/")
}

func redirectTarget(path string) string {
	return "/login?redirect=" + url.QueryEscape(path)
}
