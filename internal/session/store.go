// Package session хранит состояние аутентификации клиента витрины.
//
// Состояние делится на долговременную часть (пользователь и признак
// аутентификации), которая сохраняется в хранилище под ключом auth-storage,
// и временную (признак загрузки), которая при каждом запуске начинается с true.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

var (
	// ErrNoToken возвращается, если ответ на вход не содержит токена.
	ErrNoToken = errors.New("login response has no token")
	// ErrNoUser возвращается, если после входа не удалось получить профиль пользователя.
	ErrNoUser = errors.New("login response has no user")
)

// Gateway описывает методы API-клиента, нужные хранилищу сессии.
type Gateway interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Patch(ctx context.Context, path string, body any) (*apiclient.Response, error)
	SetCredential(ctx context.Context, token string) error
	ClearCredential(ctx context.Context) error
}

// State описывает состояние сессии.
type State struct {
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
}

// CheckResult содержит итог проверки сессии. Expired означает, что ранее
// подтверждённая сессия оказалась недействительной.
type CheckResult struct {
	State
	Expired bool `json:"expired"`
}

type durable struct {
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// Store хранит сессию пользователя. Безопасно для конкурентного использования.
type Store struct {
	api     Gateway
	storage repository.Storage
	logger  *zap.Logger

	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// NewStore создаёт хранилище сессии и восстанавливает сохранённую долговременную часть.
func NewStore(ctx context.Context, api Gateway, storage repository.Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		api:       api,
		storage:   storage,
		logger:    logger,
		state:     State{IsLoading: true},
		listeners: make(map[int]func(State)),
	}
	s.hydrate(ctx)
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	if s.storage == nil {
		return
	}
	raw, err := s.storage.Get(ctx, repository.KeySession)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("load session error", zap.Error(err))
		}
		return
	}

	var d durable
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.logger.Warn("decode session error", zap.Error(err))
		return
	}
	s.state.User = d.User
	s.state.IsAuthenticated = d.IsAuthenticated
}

// State возвращает снимок текущего состояния.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

// Subscribe подписывает fn на изменения состояния и возвращает функцию отписки.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update применяет mutate к состоянию, при необходимости сохраняет долговременную
// часть и уведомляет подписчиков.
func (s *Store) update(ctx context.Context, persist bool, mutate func(*State)) State {
	s.mu.Lock()
	mutate(&s.state)
	st := s.snapshotLocked()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if persist {
		s.persist(ctx, st)
	}
	for _, fn := range listeners {
		fn(st)
	}
	return st
}

func (s *Store) persist(ctx context.Context, st State) {
	if s.storage == nil {
		return
	}
	raw, err := json.Marshal(durable{User: st.User, IsAuthenticated: st.IsAuthenticated})
	if err != nil {
		s.logger.Warn("encode session error", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, repository.KeySession, string(raw)); err != nil {
		s.logger.Warn("save session error", zap.Error(err))
	}
}

func (s *Store) setLoading(ctx context.Context, loading bool) {
	s.update(ctx, false, func(st *State) {
		st.IsLoading = loading
	})
}

// Login выполняет вход и сохраняет полученный токен. При ошибке прежнее состояние сохраняется.
func (s *Store) Login(ctx context.Context, email, password string) (*model.User, error) {
	s.setLoading(ctx, true)
	defer s.setLoading(ctx, false)

	resp, err := s.api.Post(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var payload struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if payload.Token == "" {
		return nil, ErrNoToken
	}

	if err := s.api.SetCredential(ctx, payload.Token); err != nil {
		s.logger.Warn("store credential error", zap.Error(err))
	}

	user := payload.User
	if user == nil {
		user, err = s.fetchProfile(ctx)
		if err != nil {
			if err := s.api.ClearCredential(ctx); err != nil {
				s.logger.Warn("clear credential error", zap.Error(err))
			}
			return nil, fmt.Errorf("login: %w: %w", ErrNoUser, err)
		}
	}

	st := s.update(ctx, true, func(st *State) {
		st.User = user
		st.IsAuthenticated = true
	})

	s.logger.Info("user logged in", zap.String("email", email))
	return st.User, nil
}

// Register регистрирует нового пользователя. Сессию не открывает.
func (s *Store) Register(ctx context.Context, name, email, password string) error {
	s.setLoading(ctx, true)
	defer s.setLoading(ctx, false)

	if _, err := s.api.Post(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// UpdateProfile изменяет имя и email пользователя. Пользователь в сессии
// заменяется целиком профилем, который вернул сервер.
func (s *Store) UpdateProfile(ctx context.Context, name, email string) (*model.User, error) {
	if _, err := s.api.Patch(ctx, "/auth/profile", map[string]string{
		"name":  name,
		"email": email,
	}); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	user, err := s.fetchProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	st := s.update(ctx, true, func(st *State) {
		st.User = user
	})
	s.logger.Info("profile updated", zap.String("email", user.Email))
	return st.User, nil
}

// ChangePassword меняет пароль текущего пользователя. Сессию не затрагивает.
func (s *Store) ChangePassword(ctx context.Context, current, next string) error {
	if _, err := s.api.Patch(ctx, "/auth/profile", map[string]string{
		"currentPassword": current,
		"password":        next,
	}); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// RequestPasswordReset запрашивает письмо со ссылкой для сброса пароля.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) error {
	if _, err := s.api.Post(ctx, "/auth/password-reset/request", map[string]string{
		"email": email,
	}); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return nil
}

// ConfirmPasswordReset задаёт новый пароль по токену из письма. Сессию не открывает.
func (s *Store) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if _, err := s.api.Post(ctx, "/auth/password-reset/confirm", map[string]string{
		"token":    token,
		"password": password,
	}); err != nil {
		return fmt.Errorf("confirm password reset: %w", err)
	}
	return nil
}

// Logout стирает токен и сбрасывает сессию. Сетевых запросов не выполняет.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.ClearCredential(ctx); err != nil {
		s.logger.Warn("clear credential error", zap.Error(err))
	}
	s.update(ctx, true, func(st *State) {
		st.User = nil
		st.IsAuthenticated = false
	})
}

// CheckAuth сверяет сессию с сервером. Любая ошибка приводит к выходу;
// ошибка вызывающему не возвращается.
func (s *Store) CheckAuth(ctx context.Context) CheckResult {
	s.mu.RLock()
	wasAuthenticated := s.state.IsAuthenticated
	s.mu.RUnlock()

	s.setLoading(ctx, true)

	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.logger.Debug("session check failed", zap.Error(err))
		if err := s.api.ClearCredential(ctx); err != nil {
			s.logger.Warn("clear credential error", zap.Error(err))
		}
		st := s.update(ctx, true, func(st *State) {
			st.User = nil
			st.IsAuthenticated = false
			st.IsLoading = false
		})
		return CheckResult{State: st, Expired: wasAuthenticated}
	}

	st := s.update(ctx, true, func(st *State) {
		st.User = user
		st.IsAuthenticated = true
		st.IsLoading = false
	})
	return CheckResult{State: st}
}

func (s *Store) fetchProfile(ctx context.Context) (*model.User, error) {
	resp, err := s.api.Get(ctx, "/auth/profile")
	if err != nil {
		return nil, err
	}

	payload, err := envelope.Object(resp.Body)
	if err != nil {
		return nil, err
	}
	if inner := envelope.Field(payload, "user"); inner != nil {
		payload = inner
	}

	var u model.User
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if u.ID == "" && u.Email == "" {
		return nil, errors.New("profile response has no user")
	}
	return &u, nil
}
