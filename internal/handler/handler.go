// Package handler содержит HTTP-обработчики локального API клиента витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/admin"
	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/checkout"
	"github.com/mmeshcher/storefront-client/internal/orders"
	"github.com/mmeshcher/storefront-client/internal/service"
	"github.com/mmeshcher/storefront-client/internal/validation"
)

// Handler отдаёт состояние движка интерфейсу и принимает от него действия пользователя.
type Handler struct {
	engine *service.Engine
	logger *zap.Logger
}

// NewHandler создаёт HTTP-обработчик поверх движка.
func NewHandler(engine *service.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

// statusFor сопоставляет ошибку движка HTTP-статусу локального API.
func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrInvalidState),
		errors.Is(err, admin.ErrLogoutNotConfirmed),
		errors.Is(err, orders.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrNoAddress),
		errors.Is(err, checkout.ErrUnknownAddress),
		errors.Is(err, admin.ErrInvalidStatus),
		errors.Is(err, admin.ErrInvalidRole):
		return http.StatusUnprocessableEntity
	case errors.Is(err, admin.ErrUnknownSignal):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	if code := apiclient.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}

// fail отвечает ошибкой. Сообщение сервера передаётся интерфейсу без изменений.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)

	msg := apiclient.Message(err)
	if msg == "" {
		if code < http.StatusInternalServerError {
			msg = err.Error()
		} else {
			msg = http.StatusText(code)
		}
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.Int("status", code))
	} else {
		h.logger.Debug(op+" rejected", zap.Error(err), zap.Int("status", code))
	}
	http.Error(w, msg, code)
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GetSession возвращает текущее состояние сессии.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Session.State())
}

// Login выполняет вход и перечитывает корзину.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		badRequest(w)
		return
	}

	user, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Register регистрирует пользователя. Вход после регистрации не выполняется.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}
	if req.Name == "" || !validation.IsValidEmail(req.Email) || !validation.IsValidPassword(req.Password) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if err := h.engine.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		h.fail(w, "register", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Logout завершает сессию и очищает локальную корзину.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.engine.Logout(r.Context())
	writeJSON(w, http.StatusOK, h.engine.Session.State())
}

// CheckAuth сверяет сессию с сервером.
func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CheckAuth(r.Context()))
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func unprocessable(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusUnprocessableEntity)
}

// UpdateProfile меняет имя и email пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}
	if req.Name == "" || !validation.IsValidEmail(req.Email) {
		unprocessable(w, http.StatusText(http.StatusUnprocessableEntity))
		return
	}

	user, err := h.engine.Session.UpdateProfile(r.Context(), req.Name, req.Email)
	if err != nil {
		h.fail(w, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ChangePassword меняет пароль. Новый пароль должен совпасть с подтверждением.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeBody(r, &req); err != nil || req.CurrentPassword == "" {
		badRequest(w)
		return
	}
	if req.Password != req.ConfirmPassword {
		unprocessable(w, "Passwords do not match")
		return
	}
	if !validation.IsValidPassword(req.Password) {
		unprocessable(w, "Password must be at least 6 characters")
		return
	}

	if err := h.engine.Session.ChangePassword(r.Context(), req.CurrentPassword, req.Password); err != nil {
		h.fail(w, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset запрашивает письмо для сброса пароля.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}
	if !validation.IsValidEmail(req.Email) {
		unprocessable(w, http.StatusText(http.StatusUnprocessableEntity))
		return
	}

	if err := h.engine.Session.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, "request password reset", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ConfirmPasswordReset задаёт новый пароль по токену из письма.
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := decodeBody(r, &req); err != nil || req.Token == "" {
		badRequest(w)
		return
	}
	if req.Password != req.ConfirmPassword {
		unprocessable(w, "Passwords do not match")
		return
	}
	if !validation.IsValidPassword(req.Password) {
		unprocessable(w, "Password must be at least 6 characters")
		return
	}

	if err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, "confirm password reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Navigation отдаёт накопленные переходы и очищает очередь.
func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Outbox.Drain())
}
