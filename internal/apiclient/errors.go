package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError возвращается, если бэкенд ответил статусом вне диапазона 2xx.
// Message содержит сообщение сервера без изменений.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       []byte
}

// Error реализует интерфейс error.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: unexpected status: %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func newStatusError(resp *Response) *StatusError {
	return &StatusError{
		Method:     resp.Method,
		Path:       resp.Path,
		StatusCode: resp.StatusCode,
		Message:    serverMessage(resp.Body),
		Body:       resp.Body,
	}
}

func serverMessage(body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}

	for _, raw := range []json.RawMessage{payload.Message, payload.Error} {
		var s string
		if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

// StatusCode возвращает HTTP-статус из ошибки или 0, если это не *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Message возвращает сообщение сервера из ошибки или пустую строку.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

// IsUnauthorized сообщает, что бэкенд ответил 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsForbidden сообщает, что бэкенд ответил 403.
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

// IsAuthError сообщает об ошибке аутентификации или авторизации.
func IsAuthError(err error) bool {
	return IsUnauthorized(err) || IsForbidden(err)
}

// IsAuthStatus сообщает, что статус ответа означает отказ в доступе.
func IsAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
