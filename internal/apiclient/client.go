// Package apiclient предоставляет HTTP-клиент REST-бэкенда витрины.
//
// Клиент прикрепляет сохранённый bearer-токен к каждому запросу, стирает его при
// ответе 401 и позволяет временно подключать перехватчики ответов для отдельной
// области интерфейса (например, панели администратора).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/envelope"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

// DefaultBaseURL используется, если адрес API бэкенда не задан.
const DefaultBaseURL = "http://localhost:5000/api/v1"

const requestIDHeader = "X-Request-ID"

// Response описывает полученный ответ бэкенда.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode раскрывает обёртку data и декодирует полезную нагрузку в v.
func (r *Response) Decode(v any) error {
	return envelope.Decode(r.Body, v)
}

// Interceptor вызывается для каждого полученного ответа, включая ответы с ошибочным статусом.
type Interceptor func(ctx context.Context, resp *Response)

type interceptorEntry struct {
	fn Interceptor
}

// Client инкапсулирует HTTP-взаимодействие с бэкендом витрины.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials repository.Storage
	logger      *zap.Logger

	mu           sync.RWMutex
	interceptors []*interceptorEntry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout задаёт общий таймаут запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient создаёт клиент для указанного адреса API. Токен хранится в credentials.
func NewClient(baseURL string, credentials repository.Storage, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 10 * time.Second
	if jar, err := cookiejar.New(nil); err == nil {
		httpClient.Jar = jar
	}

	c := &Client{
		baseURL:     base,
		httpClient:  httpClient,
		credentials: credentials,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get выполняет GET-запрос.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post выполняет POST-запрос с JSON-телом.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Patch выполняет PATCH-запрос с JSON-телом.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete выполняет DELETE-запрос.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do выполняет запрос к API. Ошибки транспорта возвращаются без изменений,
// ответы вне диапазона 2xx превращаются в *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	if token, err := c.Credential(ctx); err != nil {
		c.logger.Warn("read credential error", zap.Error(err))
	} else if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp := &Response{
		Method:     method,
		Path:       path,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("requestID", requestID),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.ClearCredential(ctx); err != nil {
			c.logger.Warn("clear credential error", zap.Error(err))
		}
	}

	c.intercept(ctx, resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp)
	}

	return resp, nil
}

// Use подключает перехватчик ответов и возвращает функцию его отключения.
// Повторный вызов функции отключения ничего не делает.
func (c *Client) Use(fn Interceptor) (release func()) {
	entry := &interceptorEntry{fn: fn}

	c.mu.Lock()
	c.interceptors = append(c.interceptors, entry)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, e := range c.interceptors {
				if e == entry {
					c.interceptors = append(c.interceptors[:i], c.interceptors[i+1:]...)
					return
				}
			}
		})
	}
}

// InterceptorCount возвращает число подключённых перехватчиков.
func (c *Client) InterceptorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.interceptors)
}

// перехватчики вызываются без удержания мьютекса: они могут сами вызывать Use/release.
func (c *Client) intercept(ctx context.Context, resp *Response) {
	c.mu.RLock()
	entries := make([]*interceptorEntry, len(c.interceptors))
	copy(entries, c.interceptors)
	c.mu.RUnlock()

	for _, e := range entries {
		e.fn(ctx, resp)
	}
}

// Credential возвращает сохранённый токен или пустую строку.
func (c *Client) Credential(ctx context.Context) (string, error) {
	if c.credentials == nil {
		return "", nil
	}
	token, err := c.credentials.Get(ctx, repository.KeyCredential)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get credential: %w", err)
	}
	return token, nil
}

// SetCredential сохраняет токен.
func (c *Client) SetCredential(ctx context.Context, token string) error {
	if c.credentials == nil {
		return nil
	}
	if err := c.credentials.Set(ctx, repository.KeyCredential, token); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// ClearCredential стирает сохранённый токен.
func (c *Client) ClearCredential(ctx context.Context) error {
	if c.credentials == nil {
		return nil
	}
	if err := c.credentials.Delete(ctx, repository.KeyCredential); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
