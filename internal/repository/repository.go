// Package repository содержит хранилища клиентского состояния, переживающего перезапуск процесса.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Ключи хранилища.
const (
	// KeyCredential хранит bearer-токен строкой.
	KeyCredential = "token"
	// KeySession хранит сериализованный снимок {user, isAuthenticated}.
	KeySession = "auth-storage"
	// KeyRecentSearches хранит JSON-массив последних поисковых запросов.
	KeyRecentSearches = "recentSearches"
)

// ErrNotFound возвращается, если значение по ключу отсутствует.
var ErrNotFound = errors.New("state key not found")

// Storage описывает хранилище строковых значений по ключу.
// Запись работает по принципу last-writer-wins, блокировки между процессами не требуются.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend определяет тип хранилища.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Open создаёт хранилище указанного типа. dsn интерпретируется в зависимости от типа:
// путь к файлу, DSN базы данных или адрес Redis.
func Open(ctx context.Context, backend Backend, dsn string) (Storage, error) {
	switch Backend(strings.ToLower(string(backend))) {
	case BackendMemory, "":
		return NewMemoryStorage(), nil
	case BackendFile:
		return NewFileStorage(dsn)
	case BackendSQLite:
		return NewSQLiteStorage(ctx, dsn)
	case BackendPostgres:
		return NewPostgresStorage(ctx, dsn)
	case BackendRedis:
		return NewRedisStorage(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
