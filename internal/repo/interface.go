package repo

import (
	"context"
	"errors"
	"io/fs"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Settings
	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
	SetSettings(ctx context.Context, values map[string]string) error

	// Bot users
	IsRegistered(ctx context.Context, chatID int64) (bool, error)
	UpsertBotUser(ctx context.Context, profile BotUserProfile) (*BotUser, error)

	// Catalog (read-only for the bot core)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListProductsByCategory(ctx context.Context, category string, limit int) ([]Product, error)
	SearchProductsByName(ctx context.Context, query string, limit int) ([]Product, error)
}
