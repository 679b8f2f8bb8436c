package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// -- Settings --

func (r *SQLiteRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings;`)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

func (r *SQLiteRepository) SetSetting(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP;
`
	if _, err := r.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) SetSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO settings (key, value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP;
`, key, value); err != nil {
			return fmt.Errorf("set setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// -- Bot users --

func (r *SQLiteRepository) IsRegistered(ctx context.Context, chatID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bot_users WHERE chat_id = ?);`, chatID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is registered: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) UpsertBotUser(ctx context.Context, profile BotUserProfile) (*BotUser, error) {
	// SQLite has no server-side UUID generation, so ids are minted here.
	// On conflict the existing id wins.
	const q = `
INSERT INTO bot_users (id, chat_id, display_name, phone_number, username, updated_at)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (chat_id) DO UPDATE SET
    display_name = COALESCE(excluded.display_name, bot_users.display_name),
    phone_number = COALESCE(excluded.phone_number, bot_users.phone_number),
    username = COALESCE(excluded.username, bot_users.username),
    updated_at = CURRENT_TIMESTAMP
RETURNING id, chat_id, display_name, phone_number, username, registered_at, updated_at;
`
	row := r.db.QueryRowContext(ctx, q,
		uuid.NewString(),
		profile.ChatID,
		profile.DisplayName,
		profile.PhoneNumber,
		profile.Username,
	)

	var u BotUser
	if err := row.Scan(&u.ID, &u.ChatID, &u.DisplayName, &u.PhoneNumber, &u.Username, &u.RegisteredAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert bot user: %w", err)
	}
	return &u, nil
}

// -- Catalog --

func (r *SQLiteRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	const q = `
SELECT id, code, name, category, price, stock, description, image_ref, created_at
FROM products WHERE id = ? LIMIT 1;
`
	return r.scanOneProduct(r.db.QueryRowContext(ctx, q, id), "get product")
}

func (r *SQLiteRepository) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}
	const q = `
SELECT id, code, name, category, price, stock, description, image_ref, created_at
FROM products WHERE LOWER(code) = LOWER(?) LIMIT 1;
`
	return r.scanOneProduct(r.db.QueryRowContext(ctx, q, code), "get product by code")
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]Category, error) {
	const q = `
SELECT COALESCE(category, ''), COUNT(*)
FROM products
GROUP BY COALESCE(category, '')
ORDER BY COALESCE(category, '');
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r *SQLiteRepository) ListProductsByCategory(ctx context.Context, category string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT id, code, name, category, price, stock, description, image_ref, created_at
FROM products
WHERE COALESCE(category, '') = ?
ORDER BY name
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list products by category: %w", err)
	}
	defer rows.Close()
	return r.collectProducts(rows)
}

func (r *SQLiteRepository) SearchProductsByName(ctx context.Context, query string, limit int) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT id, code, name, category, price, stock, description, image_ref, created_at
FROM products
WHERE LOWER(name) LIKE '%' || LOWER(?) || '%'
ORDER BY name
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return r.collectProducts(rows)
}

func (r *SQLiteRepository) scanOneProduct(row *sql.Row, op string) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Description, &p.ImageRef, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

func (r *SQLiteRepository) collectProducts(rows *sql.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Description, &p.ImageRef, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}
