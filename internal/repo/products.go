package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const productColumns = `id, code, name, category, price, stock, description, image_ref, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Description, &p.ImageRef, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProduct returns a product by its identifier.
func (r *PGRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	q := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1 LIMIT 1;`, productColumns)
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetProductByCode returns a product by its exact code, case-insensitively.
func (r *PGRepository) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}
	q := fmt.Sprintf(`SELECT %s FROM products WHERE LOWER(code) = LOWER($1) LIMIT 1;`, productColumns)
	p, err := scanProduct(r.pool.QueryRow(ctx, q, code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product by code: %w", err)
	}
	return p, nil
}

// ListCategories derives categories from the products table, matching the
// admin surface which never stores categories separately. Products without
// a category are reported under the empty name.
func (r *PGRepository) ListCategories(ctx context.Context) ([]Category, error) {
	const q = `
SELECT COALESCE(category, ''), COUNT(*)
FROM products
GROUP BY COALESCE(category, '')
ORDER BY COALESCE(category, '');
`
	rows, err := r.pool.Query(ctx, q)
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

// ListProductsByCategory returns products in a category. The empty category
// selects uncategorised products.
func (r *PGRepository) ListProductsByCategory(ctx context.Context, category string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	q := fmt.Sprintf(`
SELECT %s FROM products
WHERE COALESCE(category, '') = $1
ORDER BY name
LIMIT $2;
`, productColumns)
	rows, err := r.pool.Query(ctx, q, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list products by category: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// SearchProductsByName matches products by case-insensitive substring.
func (r *PGRepository) SearchProductsByName(ctx context.Context, query string, limit int) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := fmt.Sprintf(`
SELECT %s FROM products
WHERE name ILIKE '%%' || $1 || '%%'
ORDER BY name
LIMIT $2;
`, productColumns)
	rows, err := r.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
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
