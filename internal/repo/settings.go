package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSettings returns the full settings map.
func (r *PGRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	const q = `SELECT key, value FROM settings;`
	rows, err := r.pool.Query(ctx, q)
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

// SetSetting writes a single key. Settings are created on first write and
// updated in place afterwards.
func (r *PGRepository) SetSetting(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW();
`
	if _, err := r.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// SetSettings writes the provided keys in one transaction, matching the
// wholesale save performed by the admin surface.
func (r *PGRepository) SetSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for key, value := range values {
			if _, err := tx.Exec(ctx, `
INSERT INTO settings (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW();
`, key, value); err != nil {
				return fmt.Errorf("set setting %s: %w", key, err)
			}
		}
		return nil
	})
}
