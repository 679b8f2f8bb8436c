package repo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"shop-bot/migrations"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(r.Close)

	if err := r.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}

func insertProduct(t *testing.T, r *SQLiteRepository, id, code, name, category string, price int64) {
	t.Helper()
	var codeVal, catVal interface{}
	if code != "" {
		codeVal = code
	}
	if category != "" {
		catVal = category
	}
	_, err := r.db.Exec(
		`INSERT INTO products (id, code, name, category, price, stock) VALUES (?, ?, ?, ?, ?, 5);`,
		id, codeVal, name, catVal, price,
	)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
}

func TestSQLiteSettingsRoundTrip(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	if err := r.SetSetting(ctx, KeyWelcomeMessage, "hello"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := r.SetSettings(ctx, map[string]string{
		KeyWelcomeMessage: "hello again",
		KeyChannelID:      "@shop",
	}); err != nil {
		t.Fatalf("set settings: %v", err)
	}

	settings, err := r.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings[KeyWelcomeMessage] != "hello again" {
		t.Fatalf("expected overwritten welcome, got %q", settings[KeyWelcomeMessage])
	}
	if settings[KeyChannelID] != "@shop" {
		t.Fatalf("expected channel id, got %q", settings[KeyChannelID])
	}
}

func TestSQLiteUpsertBotUser(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	registered, err := r.IsRegistered(ctx, 42)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if registered {
		t.Fatal("expected unregistered chat")
	}

	phone := "+628123"
	first, err := r.UpsertBotUser(ctx, BotUserProfile{ChatID: 42, PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID == "" || first.ChatID != 42 {
		t.Fatalf("unexpected user: %+v", first)
	}

	// A second share keeps the original id and fills missing fields only.
	name := "Alice"
	second, err := r.UpsertBotUser(ctx, BotUserProfile{ChatID: 42, DisplayName: &name})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("id changed on upsert: %q != %q", second.ID, first.ID)
	}
	if second.PhoneNumber == nil || *second.PhoneNumber != phone {
		t.Fatalf("phone lost on upsert: %+v", second)
	}

	registered, err = r.IsRegistered(ctx, 42)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if !registered {
		t.Fatal("expected registered chat")
	}
}

func TestSQLiteCatalogQueries(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	insertProduct(t, r, "p-1", "TEA01", "Green Tea", "Drinks", 15000)
	insertProduct(t, r, "p-2", "", "Black Tea", "Drinks", 12000)
	insertProduct(t, r, "p-3", "MUG01", "Ceramic Mug", "", 30000)

	p, err := r.GetProduct(ctx, "p-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Name != "Green Tea" || p.Price != 15000 {
		t.Fatalf("unexpected product: %+v", p)
	}

	if _, err := r.GetProduct(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Code lookup is case-insensitive.
	p, err = r.GetProductByCode(ctx, "tea01")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if p.ID != "p-1" {
		t.Fatalf("expected p-1, got %s", p.ID)
	}
	if _, err := r.GetProductByCode(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty code, got %v", err)
	}

	categories, err := r.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", categories)
	}
	if categories[0].Name != "" || categories[0].Count != 1 {
		t.Fatalf("expected uncategorised first, got %+v", categories[0])
	}
	if categories[1].Name != "Drinks" || categories[1].Count != 2 {
		t.Fatalf("unexpected category: %+v", categories[1])
	}

	drinks, err := r.ListProductsByCategory(ctx, "Drinks", 10)
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(drinks) != 2 {
		t.Fatalf("expected 2 drinks, got %+v", drinks)
	}

	uncategorised, err := r.ListProductsByCategory(ctx, "", 10)
	if err != nil {
		t.Fatalf("list uncategorised: %v", err)
	}
	if len(uncategorised) != 1 || uncategorised[0].ID != "p-3" {
		t.Fatalf("expected p-3, got %+v", uncategorised)
	}

	results, err := r.SearchProductsByName(ctx, "tea", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %+v", results)
	}

	results, err = r.SearchProductsByName(ctx, "   ", 10)
	if err != nil {
		t.Fatalf("blank search: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil for blank query, got %+v", results)
	}
}
