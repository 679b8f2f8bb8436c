package convo

import (
	"strings"
	"testing"

	"shop-bot/internal/repo"
)

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		price int64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{25000, "25,000"},
		{1234567, "1,234,567"},
	}
	for _, tc := range cases {
		if got := formatPrice(tc.price); got != tc.want {
			t.Fatalf("formatPrice(%d) = %q, want %q", tc.price, got, tc.want)
		}
	}
}

func TestSettingTextPrefersStoredValue(t *testing.T) {
	settings := map[string]string{repo.KeyWelcomeMessage: "Selamat datang!"}
	if got := mainMenuText(settings); got != "Selamat datang!" {
		t.Fatalf("expected stored welcome, got %q", got)
	}
	if got := mainMenuText(map[string]string{repo.KeyWelcomeMessage: "  "}); got != defaultWelcome {
		t.Fatalf("blank setting should fall back to default, got %q", got)
	}
	if got := mainMenuText(nil); got != defaultWelcome {
		t.Fatalf("missing setting should fall back to default, got %q", got)
	}
}

func TestProductCaption(t *testing.T) {
	code := "SKU42"
	p := &repo.Product{
		ID:          "p-1",
		Code:        &code,
		Name:        "Green Tea",
		Price:       15000,
		Stock:       3,
		Description: "Loose leaf, 100g.",
	}
	caption := ProductCaption(p)
	for _, want := range []string{"Green Tea", "Code: SKU42", "Price: 15,000", "Stock: 3", "Loose leaf, 100g."} {
		if !strings.Contains(caption, want) {
			t.Fatalf("caption missing %q:\n%s", want, caption)
		}
	}

	p.Stock = 0
	p.Code = nil
	caption = ProductCaption(p)
	if !strings.Contains(caption, "Out of stock") {
		t.Fatalf("expected out-of-stock marker:\n%s", caption)
	}
	if strings.Contains(caption, "Stock:") {
		t.Fatalf("unexpected stock line for empty stock:\n%s", caption)
	}
}

func TestProductListKeyboardIncludesBackNavigation(t *testing.T) {
	products := []repo.Product{{ID: "p-1", Name: "A", Price: 100}}

	kb := productListKeyboard(products, navToken(argCategories))
	last := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	if len(last) != 2 {
		t.Fatalf("expected back and home buttons, got %d", len(last))
	}

	kb = productListKeyboard(products, "")
	last = kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	if len(last) != 1 {
		t.Fatalf("expected home button only, got %d", len(last))
	}
}
