package convo

import (
	"fmt"
	"strconv"
	"strings"

	"shop-bot/internal/repo"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Default storefront texts, used when the admin surface has not written the
// corresponding settings key yet.
const (
	defaultWelcome    = "Welcome to our store! Pick one of the options below:"
	defaultBtnSearch  = "🔍 Search by name"
	defaultBtnCode    = "🔢 Search by code"
	defaultBtnCat     = "📂 Categories"
	defaultBtnCart    = "🛒 Cart"
	defaultBtnSignup  = "📱 Sign up with phone number"
	uncategorisedName = "Uncategorised"

	contactPromptText  = "Hi! To use this bot, please share your phone number first."
	registeredText     = "✅ You are registered!"
	searchNamePrompt   = "Enter a product name to search:"
	searchCodePrompt   = "Enter a product code:"
	cartEmptyText      = "Your cart is currently empty. Browse the catalog and add products to it."
	notFoundText       = "Sorry, that item is no longer available."
	staleCategoryText  = "That category no longer exists."
	noCategoriesText   = "No categories yet. Check back soon!"
	noResultsText      = "No products matched your search."
	fallbackText       = "Something went wrong, please return to the menu."
	chooseCategoryText = "Please choose a category:"
	backToMenuLabel    = "🏠 Main menu"
	backToCatsLabel    = "🔙 Back to categories"
	addToCartLabel     = "🛒 Add to cart"
)

func settingText(settings map[string]string, key, fallback string) string {
	if v, ok := settings[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func mainMenuText(settings map[string]string) string {
	return settingText(settings, repo.KeyWelcomeMessage, defaultWelcome)
}

func mainMenuKeyboard(settings map[string]string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(settingText(settings, repo.KeyBtnSearchText, defaultBtnSearch), actionToken(argSearch)),
			tgbotapi.NewInlineKeyboardButtonData(settingText(settings, repo.KeyBtnCodeText, defaultBtnCode), actionToken(argSearchCode)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(settingText(settings, repo.KeyBtnCatText, defaultBtnCat), navToken(argCategories)),
			tgbotapi.NewInlineKeyboardButtonData(settingText(settings, repo.KeyBtnCartText, defaultBtnCart), actionToken(argCart)),
		),
	)
}

func contactKeyboard(settings map[string]string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact(settingText(settings, repo.KeyBtnSignupText, defaultBtnSignup)),
		),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

func homeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(backToMenuLabel, navToken(argHome)),
		),
	)
}

func categoriesKeyboard(categories []repo.Category) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(categories)+1)
	for _, c := range categories {
		label := c.Name
		if label == "" {
			label = uncategorisedName
		}
		label = fmt.Sprintf("%s (%d)", label, c.Count)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, categoryToken(c.Name)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(backToMenuLabel, navToken(argHome)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func productListKeyboard(products []repo.Product, backToken string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products)+1)
	for _, p := range products {
		label := fmt.Sprintf("%s — %s", p.Name, formatPrice(p.Price))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, productToken(p.ID)),
		))
	}
	nav := []tgbotapi.InlineKeyboardButton{}
	if backToken != "" {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(backToCatsLabel, backToken))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(backToMenuLabel, navToken(argHome)))
	rows = append(rows, nav)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ProductCaption composes the product-card text: name, code (or a
// placeholder), price, stock and description. Shared with the broadcast
// publisher so channel posts match the in-chat card.
func ProductCaption(p *repo.Product) string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteString("\n\n")

	code := "—"
	if p.Code != nil && *p.Code != "" {
		code = *p.Code
	}
	fmt.Fprintf(&b, "Code: %s\n", code)
	fmt.Fprintf(&b, "Price: %s\n", formatPrice(p.Price))
	if p.Stock > 0 {
		fmt.Fprintf(&b, "Stock: %d\n", p.Stock)
	} else {
		b.WriteString("Out of stock\n")
	}
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}
	return strings.TrimSpace(b.String())
}

func productKeyboard(p *repo.Product) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(addToCartLabel, cartAddToken(p.ID)),
		),
	}
	nav := []tgbotapi.InlineKeyboardButton{}
	if p.Category != nil && *p.Category != "" {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(backToCatsLabel, categoryToken(*p.Category)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(backToMenuLabel, navToken(argHome)))
	rows = append(rows, nav)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// formatPrice renders an integer price with thousands separators.
func formatPrice(price int64) string {
	s := strconv.FormatInt(price, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
