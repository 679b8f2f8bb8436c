package convo

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"shop-bot/internal/media"
	"shop-bot/internal/repo"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sentText struct {
	chatID int64
	text   string
	markup interface{}
}

type fakeSender struct {
	texts     []sentText
	photos    []sentText
	callbacks []string
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string, markup interface{}) error {
	f.texts = append(f.texts, sentText{chatID: chatID, text: text, markup: markup})
	return nil
}

func (f *fakeSender) SendPhoto(_ context.Context, chatID int64, _ *media.Payload, caption string, markup interface{}) error {
	f.photos = append(f.photos, sentText{chatID: chatID, text: caption, markup: markup})
	return nil
}

func (f *fakeSender) AnswerCallback(_ context.Context, callbackID string) error {
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

type fakeStore struct {
	registered bool
	products   map[string]*repo.Product
	byCode     map[string]*repo.Product
	categories []repo.Category
	byCategory map[string][]repo.Product
	byName     []repo.Product

	upserts []repo.BotUserProfile
}

func (f *fakeStore) IsRegistered(context.Context, int64) (bool, error) {
	return f.registered, nil
}

func (f *fakeStore) UpsertBotUser(_ context.Context, profile repo.BotUserProfile) (*repo.BotUser, error) {
	f.upserts = append(f.upserts, profile)
	f.registered = true
	return &repo.BotUser{ID: "u-1", ChatID: profile.ChatID}, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (*repo.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) GetProductByCode(_ context.Context, code string) (*repo.Product, error) {
	if p, ok := f.byCode[strings.ToLower(code)]; ok {
		return p, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) ListCategories(context.Context) ([]repo.Category, error) {
	return f.categories, nil
}

func (f *fakeStore) ListProductsByCategory(_ context.Context, category string, _ int) ([]repo.Product, error) {
	return f.byCategory[category], nil
}

func (f *fakeStore) SearchProductsByName(context.Context, string, int) ([]repo.Product, error) {
	return f.byName, nil
}

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) Get(context.Context) (map[string]string, error) {
	return f.values, nil
}

func newTestEngine(store *fakeStore, settings map[string]string) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, &fakeSettings{values: settings}, media.NewResolver(logger), nil, logger, Config{})
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.Index(text, " "); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: cmdLen},
		},
	}}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestStartUnregisteredPromptsForContact(t *testing.T) {
	store := &fakeStore{registered: false}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, commandUpdate(7, "/start"))

	if len(sender.texts) != 1 {
		t.Fatalf("expected one reply, got %d", len(sender.texts))
	}
	if sender.texts[0].text != contactPromptText {
		t.Fatalf("expected contact prompt, got %q", sender.texts[0].text)
	}
	if _, ok := sender.texts[0].markup.(tgbotapi.ReplyKeyboardMarkup); !ok {
		t.Fatalf("expected contact reply keyboard, got %T", sender.texts[0].markup)
	}
}

func TestStartDeepLinkResolvesProduct(t *testing.T) {
	store := &fakeStore{
		registered: true,
		products:   map[string]*repo.Product{"p-1": {ID: "p-1", Name: "Green Tea", Price: 15000}},
	}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, commandUpdate(7, "/start product_p-1"))

	if len(sender.texts) != 1 {
		t.Fatalf("expected one reply, got %d", len(sender.texts))
	}
	if !strings.Contains(sender.texts[0].text, "Green Tea") {
		t.Fatalf("expected product card, got %q", sender.texts[0].text)
	}
}

func TestStartDeepLinkUnknownProduct(t *testing.T) {
	store := &fakeStore{registered: true}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, commandUpdate(7, "/start product_missing"))

	if len(sender.texts) != 1 || sender.texts[0].text != notFoundText {
		t.Fatalf("expected not-found reply, got %+v", sender.texts)
	}
}

func TestCallbackHomeShowsConfiguredMenu(t *testing.T) {
	store := &fakeStore{registered: true}
	engine := newTestEngine(store, map[string]string{repo.KeyWelcomeMessage: "Custom welcome"})
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, callbackUpdate(7, navToken(argHome)))

	if len(sender.callbacks) != 1 {
		t.Fatalf("expected callback acknowledged, got %d", len(sender.callbacks))
	}
	if len(sender.texts) != 1 || sender.texts[0].text != "Custom welcome" {
		t.Fatalf("expected configured menu text, got %+v", sender.texts)
	}
}

func TestCallbackUnregisteredAlwaysPrompts(t *testing.T) {
	store := &fakeStore{registered: false}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, callbackUpdate(7, productToken("p-1")))

	if len(sender.texts) != 1 || sender.texts[0].text != contactPromptText {
		t.Fatalf("expected contact prompt, got %+v", sender.texts)
	}
}

func TestStaleCategoryTokenDegradesGracefully(t *testing.T) {
	store := &fakeStore{registered: true, byCategory: map[string][]repo.Product{}}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, callbackUpdate(7, categoryToken("gone")))

	if len(sender.texts) != 1 || sender.texts[0].text != staleCategoryText {
		t.Fatalf("expected stale-category reply, got %+v", sender.texts)
	}
}

func TestContactShareRegistersAndShowsMenu(t *testing.T) {
	store := &fakeStore{registered: false}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 7},
		From:    &tgbotapi.User{UserName: "alice"},
		Contact: &tgbotapi.Contact{PhoneNumber: "+628123", FirstName: "Alice"},
	}})

	if len(store.upserts) != 1 {
		t.Fatalf("expected one registration write, got %d", len(store.upserts))
	}
	profile := store.upserts[0]
	if profile.ChatID != 7 || profile.PhoneNumber == nil || *profile.PhoneNumber != "+628123" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if len(sender.texts) != 2 {
		t.Fatalf("expected confirmation plus menu, got %d replies", len(sender.texts))
	}
	if sender.texts[0].text != registeredText {
		t.Fatalf("expected registration confirmation first, got %q", sender.texts[0].text)
	}
}

func TestFullBrowseRoundTripEndsAtMainMenu(t *testing.T) {
	category := "Drinks"
	store := &fakeStore{
		products:   map[string]*repo.Product{"p-1": {ID: "p-1", Name: "Green Tea", Category: &category, Price: 15000}},
		categories: []repo.Category{{Name: "Drinks", Count: 1}},
		byCategory: map[string][]repo.Product{"Drinks": {{ID: "p-1", Name: "Green Tea", Price: 15000}}},
	}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}
	ctx := context.Background()

	engine.HandleUpdate(ctx, sender, commandUpdate(7, "/start"))
	engine.HandleUpdate(ctx, sender, tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 7},
		Contact: &tgbotapi.Contact{PhoneNumber: "+628123", FirstName: "Alice"},
	}})
	engine.HandleUpdate(ctx, sender, callbackUpdate(7, navToken(argCategories)))
	engine.HandleUpdate(ctx, sender, callbackUpdate(7, categoryToken("Drinks")))
	engine.HandleUpdate(ctx, sender, callbackUpdate(7, productToken("p-1")))
	engine.HandleUpdate(ctx, sender, callbackUpdate(7, navToken(argHome)))

	if len(sender.texts) == 0 {
		t.Fatal("no replies recorded")
	}
	last := sender.texts[len(sender.texts)-1]
	if last.text != defaultWelcome {
		t.Fatalf("expected round trip to end at main menu, got %q", last.text)
	}
	// The menu after the contact share and the menu after nav:home render
	// identically.
	afterContact := sender.texts[2]
	if last.text != afterContact.text {
		t.Fatalf("menu drifted: %q vs %q", last.text, afterContact.text)
	}
}

func TestFreeTextReplyToCodePromptSearchesByCode(t *testing.T) {
	product := &repo.Product{ID: "p-1", Name: "Green Tea", Price: 15000}
	store := &fakeStore{
		registered: true,
		products:   map[string]*repo.Product{"p-1": product},
		byCode:     map[string]*repo.Product{"sku42": product},
	}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:           &tgbotapi.Chat{ID: 7},
		Text:           "SKU42",
		ReplyToMessage: &tgbotapi.Message{Text: searchCodePrompt},
	}})

	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0].text, "Green Tea") {
		t.Fatalf("expected product card from code search, got %+v", sender.texts)
	}
}

func TestFreeTextDefaultsToNameSearch(t *testing.T) {
	store := &fakeStore{
		registered: true,
		byName:     []repo.Product{{ID: "p-1", Name: "Green Tea", Price: 15000}},
	}
	engine := newTestEngine(store, nil)
	sender := &fakeSender{}

	engine.HandleUpdate(context.Background(), sender, tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 7},
		Text: "tea",
	}})

	if len(sender.texts) != 1 {
		t.Fatalf("expected results reply, got %d", len(sender.texts))
	}
	kb, ok := sender.texts[0].markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", sender.texts[0].markup)
	}
	if kb.InlineKeyboard[0][0].CallbackData == nil || *kb.InlineKeyboard[0][0].CallbackData != productToken("p-1") {
		t.Fatalf("expected product button, got %+v", kb.InlineKeyboard[0][0])
	}
}
