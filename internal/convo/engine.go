// Package convo routes inbound Telegram events to outbound storefront
// replies. The engine holds no per-user state: every reply is derived from
// the event payload (command arguments, callback tokens, force-reply
// correlation) plus fresh database lookups.
package convo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"shop-bot/internal/media"
	"shop-bot/internal/metrics"
	"shop-bot/internal/repo"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender captures the outbound operations the engine needs. *tg.Client
// satisfies it; tests use a fake.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error
	SendPhoto(ctx context.Context, chatID int64, payload *media.Payload, caption string, replyMarkup interface{}) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Store is the slice of the repository the engine reads.
type Store interface {
	IsRegistered(ctx context.Context, chatID int64) (bool, error)
	UpsertBotUser(ctx context.Context, profile repo.BotUserProfile) (*repo.BotUser, error)
	GetProduct(ctx context.Context, id string) (*repo.Product, error)
	GetProductByCode(ctx context.Context, code string) (*repo.Product, error)
	ListCategories(ctx context.Context) ([]repo.Category, error)
	ListProductsByCategory(ctx context.Context, category string, limit int) ([]repo.Product, error)
	SearchProductsByName(ctx context.Context, query string, limit int) ([]repo.Product, error)
}

// SettingsSource provides the current storefront settings.
type SettingsSource interface {
	Get(ctx context.Context) (map[string]string, error)
}

// Engine is the stateless conversation router.
type Engine struct {
	store       Store
	settings    SettingsSource
	media       *media.Resolver
	metrics     *metrics.Metrics
	logger      *slog.Logger
	searchLimit int
}

// Config holds engine tunables.
type Config struct {
	SearchLimit int
}

// New creates a conversation engine.
func New(store Store, settings SettingsSource, resolver *media.Resolver, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg Config) *Engine {
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = 10
	}
	return &Engine{
		store:       store,
		settings:    settings,
		media:       resolver,
		metrics:     metricRegistry,
		logger:      logger.With("component", "convo"),
		searchLimit: limit,
	}
}

// HandleUpdate routes one inbound update. Failures never escape: they are
// logged and converted into a user-visible fallback reply.
func (e *Engine) HandleUpdate(ctx context.Context, s Sender, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic recovered", "panic", r)
			e.countError("convo_panic")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		e.observe("callback", func() { e.handleCallback(ctx, s, update.CallbackQuery) })
	case update.Message != nil && update.Message.Contact != nil:
		e.observe("contact", func() { e.handleContact(ctx, s, update.Message) })
	case update.Message != nil && update.Message.IsCommand():
		e.observe("command", func() { e.handleCommand(ctx, s, update.Message) })
	case update.Message != nil && strings.TrimSpace(update.Message.Text) != "":
		e.observe("text", func() { e.handleFreeText(ctx, s, update.Message) })
	}
}

func (e *Engine) observe(handler string, fn func()) {
	start := time.Now()
	fn()
	if e.metrics != nil {
		e.metrics.HandlerLatency.WithLabelValues(handler).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) handleCommand(ctx context.Context, s Sender, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Command() != "start" {
		e.sendMainMenuOrPrompt(ctx, s, chatID)
		return
	}

	registered, err := e.isRegistered(ctx, chatID)
	if err != nil {
		e.sendFallback(ctx, s, chatID)
		return
	}
	if !registered {
		// Registration precedes deep-link resolution.
		e.sendContactPrompt(ctx, s, chatID)
		return
	}

	if id, ok := parseProductStart(strings.TrimSpace(msg.CommandArguments())); ok {
		e.sendProductCard(ctx, s, chatID, id)
		return
	}
	e.sendMainMenu(ctx, s, chatID)
}

func (e *Engine) handleContact(ctx context.Context, s Sender, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	contact := msg.Contact

	name := strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	profile := repo.BotUserProfile{
		ChatID:      chatID,
		PhoneNumber: optional(contact.PhoneNumber),
		DisplayName: optional(name),
	}
	if msg.From != nil {
		profile.Username = optional(msg.From.UserName)
		if name == "" {
			profile.DisplayName = optional(strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName))
		}
	}

	if _, err := e.store.UpsertBotUser(ctx, profile); err != nil {
		// One retry before surfacing a failure to the user.
		e.logger.Warn("registration write failed, retrying", "chat_id", chatID, "error", err)
		if _, err := e.store.UpsertBotUser(ctx, profile); err != nil {
			e.logger.Error("registration failed", "chat_id", chatID, "error", err)
			e.countError("register")
			e.sendFallback(ctx, s, chatID)
			return
		}
	}

	settings := e.currentSettings(ctx)
	removeKB := tgbotapi.NewRemoveKeyboard(false)
	if err := s.SendText(ctx, chatID, registeredText, removeKB); err != nil {
		e.logSendError(chatID, err)
	}
	if err := s.SendText(ctx, chatID, mainMenuText(settings), mainMenuKeyboard(settings)); err != nil {
		e.logSendError(chatID, err)
	}
}

func (e *Engine) handleCallback(ctx context.Context, s Sender, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	// Clear the client's loading spinner regardless of outcome.
	if err := s.AnswerCallback(ctx, cb.ID); err != nil {
		e.logger.Debug("answer callback failed", "error", err)
	}

	registered, err := e.isRegistered(ctx, chatID)
	if err != nil {
		e.sendFallback(ctx, s, chatID)
		return
	}
	if !registered {
		e.sendContactPrompt(ctx, s, chatID)
		return
	}

	token, ok := parseToken(cb.Data)
	if !ok {
		e.sendInfo(ctx, s, chatID, fallbackText)
		return
	}

	switch token.NS {
	case nsNav:
		switch token.Arg {
		case argHome:
			e.sendMainMenu(ctx, s, chatID)
		case argCategories:
			e.sendCategories(ctx, s, chatID)
		default:
			e.sendInfo(ctx, s, chatID, fallbackText)
		}
	case nsCategory:
		e.sendCategoryProducts(ctx, s, chatID, token.Arg)
	case nsProduct:
		e.sendProductCard(ctx, s, chatID, token.Arg)
	case nsAction:
		e.handleAction(ctx, s, chatID, token.Arg)
	}
}

func (e *Engine) handleAction(ctx context.Context, s Sender, chatID int64, arg string) {
	switch {
	case arg == argSearch:
		if err := s.SendText(ctx, chatID, searchNamePrompt, tgbotapi.ForceReply{ForceReply: true}); err != nil {
			e.logSendError(chatID, err)
		}
	case arg == argSearchCode:
		if err := s.SendText(ctx, chatID, searchCodePrompt, tgbotapi.ForceReply{ForceReply: true}); err != nil {
			e.logSendError(chatID, err)
		}
	case arg == argCart:
		e.sendInfo(ctx, s, chatID, cartEmptyText)
	case strings.HasPrefix(arg, argCartAdd+":"):
		e.sendCartAdd(ctx, s, chatID, strings.TrimPrefix(arg, argCartAdd+":"))
	default:
		e.sendInfo(ctx, s, chatID, fallbackText)
	}
}

// handleFreeText classifies a plain message by the prompt it replies to.
// Search prompts are sent with ForceReply, so the mode travels inside the
// inbound payload instead of a server-side session.
func (e *Engine) handleFreeText(ctx context.Context, s Sender, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	registered, err := e.isRegistered(ctx, chatID)
	if err != nil {
		e.sendFallback(ctx, s, chatID)
		return
	}
	if !registered {
		e.sendContactPrompt(ctx, s, chatID)
		return
	}

	query := strings.TrimSpace(msg.Text)
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.Text == searchCodePrompt {
		e.sendCodeResult(ctx, s, chatID, query)
		return
	}
	e.sendNameResults(ctx, s, chatID, query)
}

func (e *Engine) sendNameResults(ctx context.Context, s Sender, chatID int64, query string) {
	products, err := e.store.SearchProductsByName(ctx, query, e.searchLimit)
	if err != nil {
		e.logger.Error("name search failed", "error", err)
		e.countError("search")
		e.sendFallback(ctx, s, chatID)
		return
	}
	if len(products) == 0 {
		e.sendInfo(ctx, s, chatID, noResultsText)
		return
	}
	if err := s.SendText(ctx, chatID, "Results:", productListKeyboard(products, "")); err != nil {
		e.logSendError(chatID, err)
	}
}

func (e *Engine) sendCodeResult(ctx context.Context, s Sender, chatID int64, code string) {
	product, err := e.store.GetProductByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.sendInfo(ctx, s, chatID, noResultsText)
			return
		}
		e.logger.Error("code search failed", "error", err)
		e.countError("search")
		e.sendFallback(ctx, s, chatID)
		return
	}
	e.sendProductCard(ctx, s, chatID, product.ID)
}

func (e *Engine) sendCategories(ctx context.Context, s Sender, chatID int64) {
	categories, err := e.store.ListCategories(ctx)
	if err != nil {
		e.logger.Error("list categories failed", "error", err)
		e.countError("catalog")
		e.sendFallback(ctx, s, chatID)
		return
	}
	if len(categories) == 0 {
		e.sendInfo(ctx, s, chatID, noCategoriesText)
		return
	}
	if err := s.SendText(ctx, chatID, chooseCategoryText, categoriesKeyboard(categories)); err != nil {
		e.logSendError(chatID, err)
	}
}

func (e *Engine) sendCategoryProducts(ctx context.Context, s Sender, chatID int64, category string) {
	products, err := e.store.ListProductsByCategory(ctx, category, e.searchLimit)
	if err != nil {
		e.logger.Error("list category products failed", "category", category, "error", err)
		e.countError("catalog")
		e.sendFallback(ctx, s, chatID)
		return
	}
	if len(products) == 0 {
		// Stale token: the category was renamed or its products removed.
		e.sendInfo(ctx, s, chatID, staleCategoryText)
		return
	}
	if err := s.SendText(ctx, chatID, chooseProductText(category), productListKeyboard(products, navToken(argCategories))); err != nil {
		e.logSendError(chatID, err)
	}
}

func chooseProductText(category string) string {
	if category == "" {
		category = uncategorisedName
	}
	return category + ":"
}

// sendProductCard renders the product detail reply: caption plus image when
// the media adapter yields one, text-only otherwise. The text fallback must
// never fail the whole response.
func (e *Engine) sendProductCard(ctx context.Context, s Sender, chatID int64, id string) {
	product, err := e.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.sendInfo(ctx, s, chatID, notFoundText)
			return
		}
		e.logger.Error("get product failed", "product_id", id, "error", err)
		e.countError("catalog")
		e.sendFallback(ctx, s, chatID)
		return
	}

	caption := ProductCaption(product)
	keyboard := productKeyboard(product)

	if payload := e.media.Resolve(product.ImageRef); payload != nil {
		err := s.SendPhoto(ctx, chatID, payload, caption, keyboard)
		if err == nil {
			return
		}
		e.logger.Warn("photo send failed, falling back to text", "product_id", id, "error", err)
		e.countError("media")
	}
	if err := s.SendText(ctx, chatID, caption, keyboard); err != nil {
		e.logSendError(chatID, err)
	}
}

func (e *Engine) sendCartAdd(ctx context.Context, s Sender, chatID int64, id string) {
	product, err := e.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.sendInfo(ctx, s, chatID, notFoundText)
			return
		}
		e.logger.Error("cart add lookup failed", "product_id", id, "error", err)
		e.countError("catalog")
		e.sendFallback(ctx, s, chatID)
		return
	}
	text := "✅ " + product.Name + " noted! Contact the store to complete your order."
	e.sendInfo(ctx, s, chatID, text)
}

func (e *Engine) sendMainMenuOrPrompt(ctx context.Context, s Sender, chatID int64) {
	registered, err := e.isRegistered(ctx, chatID)
	if err != nil {
		e.sendFallback(ctx, s, chatID)
		return
	}
	if !registered {
		e.sendContactPrompt(ctx, s, chatID)
		return
	}
	e.sendMainMenu(ctx, s, chatID)
}

func (e *Engine) sendMainMenu(ctx context.Context, s Sender, chatID int64) {
	settings := e.currentSettings(ctx)
	if err := s.SendText(ctx, chatID, mainMenuText(settings), mainMenuKeyboard(settings)); err != nil {
		e.logSendError(chatID, err)
	}
}

func (e *Engine) sendContactPrompt(ctx context.Context, s Sender, chatID int64) {
	settings := e.currentSettings(ctx)
	if err := s.SendText(ctx, chatID, contactPromptText, contactKeyboard(settings)); err != nil {
		e.logSendError(chatID, err)
	}
}

// sendInfo delivers an informational message with a return-to-menu button.
func (e *Engine) sendInfo(ctx context.Context, s Sender, chatID int64, text string) {
	if err := s.SendText(ctx, chatID, text, homeKeyboard()); err != nil {
		e.logSendError(chatID, err)
	}
}

func (e *Engine) sendFallback(ctx context.Context, s Sender, chatID int64) {
	e.sendInfo(ctx, s, chatID, fallbackText)
}

func (e *Engine) isRegistered(ctx context.Context, chatID int64) (bool, error) {
	registered, err := e.store.IsRegistered(ctx, chatID)
	if err != nil {
		e.logger.Error("registration lookup failed", "chat_id", chatID, "error", err)
		e.countError("registration")
		return false, err
	}
	return registered, nil
}

func (e *Engine) currentSettings(ctx context.Context) map[string]string {
	settings, err := e.settings.Get(ctx)
	if err != nil {
		e.logger.Warn("settings read failed, using defaults", "error", err)
		return map[string]string{}
	}
	return settings
}

func (e *Engine) countError(component string) {
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues(component).Inc()
	}
}

func (e *Engine) logSendError(chatID int64, err error) {
	e.logger.Error("send failed", "chat_id", chatID, "error", err)
	e.countError("send")
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
