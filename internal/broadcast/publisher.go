// Package broadcast pushes single catalog items to the configured channel
// with a deep-link purchase button, reusing the manager's live connection.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shop-bot/internal/convo"
	"shop-bot/internal/media"
	"shop-bot/internal/metrics"
	"shop-bot/internal/repo"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	// ErrNotConnected is returned when the lifecycle manager is not online.
	ErrNotConnected = errors.New("broadcast: bot is not connected")
	// ErrNoChannel is returned when no channel destination is configured.
	ErrNoChannel = errors.New("broadcast: no channel configured")
	// ErrProductNotFound is returned for an unknown product id.
	ErrProductNotFound = errors.New("broadcast: product not found")
)

const viewProductLabel = "🛍 View product"

// Conn is the live connection slice the publisher sends through.
type Conn interface {
	SendChannelText(ctx context.Context, channel, text string, replyMarkup interface{}) error
	SendChannelPhoto(ctx context.Context, channel string, payload *media.Payload, caption string, replyMarkup interface{}) error
	Self() string
}

// ConnSource yields the current live connection, when online.
type ConnSource func() (Conn, bool)

// Store is the catalog slice the publisher reads.
type Store interface {
	GetProduct(ctx context.Context, id string) (*repo.Product, error)
}

// SettingsSource provides the current settings bundle.
type SettingsSource interface {
	Get(ctx context.Context) (map[string]string, error)
}

// Publisher posts product cards to the broadcast channel.
type Publisher struct {
	source   ConnSource
	store    Store
	settings SettingsSource
	media    *media.Resolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a publisher.
func New(source ConnSource, store Store, settings SettingsSource, resolver *media.Resolver, metricRegistry *metrics.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{
		source:   source,
		store:    store,
		settings: settings,
		media:    resolver,
		metrics:  metricRegistry,
		logger:   logger.With("component", "broadcast"),
	}
}

// Publish posts the product to the configured channel with a deep-link
// button that opens a private chat on that product's card. Transport errors
// are surfaced to the caller and never retried.
func (p *Publisher) Publish(ctx context.Context, productID string) error {
	conn, online := p.source()
	if !online {
		p.count("not_connected")
		return ErrNotConnected
	}

	settings, err := p.settings.Get(ctx)
	if err != nil {
		p.count("settings_error")
		return fmt.Errorf("read settings: %w", err)
	}
	channel := strings.TrimSpace(settings[repo.KeyChannelID])
	if channel == "" {
		p.count("no_channel")
		return ErrNoChannel
	}

	product, err := p.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			p.count("not_found")
			return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		p.count("store_error")
		return fmt.Errorf("load product: %w", err)
	}

	// Telegram start payloads cannot contain ':', hence the underscore form.
	deepLink := fmt.Sprintf("https://t.me/%s?start=product_%s", conn.Self(), product.ID)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(viewProductLabel, deepLink),
		),
	)
	caption := convo.ProductCaption(product)

	if payload := p.media.Resolve(product.ImageRef); payload != nil {
		err := conn.SendChannelPhoto(ctx, channel, payload, caption, keyboard)
		if err == nil {
			p.count("ok")
			p.logger.Info("product broadcast", "product_id", product.ID, "channel", channel)
			return nil
		}
		p.logger.Warn("channel photo failed, falling back to text", "product_id", product.ID, "error", err)
	}

	if err := conn.SendChannelText(ctx, channel, caption, keyboard); err != nil {
		p.count("send_error")
		return fmt.Errorf("publish product %s: %w", product.ID, err)
	}
	p.count("ok")
	p.logger.Info("product broadcast", "product_id", product.ID, "channel", channel)
	return nil
}

func (p *Publisher) count(outcome string) {
	if p.metrics != nil {
		p.metrics.Broadcasts.WithLabelValues(outcome).Inc()
	}
}
