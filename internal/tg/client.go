// Package tg wraps the Telegram Bot API client: one long-poll receive loop
// per connected client, plus the outbound send operations the conversation
// engine and broadcast publisher need.
package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"shop-bot/internal/media"
	"shop-bot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	// ErrAuthRejected indicates Telegram rejected the bot token.
	ErrAuthRejected = errors.New("telegram: credential rejected")
	// ErrConflict indicates another long-poll holds the same credential.
	ErrConflict = errors.New("telegram: long-poll conflict")
)

const (
	initialBackoff = time.Second
	maxBackoff     = 5 * time.Second
)

// UpdateHandler handles inbound Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, sender *Client, update tgbotapi.Update)
}

// Config holds configuration to connect a Telegram client.
type Config struct {
	Token       string
	APIEndpoint string
	PollTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Client wraps a connected tgbotapi.BotAPI together with its receive loop.
type Client struct {
	api         *tgbotapi.BotAPI
	httpClient  *loopHTTPClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	pollTimeout time.Duration

	doneOnce sync.Once
	done     chan struct{}
}

// Connect authenticates the token against the platform (getMe) and returns
// a client ready to Run. An invalid token surfaces as ErrAuthRejected.
func Connect(cfg Config, logger *slog.Logger) (*Client, error) {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	// The HTTP client carries the receive loop's context so that stopping
	// the loop aborts an in-flight long poll instead of waiting it out.
	hc := &loopHTTPClient{
		base: &http.Client{Timeout: pollTimeout + 15*time.Second},
		ctx:  context.Background(),
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, hc)
	if err != nil {
		if classifyError(err) == errClassAuth {
			return nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
		return nil, fmt.Errorf("connect telegram client: %w", err)
	}

	return &Client{
		api:         api,
		httpClient:  hc,
		logger:      logger.With("component", "tg"),
		metrics:     cfg.Metrics,
		pollTimeout: pollTimeout,
		done:        make(chan struct{}),
	}, nil
}

// Self returns the bot's own username, resolved during Connect.
func (c *Client) Self() string {
	return c.api.Self.UserName
}

// Done is closed once the receive loop has fully exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SetDescription applies the bot-facing description shown on empty chats.
func (c *Client) SetDescription(description string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("description", description)
	if _, err := c.api.MakeRequest("setMyDescription", params); err != nil {
		return fmt.Errorf("set description: %w", err)
	}
	return nil
}

// Run drives the long-poll receive loop until ctx is cancelled or the
// platform rejects the credential. Each update is dispatched to the handler
// in its own goroutine so one slow chat does not block another.
//
// Conflict and transient network errors are retried indefinitely with
// exponential backoff; only auth rejection ends the loop with an error.
func (c *Client) Run(ctx context.Context, handler UpdateHandler) error {
	defer c.doneOnce.Do(func() { close(c.done) })

	c.httpClient.setContext(ctx)

	offset := 0
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = int(c.pollTimeout.Seconds())

		updates, err := c.api.GetUpdates(cfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch classifyError(err) {
			case errClassAuth:
				c.logger.Error("credential rejected during polling", "error", err)
				return fmt.Errorf("%w: %v", ErrAuthRejected, err)
			case errClassConflict:
				c.countPollError("conflict")
				c.logger.Warn("long-poll conflict, backing off", "backoff", backoff, "error", err)
			default:
				c.countPollError("transient")
				c.logger.Warn("long-poll failed, backing off", "backoff", backoff, "error", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if c.metrics != nil {
				c.metrics.TGIncomingUpdates.WithLabelValues(updateKind(update)).Inc()
			}
			go handler.HandleUpdate(ctx, c, update)
		}
	}
}

// SendText sends a text message with an optional reply markup
// (inline keyboard, reply keyboard or force-reply).
func (c *Client) SendText(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = replyMarkup
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	c.countOutgoing("text")
	return nil
}

// SendPhoto sends an image with a caption. URL payloads are fetched by the
// platform; byte payloads are uploaded directly.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, payload *media.Payload, caption string, replyMarkup interface{}) error {
	if payload == nil {
		return errors.New("send photo: nil payload")
	}

	var file tgbotapi.RequestFileData
	if payload.URL != "" {
		file = tgbotapi.FileURL(payload.URL)
	} else {
		file = tgbotapi.FileBytes{Name: "photo", Bytes: payload.Data}
	}

	msg := tgbotapi.NewPhoto(chatID, file)
	msg.Caption = caption
	msg.ReplyMarkup = replyMarkup
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	c.countOutgoing("photo")
	return nil
}

// SendChannelText sends a text message to a channel destination, given as
// either "@username" or a numeric chat id.
func (c *Client) SendChannelText(ctx context.Context, channel, text string, replyMarkup interface{}) error {
	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(channel, "@") {
		msg = tgbotapi.NewMessageToChannel(channel, text)
	} else {
		chatID, err := parseChannelID(channel)
		if err != nil {
			return err
		}
		msg = tgbotapi.NewMessage(chatID, text)
	}
	msg.ReplyMarkup = replyMarkup
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send channel text: %w", err)
	}
	c.countOutgoing("channel_text")
	return nil
}

// SendChannelPhoto sends an image with caption to a channel destination.
func (c *Client) SendChannelPhoto(ctx context.Context, channel string, payload *media.Payload, caption string, replyMarkup interface{}) error {
	if payload == nil {
		return errors.New("send channel photo: nil payload")
	}

	var file tgbotapi.RequestFileData
	if payload.URL != "" {
		file = tgbotapi.FileURL(payload.URL)
	} else {
		file = tgbotapi.FileBytes{Name: "photo", Bytes: payload.Data}
	}

	var msg tgbotapi.PhotoConfig
	if strings.HasPrefix(channel, "@") {
		msg = tgbotapi.NewPhotoToChannel(channel, file)
	} else {
		chatID, err := parseChannelID(channel)
		if err != nil {
			return err
		}
		msg = tgbotapi.NewPhoto(chatID, file)
	}
	msg.Caption = caption
	msg.ReplyMarkup = replyMarkup
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send channel photo: %w", err)
	}
	c.countOutgoing("channel_photo")
	return nil
}

func parseChannelID(channel string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(channel), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel identifier %q", channel)
	}
	return id, nil
}

// AnswerCallback acknowledges a button press so the client clears its
// loading spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	callback := tgbotapi.NewCallback(callbackID, "")
	if _, err := c.api.Request(callback); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (c *Client) countOutgoing(kind string) {
	if c.metrics != nil {
		c.metrics.TGOutgoingMessages.WithLabelValues(kind).Inc()
	}
}

func (c *Client) countPollError(class string) {
	if c.metrics != nil {
		c.metrics.TGPollErrors.WithLabelValues(class).Inc()
	}
}

type errClass int

const (
	errClassTransient errClass = iota
	errClassAuth
	errClassConflict
)

func classifyError(err error) errClass {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusNotFound:
			return errClassAuth
		case http.StatusConflict:
			return errClassConflict
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Unauthorized"):
		return errClassAuth
	case strings.Contains(msg, "Conflict"):
		return errClassConflict
	}
	return errClassTransient
}

func updateKind(update tgbotapi.Update) string {
	switch {
	case update.CallbackQuery != nil:
		return "callback"
	case update.Message != nil && update.Message.Contact != nil:
		return "contact"
	case update.Message != nil && update.Message.IsCommand():
		return "command"
	case update.Message != nil:
		return "message"
	default:
		return "other"
	}
}

// loopHTTPClient injects the receive loop's context into outgoing requests
// so cancelling the loop aborts an in-flight long poll.
type loopHTTPClient struct {
	base *http.Client

	mu  sync.RWMutex
	ctx context.Context
}

func (l *loopHTTPClient) setContext(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
}

// Do implements tgbotapi.HTTPClient.
func (l *loopHTTPClient) Do(req *http.Request) (*http.Response, error) {
	l.mu.RLock()
	ctx := l.ctx
	l.mu.RUnlock()
	return l.base.Do(req.WithContext(ctx))
}
