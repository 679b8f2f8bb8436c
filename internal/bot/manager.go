// Package bot owns the process's single live Telegram connection. The
// manager tears the connection down and rebuilds it whenever the admin
// surface saves new settings, enforcing that the old receive loop has fully
// exited before a replacement starts: the platform rejects two concurrent
// long polls on the same credential.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"shop-bot/internal/convo"
	"shop-bot/internal/metrics"
	"shop-bot/internal/repo"
	"shop-bot/internal/tg"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrInvalidCredential indicates the configured bot token is missing or
// structurally invalid; no connection attempt is made.
var ErrInvalidCredential = errors.New("bot: missing or malformed credential")

// State describes the manager's connection state.
type State string

const (
	StateOffline  State = "offline"
	StateStarting State = "starting"
	StateOnline   State = "online"
	StateError    State = "error"
)

// Status is a point-in-time snapshot for the admin surface.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Bot tokens look like "<numeric id>:<secret>"; the secret is at least 30
// characters of the Telegram alphabet. Anything else is rejected locally
// without touching the network.
var tokenPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]{30,}$`)

// SettingsSource provides the current settings bundle.
type SettingsSource interface {
	Get(ctx context.Context) (map[string]string, error)
}

// conn is one live connection. *liveConn implements it over tg.Client;
// lifecycle tests substitute a fake.
type conn interface {
	Run(ctx context.Context) error
	SetDescription(description string) error
	Client() *tg.Client
}

type connectFunc func(token string) (conn, error)

// Config holds manager tunables.
type Config struct {
	APIEndpoint string
	PollTimeout time.Duration
}

// Manager serializes reconfiguration of the live connection.
type Manager struct {
	settings SettingsSource
	handler  tg.UpdateHandler
	logger   *slog.Logger
	metrics  *metrics.Metrics
	connect  connectFunc

	mu      sync.Mutex
	state   State
	reason  string
	current conn
	cancel  context.CancelFunc
	runDone chan struct{}
}

// New creates a manager that dials real Telegram connections.
func New(settings SettingsSource, handler tg.UpdateHandler, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg Config) *Manager {
	m := &Manager{
		settings: settings,
		handler:  handler,
		logger:   logger.With("component", "bot"),
		metrics:  metricRegistry,
		state:    StateOffline,
	}
	m.connect = func(token string) (conn, error) {
		client, err := tg.Connect(tg.Config{
			Token:       token,
			APIEndpoint: cfg.APIEndpoint,
			PollTimeout: cfg.PollTimeout,
			Metrics:     metricRegistry,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &liveConn{client: client, handler: handler}, nil
	}
	return m
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, Reason: m.reason}
}

// Connection returns the live client when the manager is online.
func (m *Manager) Connection() (*tg.Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOnline || m.current == nil {
		return nil, false
	}
	return m.current.Client(), true
}

// Reconfigure stops any running connection, waits for its receive loop to
// exit, and starts a new one from the current settings. Safe to call
// concurrently; calls are serialized.
func (m *Manager) Reconfigure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	settings, err := m.settings.Get(ctx)
	if err != nil {
		m.setStateLocked(StateError, "settings unavailable")
		m.countReconfigure("settings_error")
		return fmt.Errorf("read settings: %w", err)
	}

	token := strings.TrimSpace(settings[repo.KeyBotToken])
	if token == "" || !tokenPattern.MatchString(token) {
		m.setStateLocked(StateOffline, "")
		m.countReconfigure("invalid_credential")
		return ErrInvalidCredential
	}

	m.setStateLocked(StateStarting, "")

	cn, err := m.connect(token)
	if err != nil {
		if errors.Is(err, tg.ErrAuthRejected) {
			m.setStateLocked(StateError, "auth_rejected")
			m.countReconfigure("auth_rejected")
			return err
		}
		m.setStateLocked(StateError, "connect_failed")
		m.countReconfigure("connect_failed")
		return fmt.Errorf("connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		err := cn.Run(runCtx)
		close(done)
		if err != nil {
			m.noteRunExit(done, err)
		}
	}()

	m.current = cn
	m.cancel = cancel
	m.runDone = done
	m.setStateLocked(StateOnline, "")
	m.countReconfigure("ok")

	// Applying the bot-facing description is best effort.
	if description := strings.TrimSpace(settings[repo.KeyBotDescription]); description != "" {
		if err := cn.SetDescription(description); err != nil {
			m.logger.Warn("set bot description failed", "error", err)
		}
	}

	m.logger.Info("connection reconfigured")
	return nil
}

// Shutdown stops the live connection and waits for its loop to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.setStateLocked(StateOffline, "")
}

// stopLocked tears down the current connection, blocking until its receive
// loop has fully exited. Called with m.mu held.
func (m *Manager) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.runDone
	m.cancel = nil
	m.runDone = nil
	m.current = nil
	m.logger.Info("connection stopped")
}

// noteRunExit records a receive loop that ended on its own, unless the
// connection was already replaced by a newer one.
func (m *Manager) noteRunExit(done chan struct{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runDone != done {
		return
	}
	m.cancel = nil
	m.runDone = nil
	m.current = nil
	if errors.Is(err, tg.ErrAuthRejected) {
		m.setStateLocked(StateError, "auth_rejected")
	} else {
		m.setStateLocked(StateError, "connection_lost")
	}
	m.logger.Error("receive loop exited", "error", err)
}

func (m *Manager) setStateLocked(state State, reason string) {
	m.state = state
	m.reason = reason
}

func (m *Manager) countReconfigure(outcome string) {
	if m.metrics != nil {
		m.metrics.Reconfigures.WithLabelValues(outcome).Inc()
	}
}

// liveConn adapts tg.Client to the conn interface.
type liveConn struct {
	client  *tg.Client
	handler tg.UpdateHandler
}

func (l *liveConn) Run(ctx context.Context) error {
	return l.client.Run(ctx, l.handler)
}

func (l *liveConn) SetDescription(description string) error {
	return l.client.SetDescription(description)
}

func (l *liveConn) Client() *tg.Client { return l.client }

// Router is the conversation engine's handler shape.
type Router interface {
	HandleUpdate(ctx context.Context, sender convo.Sender, update tgbotapi.Update)
}

// RouterHandler bridges the conversation engine to the transport handler,
// passing the live connection in as the engine's sender.
type RouterHandler struct {
	Router Router
}

// HandleUpdate implements tg.UpdateHandler.
func (r RouterHandler) HandleUpdate(ctx context.Context, sender *tg.Client, update tgbotapi.Update) {
	r.Router.HandleUpdate(ctx, sender, update)
}
