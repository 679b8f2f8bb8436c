package cache

import (
	"context"
	"log/slog"
	"time"
)

const settingsKey = "shopbot:settings"

// SettingsReader is the slice of the repository the settings cache needs.
type SettingsReader interface {
	GetSettings(ctx context.Context) (map[string]string, error)
}

// SettingsSource reads the settings bundle through Redis with a short TTL.
// A Redis outage degrades silently to direct database reads.
type SettingsSource struct {
	reader SettingsReader
	redis  *Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewSettingsSource builds a read-through settings cache.
func NewSettingsSource(reader SettingsReader, redis *Redis, ttl time.Duration, logger *slog.Logger) *SettingsSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettingsSource{
		reader: reader,
		redis:  redis,
		ttl:    ttl,
		logger: logger.With("component", "settings_cache"),
	}
}

// Get returns the current settings map.
func (s *SettingsSource) Get(ctx context.Context) (map[string]string, error) {
	var cached map[string]string
	ok, err := s.redis.GetJSON(ctx, settingsKey, &cached)
	if err != nil {
		s.logger.Warn("settings cache read failed", "error", err)
	} else if ok {
		return cached, nil
	}

	settings, err := s.reader.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.redis.SetJSON(ctx, settingsKey, settings, s.ttl); err != nil {
		s.logger.Warn("settings cache write failed", "error", err)
	}
	return settings, nil
}

// Invalidate drops the cached bundle after an admin save.
func (s *SettingsSource) Invalidate(ctx context.Context) {
	if err := s.redis.Delete(ctx, settingsKey); err != nil {
		s.logger.Warn("settings cache invalidate failed", "error", err)
	}
}
