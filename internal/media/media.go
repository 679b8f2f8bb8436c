// Package media converts stored image references into transport-ready
// photo payloads. A reference is either a remote URL, which the platform
// fetches itself, or an inline data URI whose base64 body is decoded for
// direct upload.
package media

import (
	"encoding/base64"
	"log/slog"
	"strings"
)

// MaxInlineBytes caps the decoded size of an inline image. Telegram rejects
// photo uploads above 10 MB, so larger payloads degrade to text-only
// instead of failing the whole reply at send time.
const MaxInlineBytes = 10 << 20

// Payload is a transport-ready image. Exactly one of URL or Data is set.
type Payload struct {
	URL  string
	Data []byte
	Mime string
}

// Resolver turns image references into payloads.
type Resolver struct {
	logger   *slog.Logger
	maxBytes int
}

// NewResolver creates a media resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger:   logger.With("component", "media"),
		maxBytes: MaxInlineBytes,
	}
}

// Resolve maps an image reference to a payload, or nil when the reference
// is empty, malformed, oversized, or uses an unrecognised scheme. It never
// fails: callers treat nil as "render text-only".
func (r *Resolver) Resolve(ref string) *Payload {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return &Payload{URL: ref}
	case strings.HasPrefix(ref, "data:"):
		return r.resolveInline(ref)
	default:
		r.logger.Debug("unrecognised image reference scheme", "ref_prefix", prefix(ref, 16))
		return nil
	}
}

func (r *Resolver) resolveInline(ref string) *Payload {
	// data:<mime>;base64,<body>
	rest := strings.TrimPrefix(ref, "data:")
	meta, body, ok := strings.Cut(rest, ",")
	if !ok {
		r.logger.Debug("inline image missing body separator")
		return nil
	}

	mime, encoding, _ := strings.Cut(meta, ";")
	if !strings.EqualFold(strings.TrimSpace(encoding), "base64") {
		r.logger.Debug("inline image not base64 encoded", "encoding", encoding)
		return nil
	}
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(strings.ToLower(mime), "image/") {
		r.logger.Debug("inline reference is not an image", "mime", mime)
		return nil
	}

	if base64.StdEncoding.DecodedLen(len(body)) > r.maxBytes {
		r.logger.Debug("inline image exceeds size cap", "encoded_len", len(body))
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		r.logger.Debug("inline image decode failed", "error", err)
		return nil
	}
	if len(data) == 0 || len(data) > r.maxBytes {
		return nil
	}
	return &Payload{Data: data, Mime: mime}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
