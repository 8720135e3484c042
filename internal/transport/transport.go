// Package transport yields Telegram updates either by long polling getUpdates
// or by receiving webhook pushes. Both variants share the Transport contract:
// OnStartup once, then FetchUpdates repeatedly from a single consumer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/jab/internal/telegram"
)

var (
	ErrNotStarted          = errors.New("transport: not started")
	ErrWebhookNotConfirmed = errors.New("transport: webhook registration not confirmed")
	// ErrListenerStopped is terminal: no further updates can arrive.
	ErrListenerStopped = errors.New("transport: listener stopped")
)

type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "polling", "poll", "pull":
		return ModePolling, nil
	case "webhook", "push":
		return ModeWebhook, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q (want polling|webhook)", s)
	}
}

type Transport interface {
	// Name labels logs and metrics.
	Name() string
	// OnStartup performs the upstream handshake. It is idempotent.
	OnStartup(ctx context.Context) error
	// FetchUpdates blocks until at least one update is available, the
	// upstream timeout elapses (empty batch), or ctx is done. Errors are
	// retried by the caller unless they wrap ErrListenerStopped.
	FetchUpdates(ctx context.Context) ([]telegram.Update, error)
	// Close releases listeners and connections.
	Close(ctx context.Context) error
}

// Resumer is implemented by transports that can skip updates the caller
// already acknowledged in a previous run.
type Resumer interface {
	Resume(mark int64)
}

// NormalizeAllowedUpdates lowercases, trims and dedupes update kinds and
// rejects kinds this client does not decode.
func NormalizeAllowedUpdates(kinds []string) ([]string, error) {
	known := make(map[string]bool, len(telegram.KnownKinds))
	for _, k := range telegram.KnownKinds {
		known[k] = true
	}
	seen := make(map[string]bool, len(kinds))
	out := make([]string, 0, len(kinds))
	for _, raw := range kinds {
		for _, k := range strings.Split(raw, ",") {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" || seen[k] {
				continue
			}
			if !known[k] {
				return nil, fmt.Errorf("unknown update kind %q", k)
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}
