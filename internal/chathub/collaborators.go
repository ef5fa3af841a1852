package chathub

import (
	"context"
	"log/slog"
	"time"

	"pairchat/backend/internal/metrics"
)

// MediaForwarder relays media sent in rooms to an external moderation
// channel. Calls are best-effort.
type MediaForwarder interface {
	ForwardMedia(ctx context.Context, kind, payload, fingerprint string) error
}

// bestEffort runs fn in its own goroutine with a bounded timeout. Failures
// are logged and counted, never returned.
func bestEffort(log *slog.Logger, timeout time.Duration, collaborator string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			metrics.CollaboratorFailures.WithLabelValues(collaborator).Inc()
			log.Warn("collaborator call failed", "collaborator", collaborator, "err", err)
		}
	}()
}
