package dispatch

import (
	"context"
	"log/slog"

	"github.com/go-notify-engine/internal/domain"
)

// Transport hands one message to one push endpoint. Implementations should honor ctx;
// the dispatcher abandons an attempt once its deadline passes regardless.
// An endpoint the provider no longer accepts is reported as domain.ErrTokenUnregistered.
type Transport interface {
	Send(ctx context.Context, token domain.PushToken, msg domain.PushMessage) error
}

// LogTransport only logs. It is used when no push platform is configured.
type LogTransport struct {
	Log *slog.Logger
}

func (t LogTransport) Send(ctx context.Context, token domain.PushToken, msg domain.PushMessage) error {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "push delivery (log transport)",
		"notification_id", msg.NotificationID,
		"token_id", token.TokenID,
		"platform", token.Platform,
		"title", msg.Title,
	)
	return nil
}
