package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
)

func newSQLiteApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		AppEnv:                 "test",
		StoreBackend:           config.BackendSQL,
		SQLDriver:              "sqlite",
		SQLDSN:                 filepath.Join(t.TempDir(), "app.db"),
		DispatchConcurrency:    4,
		DispatchAttemptTimeout: time.Second,
		MembershipCacheTTL:     time.Minute,
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Stores.Bootstrap(context.Background()))
	return a
}

func TestEndToEnd_CreateDispatchInbox(t *testing.T) {
	a := newSQLiteApp(t)
	ctx := context.Background()

	_, err := a.PushTokens.Register(ctx, "u1", domain.RegisterTokenRequest{Token: "tok-u1"})
	require.NoError(t, err)
	ids, err := a.Notifications.Create(ctx, domain.CreateNotificationRequest{
		GroupKey: "invoice-42",
		Type:     domain.TypeBilling,
		Title:    "Invoice paid",
		Message:  "Thanks",
		UserIDs:  []string{"u1", "u2"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	before, err := a.Notifications.Inbox(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, before.Notifications)

	report, err := a.Dispatcher.ProcessPending(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, report.Attempts)

	again, err := a.Dispatcher.ProcessPending(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, again.Due)

	inbox, err := a.Notifications.Inbox(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, 2, inbox.Notifications[0].RecipientCount)
	assert.Equal(t, 1, inbox.UnreadCount)

	require.NoError(t, a.Notifications.Dismiss(ctx, "u1", inbox.Notifications[0].ID))
	after, err := a.Notifications.Inbox(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, after.Notifications)

	page, err := a.History.List(ctx, domain.Caller{UserID: "admin", Role: domain.RoleAdmin}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, domain.TargetUser, page.Notifications[0].Target)
	assert.False(t, page.HasMore)
}

func TestEndToEnd_TrialSchedulingIsIdempotent(t *testing.T) {
	a := newSQLiteApp(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := a.Trials.ScheduleTrialNotifications(ctx, "u1", now)
	require.NoError(t, err)
	second, err := a.Trials.ScheduleTrialNotifications(ctx, "u1", now)
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
	rows, err := a.Stores.Notifications.CountRows(ctx, domain.PageFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
}
