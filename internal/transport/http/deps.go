package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-notify-engine/internal/application/notification"
	"github.com/go-notify-engine/internal/application/pushtoken"
	"github.com/go-notify-engine/internal/domain"
	jwtinfra "github.com/go-notify-engine/internal/infrastructure/jwt"
)

// Dispatcher is the minimal interface the router requires from the scheduler/dispatcher.
type Dispatcher interface {
	ProcessPending(ctx context.Context, now time.Time) (*domain.DispatchReport, error)
}

// TrialScheduler is the minimal interface the router requires from trial scheduling.
type TrialScheduler interface {
	ScheduleTrialNotifications(ctx context.Context, userID string, now time.Time) ([]int64, error)
}

// Deps holds the application services the router exposes.
type Deps struct {
	Notifications notification.Service
	History       notification.HistoryService
	PushTokens    pushtoken.Service
	Dispatcher    Dispatcher
	Trials        TrialScheduler
	JWTProvider   *jwtinfra.Provider
	// Metrics serves /metrics when set.
	Metrics http.Handler
}
