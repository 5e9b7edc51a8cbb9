package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-notify-engine/internal/transport/http/middleware"
)

type trialScheduler interface {
	ScheduleTrialNotifications(ctx context.Context, userID string, now time.Time) ([]int64, error)
}

// TrialHandler schedules the trial onboarding sequence for the calling user.
type TrialHandler struct {
	scheduler trialScheduler
	now       func() time.Time
	debug     bool
}

func NewTrialHandler(s trialScheduler, debug bool) *TrialHandler {
	return &TrialHandler{scheduler: s, now: time.Now, debug: debug}
}

func (h *TrialHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ids, err := h.scheduler.ScheduleTrialNotifications(r.Context(), claims.UserID, h.now().UTC())
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, NotificationIDsEnvelope{Success: true, NotificationIDs: ids})
}
