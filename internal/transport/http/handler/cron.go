package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-notify-engine/internal/domain"
)

type dispatchRunner interface {
	ProcessPending(ctx context.Context, now time.Time) (*domain.DispatchReport, error)
}

// CronHandler is the external trigger for a dispatch pass. The shared secret is checked
// by middleware.CronSecret before this handler runs.
type CronHandler struct {
	dispatcher  dispatchRunner
	passTimeout time.Duration
	now         func() time.Time
	debug       bool
}

// NewCronHandler builds the trigger. A zero passTimeout leaves the pass unbounded.
func NewCronHandler(d dispatchRunner, passTimeout time.Duration, debug bool) *CronHandler {
	return &CronHandler{dispatcher: d, passTimeout: passTimeout, now: time.Now, debug: debug}
}

// Run executes one pass. The pass does not inherit the request's cancellation: rows already
// marked delivered must still be pushed when the caller disconnects or times out.
func (h *CronHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if h.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.passTimeout)
		defer cancel()
	}
	now := h.now().UTC()
	report, err := h.dispatcher.ProcessPending(ctx, now)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, CronEnvelope{
		Success:   true,
		Message:   fmt.Sprintf("processed %d due notifications, delivered %d", report.Due, report.Delivered),
		Timestamp: now,
		Report:    report,
	})
}
