package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-engine/internal/domain"
)

type fakeDispatcher struct {
	gotNow time.Time
	report *domain.DispatchReport
	err    error
}

func (f *fakeDispatcher) ProcessPending(_ context.Context, now time.Time) (*domain.DispatchReport, error) {
	f.gotNow = now
	return f.report, f.err
}

var cronNow = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

func TestCron_Success(t *testing.T) {
	d := &fakeDispatcher{report: &domain.DispatchReport{RunID: "r1", Due: 3, Delivered: 2, Skipped: 1}}
	h := NewCronHandler(d, 0, false)
	h.now = func() time.Time { return cronNow }

	rr := httptest.NewRecorder()
	h.Run(rr, httptest.NewRequest(http.MethodPost, "/v1/cron/notifications", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, cronNow, d.gotNow)
	var resp CronEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, cronNow, resp.Timestamp)
	assert.Equal(t, 2, resp.Report.Delivered)
	assert.Contains(t, resp.Message, "delivered 2")
}

func TestCron_StoreFailure(t *testing.T) {
	d := &fakeDispatcher{err: domain.NewStorageError("find due", assert.AnError)}
	h := NewCronHandler(d, 0, false)

	rr := httptest.NewRecorder()
	h.Run(rr, httptest.NewRequest(http.MethodGet, "/v1/cron/notifications", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp ErrorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, "storage unavailable, retry later", resp.Details)
}

func TestCron_DebugExposesDetail(t *testing.T) {
	d := &fakeDispatcher{err: domain.NewStorageError("find due", assert.AnError)}
	h := NewCronHandler(d, 0, true)

	rr := httptest.NewRecorder()
	h.Run(rr, httptest.NewRequest(http.MethodGet, "/v1/cron/notifications", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "find due")
}

// blockingDispatcher holds the pass open until released and records the context state then.
type blockingDispatcher struct {
	started     chan struct{}
	release     chan struct{}
	ctxErr      error
	hasDeadline bool
}

func (b *blockingDispatcher) ProcessPending(ctx context.Context, _ time.Time) (*domain.DispatchReport, error) {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	_, b.hasDeadline = ctx.Deadline()
	return &domain.DispatchReport{RunID: "r1", Due: 1, Delivered: 1}, nil
}

func TestCron_PassSurvivesCallerCancellation(t *testing.T) {
	d := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	h := NewCronHandler(d, time.Minute, false)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/v1/cron/notifications", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.Run(rr, req)
		close(done)
	}()

	<-d.started
	cancel()
	close(d.release)
	<-done

	assert.NoError(t, d.ctxErr)
	assert.True(t, d.hasDeadline)
	assert.Equal(t, http.StatusOK, rr.Code)
}
