package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/pkg/metrics"
)

// TrialCampaign names the onboarding sequence scheduled for a new trial.
const TrialCampaign = "trial-onboarding"

type trialStep struct {
	offset  time.Duration
	title   string
	message string
}

var trialSteps = []trialStep{
	{24 * time.Hour, "Welcome to your trial", "Here is how to get the most out of your first days."},
	{72 * time.Hour, "Your trial is well underway", "Invite your team and connect your first integration."},
	{7 * 24 * time.Hour, "One week in", "Review your usage and choose a plan before the trial ends."},
}

type trialStore interface {
	Insert(ctx context.Context, n *domain.Notification) (int64, error)
	// PendingInGroup returns the undelivered rows of groupKey addressed to userID.
	PendingInGroup(ctx context.Context, groupKey, userID string) ([]domain.Notification, error)
}

// TrialScheduler is the trial-onboarding producer.
type TrialScheduler struct {
	store   trialStore
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewTrialScheduler(store trialStore, m *metrics.Metrics, log *slog.Logger) *TrialScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &TrialScheduler{store: store, metrics: m, log: log}
}

// TrialGroupKey is deterministic per user so repeated scheduling can be detected.
func TrialGroupKey(userID string) string {
	return TrialCampaign + ":" + userID
}

// ScheduleTrialNotifications inserts the onboarding sequence for userID with scheduledFor
// offsets relative to now. When rows of the sequence are still pending, the sequence is
// anchored at their createdAt and only the steps that are neither pending nor already due
// are inserted, so a retry after a partial failure completes the sequence without
// duplicating steps. Ids are returned in step order.
func (s *TrialScheduler) ScheduleTrialNotifications(ctx context.Context, userID string, now time.Time) ([]int64, error) {
	if userID == "" {
		return nil, &domain.AuthError{Reason: "authentication required"}
	}
	groupKey := TrialGroupKey(userID)
	now = now.UTC()

	pending, err := s.store.PendingInGroup(ctx, groupKey, userID)
	if err != nil {
		return nil, domain.NewStorageError("find pending trial notifications", err)
	}
	byTitle := make(map[string]int64, len(pending))
	anchor := now
	for i, n := range pending {
		byTitle[n.Title] = n.ID
		if i == 0 || n.CreatedAt.Before(anchor) {
			anchor = n.CreatedAt.UTC()
		}
	}

	ids := make([]int64, 0, len(trialSteps))
	inserted := 0
	for _, step := range trialSteps {
		if nid, ok := byTitle[step.title]; ok {
			ids = append(ids, nid)
			continue
		}
		at := anchor.Add(step.offset)
		// A missing step whose time has passed was already delivered.
		if len(pending) > 0 && !at.After(now) {
			continue
		}
		uid := userID
		n := &domain.Notification{
			GroupKey:     groupKey,
			Type:         domain.TypeTrial,
			Title:        step.title,
			Message:      step.message,
			CreatedAt:    anchor,
			ScheduledFor: &at,
			UserID:       &uid,
		}
		nid, err := s.store.Insert(ctx, n)
		if err != nil {
			return ids, domain.NewStorageError("insert trial notification", err)
		}
		ids = append(ids, nid)
		inserted++
		s.metrics.NotificationsCreated.WithLabelValues(string(domain.TypeTrial), string(domain.TargetUser)).Inc()
	}
	if inserted == 0 {
		s.log.Info("trial notifications already scheduled", "user_id", userID, "pending", len(ids))
		return ids, nil
	}
	s.log.Info("trial notifications scheduled", "user_id", userID, "group_key", groupKey,
		"inserted", inserted, "count", len(ids))
	return ids, nil
}
