package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/pkg/id"
	"github.com/go-notify-engine/internal/pkg/metrics"
	"github.com/go-notify-engine/internal/pkg/validate"
)

// Service is the producer and recipient side of the engine: producers create notifications,
// recipients read their grouped inbox and record read/dismissal state.
type Service interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) ([]int64, error)
	Inbox(ctx context.Context, userID string, limit int) (*domain.Inbox, error)
	MarkRead(ctx context.Context, userID string, notificationID int64) error
	Dismiss(ctx context.Context, userID string, notificationID int64) error
}

type notificationStore interface {
	Insert(ctx context.Context, n *domain.Notification) (int64, error)
	Get(ctx context.Context, notificationID int64) (*domain.Notification, error)
	LatestDeliveredPerGroup(ctx context.Context, audience domain.Audience) ([]domain.Notification, error)
	GroupStats(ctx context.Context, groupKeys []string) (map[string]domain.GroupStats, error)
}

type receiptStore interface {
	Receipts(ctx context.Context, userID string, groupKeys []string) ([]domain.Receipt, error)
	MarkRead(ctx context.Context, groupKey, userID string, at time.Time) error
	Dismiss(ctx context.Context, groupKey, userID string, at time.Time) error
}

type membershipStore interface {
	OrganizationsOf(ctx context.Context, userID string) ([]string, error)
}

type ServiceDeps struct {
	Store    notificationStore
	Receipts receiptStore
	Members  membershipStore
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

type service struct {
	store    notificationStore
	receipts receiptStore
	members  membershipStore
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:    deps.Store,
		receipts: deps.Receipts,
		members:  deps.Members,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      deps.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

const (
	DefaultInboxLimit = 20
	MaxInboxLimit     = 100
)

// Create validates req and inserts one row per addressed user, or a single row for
// organization and system targets. All rows share one group key.
func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) ([]int64, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, domain.NewValidationError("type", "unknown notification type")
	}
	if len(req.UserIDs) > 0 && req.OrganizationID != nil {
		return nil, domain.NewValidationError("target", "userIds and organizationId are mutually exclusive")
	}

	groupKey := strings.TrimSpace(req.GroupKey)
	if groupKey == "" {
		groupKey = id.Prefixed("grp")
	}
	now := s.now().UTC()
	var scheduled *time.Time
	if req.ScheduledFor != nil {
		t := req.ScheduledFor.UTC()
		scheduled = &t
	}

	base := domain.Notification{
		GroupKey:            groupKey,
		Type:                req.Type,
		Title:               req.Title,
		Message:             req.Message,
		CreatedAt:           now,
		ScheduledFor:        scheduled,
		OrganizationID:      req.OrganizationID,
		SingleReadDismissal: req.SingleReadDismissal,
	}

	var rows []domain.Notification
	if len(req.UserIDs) == 0 {
		rows = append(rows, base)
	} else {
		seen := make(map[string]struct{}, len(req.UserIDs))
		for _, uid := range req.UserIDs {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			row := base
			row.UserID = &uid
			rows = append(rows, row)
		}
	}

	ids := make([]int64, 0, len(rows))
	for i := range rows {
		nid, err := s.store.Insert(ctx, &rows[i])
		if err != nil {
			return ids, domain.NewStorageError("insert notification", err)
		}
		ids = append(ids, nid)
		s.metrics.NotificationsCreated.WithLabelValues(string(rows[i].Type), string(rows[i].Target())).Inc()
	}
	s.log.Info("notifications created", "group_key", groupKey, "rows", len(ids))
	return ids, nil
}

// Inbox returns the most recent visible groups for userID and the number of unread groups.
// The unread count is taken over every visible group, not over the returned window.
func (s *service) Inbox(ctx context.Context, userID string, limit int) (*domain.Inbox, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}
	audience, err := s.audience(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestDeliveredPerGroup(ctx, audience)
	if err != nil {
		return nil, domain.NewStorageError("list inbox", err)
	}
	states, err := s.receiptStates(ctx, userID, GroupKeys(latest))
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Notification, 0, len(latest))
	unread := 0
	for _, n := range latest {
		st := states[n.GroupKey]
		if st.Dismissed {
			continue
		}
		if !st.Read {
			unread++
		}
		visible = append(visible, n)
	}
	if len(visible) > limit {
		visible = visible[:limit]
	}

	stats, err := s.store.GroupStats(ctx, GroupKeys(visible))
	if err != nil {
		return nil, domain.NewStorageError("group stats", err)
	}
	groups := GroupPage(visible, stats)
	for i := range groups {
		groups[i].Read = states[groups[i].GroupKey].Read
	}
	return &domain.Inbox{Notifications: groups, UnreadCount: unread}, nil
}

func (s *service) MarkRead(ctx context.Context, userID string, notificationID int64) error {
	n, err := s.visible(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if err := s.receipts.MarkRead(ctx, n.GroupKey, userID, s.now().UTC()); err != nil {
		return domain.NewStorageError("mark read", err)
	}
	return nil
}

// Dismiss hides the notification's group. With SingleReadDismissal the receipt is written
// group-wide, which hides the group for every recipient.
func (s *service) Dismiss(ctx context.Context, userID string, notificationID int64) error {
	n, err := s.visible(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	recipient := userID
	if n.SingleReadDismissal {
		recipient = domain.GroupWideRecipient
	}
	if err := s.receipts.Dismiss(ctx, n.GroupKey, recipient, s.now().UTC()); err != nil {
		return domain.NewStorageError("dismiss", err)
	}
	s.log.Info("notification dismissed", "notification_id", n.ID, "group_key", n.GroupKey, "group_wide", n.SingleReadDismissal)
	return nil
}

// visible loads a delivered notification addressed to userID. Anything else is reported
// as not found so callers cannot probe other recipients' notifications.
func (s *service) visible(ctx context.Context, userID string, notificationID int64) (*domain.Notification, error) {
	n, err := s.store.Get(ctx, notificationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, domain.NewStorageError("get notification", err)
	}
	audience, err := s.audience(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !n.Delivered() || !audience.Matches(n) {
		return nil, fmt.Errorf("notification %d: %w", notificationID, domain.ErrNotFound)
	}
	return n, nil
}

func (s *service) audience(ctx context.Context, userID string) (domain.Audience, error) {
	if userID == "" {
		return domain.Audience{}, &domain.AuthError{Reason: "authentication required"}
	}
	orgs, err := s.members.OrganizationsOf(ctx, userID)
	if err != nil {
		return domain.Audience{}, domain.NewStorageError("resolve organizations", err)
	}
	return domain.Audience{UserID: userID, OrganizationIDs: orgs}, nil
}

func (s *service) receiptStates(ctx context.Context, userID string, keys []string) (map[string]domain.ReceiptState, error) {
	states := make(map[string]domain.ReceiptState, len(keys))
	if len(keys) == 0 {
		return states, nil
	}
	receipts, err := s.receipts.Receipts(ctx, userID, keys)
	if err != nil {
		return nil, domain.NewStorageError("load receipts", err)
	}
	for _, r := range receipts {
		states[r.GroupKey] = states[r.GroupKey].Merge(r)
	}
	return states, nil
}
