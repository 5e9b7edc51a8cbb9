package notification

import (
	"context"

	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/pkg/metrics"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// HistoryService is the read-only administrative view over the notification store.
type HistoryService interface {
	List(ctx context.Context, caller domain.Caller, page, pageSize int) (*domain.HistoryPage, error)
}

type historyStore interface {
	Page(ctx context.Context, filter domain.PageFilter, offset, limit int) ([]domain.Notification, error)
	GroupStats(ctx context.Context, groupKeys []string) (map[string]domain.GroupStats, error)
	CountGroups(ctx context.Context) (int64, error)
}

type historyService struct {
	store   historyStore
	metrics *metrics.Metrics
}

func NewHistoryService(store historyStore, m *metrics.Metrics) HistoryService {
	return &historyService{store: store, metrics: m}
}

// List returns one page of grouped history. The page window is drawn from raw rows,
// recipient counts from whole-group aggregates and hasMore from the distinct group count;
// the three are separate store queries.
func (s *historyService) List(ctx context.Context, caller domain.Caller, page, pageSize int) (*domain.HistoryPage, error) {
	if caller.UserID == "" {
		return nil, &domain.AuthError{Reason: "authentication required"}
	}
	if !caller.IsAdmin() {
		return nil, &domain.AuthError{Reason: "administrator privilege required", Forbidden: true}
	}
	if page < 1 {
		return nil, domain.NewValidationError("page", "must be at least 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, domain.NewValidationError("pageSize", "must be between 1 and 100")
	}
	s.metrics.HistoryQueries.Inc()

	rows, err := s.store.Page(ctx, domain.PageFilter{}, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, domain.NewStorageError("page notifications", err)
	}
	stats, err := s.store.GroupStats(ctx, GroupKeys(rows))
	if err != nil {
		return nil, domain.NewStorageError("group stats", err)
	}
	total, err := s.store.CountGroups(ctx)
	if err != nil {
		return nil, domain.NewStorageError("count groups", err)
	}
	return &domain.HistoryPage{
		Notifications: GroupPage(rows, stats),
		HasMore:       HasMore(total, page, pageSize),
	}, nil
}
