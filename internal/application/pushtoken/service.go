package pushtoken

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/pkg/id"
	"github.com/go-notify-engine/internal/pkg/metrics"
	"github.com/go-notify-engine/internal/pkg/validate"
)

// Service manages the per-user set of push delivery endpoints.
type Service interface {
	Register(ctx context.Context, userID string, req domain.RegisterTokenRequest) (string, error)
	Deactivate(ctx context.Context, userID string, req domain.DeactivateTokenRequest) error
	List(ctx context.Context, userID string) ([]domain.PushToken, error)
}

// tokenStore implementations must apply Register as one conditional transaction:
// reactivate on (userID, token) match, otherwise rotate out the active token of the
// same (userID, deviceID, platform) slot and insert the candidate.
type tokenStore interface {
	Register(ctx context.Context, candidate *domain.PushToken) (string, domain.RegisterOutcome, error)
	Deactivate(ctx context.Context, userID, token string, at time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error)
}

type service struct {
	repo    tokenStore
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewService(repo tokenStore, m *metrics.Metrics, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, metrics: m, log: log, now: time.Now}
}

func (s *service) Register(ctx context.Context, userID string, req domain.RegisterTokenRequest) (string, error) {
	if userID == "" {
		return "", &domain.AuthError{Reason: "authentication required"}
	}
	req.Token = strings.TrimSpace(req.Token)
	if err := validate.Struct(req); err != nil {
		return "", err
	}
	if req.Platform == "" {
		req.Platform = domain.PlatformIOS
	}

	candidate := &domain.PushToken{
		TokenID:   id.Prefixed("ptk"),
		UserID:    userID,
		Token:     req.Token,
		DeviceID:  req.DeviceID,
		Platform:  req.Platform,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	tokenID, outcome, err := s.repo.Register(ctx, candidate)
	if err != nil {
		return "", domain.NewStorageError("register push token", err)
	}
	s.metrics.TokenRegistrations.WithLabelValues(string(outcome)).Inc()
	s.log.Info("push token registered", "user_id", userID, "token_id", tokenID, "platform", req.Platform, "outcome", outcome)
	return tokenID, nil
}

// Deactivate is a no-op when no active row matches.
func (s *service) Deactivate(ctx context.Context, userID string, req domain.DeactivateTokenRequest) error {
	if userID == "" {
		return &domain.AuthError{Reason: "authentication required"}
	}
	req.Token = strings.TrimSpace(req.Token)
	if err := validate.Struct(req); err != nil {
		return err
	}
	changed, err := s.repo.Deactivate(ctx, userID, req.Token, s.now().UTC())
	if err != nil {
		return domain.NewStorageError("deactivate push token", err)
	}
	if changed {
		s.log.Info("push token deactivated", "user_id", userID)
	}
	return nil
}

func (s *service) List(ctx context.Context, userID string) ([]domain.PushToken, error) {
	if userID == "" {
		return nil, &domain.AuthError{Reason: "authentication required"}
	}
	tokens, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, domain.NewStorageError("list push tokens", err)
	}
	return tokens, nil
}
