// Package dispatch promotes due notifications to delivered and fans them out to push endpoints.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/pkg/id"
	"github.com/go-notify-engine/internal/pkg/metrics"
)

const (
	DefaultConcurrency    = 8
	DefaultAttemptTimeout = 10 * time.Second
)

type notificationStore interface {
	FindDue(ctx context.Context, now time.Time) ([]domain.Notification, error)
	// MarkDelivered sets deliveredAt only if it is still null and reports whether this call won.
	MarkDelivered(ctx context.Context, notificationID int64, at time.Time) (bool, error)
}

type tokenStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error)
	ListActive(ctx context.Context) ([]domain.PushToken, error)
	Deactivate(ctx context.Context, userID, token string, at time.Time) (bool, error)
}

type memberResolver interface {
	MemberIDs(ctx context.Context, organizationID string) ([]string, error)
}

type reportArchive interface {
	Archive(ctx context.Context, report *domain.DispatchReport) error
}

// Deps wires a Dispatcher. Archive is optional; zero Concurrency and AttemptTimeout take defaults.
type Deps struct {
	Store          notificationStore
	Tokens         tokenStore
	Members        memberResolver
	Transport      Transport
	Archive        reportArchive
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Concurrency    int
	AttemptTimeout time.Duration
}

// Dispatcher runs processPending passes. It holds no locks: overlapping passes are
// serialized only by the store's conditional MarkDelivered.
type Dispatcher struct {
	store          notificationStore
	tokens         tokenStore
	members        memberResolver
	transport      Transport
	archive        reportArchive
	metrics        *metrics.Metrics
	log            *slog.Logger
	concurrency    int
	attemptTimeout time.Duration
}

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		store:          deps.Store,
		tokens:         deps.Tokens,
		members:        deps.Members,
		transport:      deps.Transport,
		archive:        deps.Archive,
		metrics:        deps.Metrics,
		log:            deps.Logger,
		concurrency:    deps.Concurrency,
		attemptTimeout: deps.AttemptTimeout,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.transport == nil {
		d.transport = LogTransport{Log: d.log}
	}
	if d.concurrency <= 0 {
		d.concurrency = DefaultConcurrency
	}
	if d.attemptTimeout <= 0 {
		d.attemptTimeout = DefaultAttemptTimeout
	}
	return d
}

// ProcessPending delivers every record due at now.
//
// Each record's audience is resolved first; a record that cannot be resolved stays due for
// the next pass. The record is then marked delivered, and only the winner of that conditional
// update sends. Sends run on a bounded pool with a per-attempt timeout, and their failures
// are logged per token without affecting the pass result. Only store failures abort the pass.
func (d *Dispatcher) ProcessPending(ctx context.Context, now time.Time) (*domain.DispatchReport, error) {
	start := time.Now()
	now = now.UTC()
	report := &domain.DispatchReport{RunID: id.New(), Now: now}

	due, err := d.store.FindDue(ctx, now)
	if err != nil {
		d.metrics.DispatchRuns.WithLabelValues("error").Inc()
		return nil, domain.NewStorageError("find due", err)
	}
	report.Due = len(due)

	var (
		g        errgroup.Group
		attempts atomic.Int64
		failures atomic.Int64
	)
	g.SetLimit(d.concurrency)

	for i := range due {
		n := due[i]
		tokens, err := d.resolve(ctx, &n)
		if err != nil {
			report.Unresolved++
			d.metrics.DispatchTransitions.WithLabelValues("unresolved").Inc()
			d.log.Warn("audience resolution failed, notification stays due",
				"notification_id", n.ID, "target", n.Target(), "err", err)
			continue
		}

		won, err := d.store.MarkDelivered(ctx, n.ID, now)
		if err != nil {
			_ = g.Wait()
			d.metrics.DispatchRuns.WithLabelValues("error").Inc()
			return nil, domain.NewStorageError("mark delivered", err)
		}
		if !won {
			report.Skipped++
			d.metrics.DispatchTransitions.WithLabelValues("skipped").Inc()
			continue
		}
		report.Delivered++
		report.DeliveredIDs = append(report.DeliveredIDs, n.ID)
		d.metrics.DispatchTransitions.WithLabelValues("delivered").Inc()

		msg := messageFor(&n)
		for _, tok := range tokens {
			attempts.Add(1)
			g.Go(func() error {
				if !d.deliver(ctx, now, tok, msg) {
					failures.Add(1)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Attempts = int(attempts.Load())
	report.Failures = int(failures.Load())
	d.metrics.DispatchRuns.WithLabelValues("ok").Inc()
	d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	d.log.Info("dispatch pass complete",
		"run_id", report.RunID,
		"due", report.Due,
		"delivered", report.Delivered,
		"skipped", report.Skipped,
		"unresolved", report.Unresolved,
		"attempts", report.Attempts,
		"failures", report.Failures,
	)

	if d.archive != nil {
		if err := d.archive.Archive(ctx, report); err != nil {
			d.log.Warn("archive dispatch report", "run_id", report.RunID, "err", err)
		}
	}
	return report, nil
}

// resolve returns the distinct active tokens of n's audience.
func (d *Dispatcher) resolve(ctx context.Context, n *domain.Notification) ([]domain.PushToken, error) {
	var (
		tokens []domain.PushToken
		err    error
	)
	switch n.Target() {
	case domain.TargetUser:
		tokens, err = d.tokens.ListActiveByUser(ctx, *n.UserID)
	case domain.TargetOrganization:
		var members []string
		members, err = d.members.MemberIDs(ctx, *n.OrganizationID)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{}, len(members))
		for _, uid := range members {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			userTokens, err := d.tokens.ListActiveByUser(ctx, uid)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, userTokens...)
		}
	default:
		tokens, err = d.tokens.ListActive(ctx)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(tokens), nil
}

// deliver makes one attempt and reports whether it succeeded.
func (d *Dispatcher) deliver(ctx context.Context, now time.Time, tok domain.PushToken, msg domain.PushMessage) bool {
	err := d.attempt(ctx, tok, msg)
	status := classify(err)
	d.metrics.PushAttempts.WithLabelValues(string(tok.Platform), status).Inc()
	if err == nil {
		return true
	}

	d.log.Warn("push delivery failed",
		"status", status,
		"err", &domain.DeliveryError{NotificationID: msg.NotificationID, TokenID: tok.TokenID, Err: err},
	)
	if status == "unregistered" {
		if _, derr := d.tokens.Deactivate(ctx, tok.UserID, tok.Token, now); derr != nil {
			d.log.Warn("deactivate unregistered token", "token_id", tok.TokenID, "err", derr)
		} else {
			d.log.Info("unregistered token deactivated", "token_id", tok.TokenID, "user_id", tok.UserID)
		}
	}
	return false
}

// attempt runs Send under the attempt deadline. A transport that ignores ctx is abandoned
// when the deadline passes; its goroutine finishes on its own.
func (d *Dispatcher) attempt(ctx context.Context, tok domain.PushToken, msg domain.PushMessage) error {
	actx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.transport.Send(actx, tok, msg) }()

	select {
	case err := <-done:
		return err
	case <-actx.Done():
		return actx.Err()
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrTokenUnregistered):
		return "unregistered"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func dedupe(tokens []domain.PushToken) []domain.PushToken {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t.TokenID]; ok {
			continue
		}
		seen[t.TokenID] = struct{}{}
		out = append(out, t)
	}
	return out
}

func messageFor(n *domain.Notification) domain.PushMessage {
	return domain.PushMessage{
		NotificationID: n.ID,
		GroupKey:       n.GroupKey,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Message,
	}
}
