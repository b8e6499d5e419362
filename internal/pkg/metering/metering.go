// Package metering is the gatekeeper every metered action passes through.
// CheckAndConsume answers "may this user do one more X" and records the use
// in the same atomic step.
package metering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/metrics"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
)

// Reason classifies a refused metered action.
type Reason string

const (
	ReasonSubscriptionInactive Reason = "subscription_inactive"
	ReasonQuotaExceeded        Reason = "quota_exceeded"
)

var (
	ErrSubscriptionInactive = errors.New("subscription inactive")
	ErrQuotaExceeded        = errors.New("quota exceeded")
)

// EntitlementError is returned when a metered action is refused. It matches
// ErrSubscriptionInactive or ErrQuotaExceeded with errors.Is.
type EntitlementError struct {
	Reason Reason
	Kind   plans.Kind
	Status models.SubscriptionStatus
	Used   int
	Limit  int
}

func (e *EntitlementError) Error() string {
	switch e.Reason {
	case ReasonSubscriptionInactive:
		return fmt.Sprintf("subscription inactive (status %s)", e.Status)
	default:
		return fmt.Sprintf("%s quota exceeded (%d/%d)", e.Kind, e.Used, e.Limit)
	}
}

func (e *EntitlementError) Is(target error) bool {
	switch target {
	case ErrSubscriptionInactive:
		return e.Reason == ReasonSubscriptionInactive
	case ErrQuotaExceeded:
		return e.Reason == ReasonQuotaExceeded
	default:
		return false
	}
}

// Usage is the counter state after a successful consume.
type Usage struct {
	Kind       plans.Kind
	Plan       plans.ID
	Used       int
	Limit      int
	ValidUntil time.Time
}

// Unlimited reports whether the consumed kind has no cap.
func (u Usage) Unlimited() bool {
	return plans.IsUnlimited(u.Limit)
}

// Remaining returns how many units are left, or -1 when unlimited.
func (u Usage) Remaining() int {
	if u.Unlimited() {
		return plans.Unlimited
	}
	if r := u.Limit - u.Used; r > 0 {
		return r
	}
	return 0
}

// Notifier is told about every user whose record changed.
type Notifier interface {
	Invalidate(ctx context.Context, userID string)
}

type Option func(*Service)

// WithClock overrides the time source used for period resets.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithNotifier registers a change listener, usually the entitlement cache.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

type Service struct {
	store    subscription.Store
	notifier Notifier
	now      func() time.Time
}

func NewService(store subscription.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndConsume verifies the user may perform one action of kind and
// consumes it. A refused action never changes the counters.
func (s *Service) CheckAndConsume(ctx context.Context, userID string, kind plans.Kind) (*Usage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	if _, err := plans.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		s.observe(kind, "error")
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	_, reset, err := s.store.ResetPeriod(ctx, userID, s.now())
	if err != nil {
		s.observe(kind, "error")
		return nil, fmt.Errorf("reset period: %w", err)
	}
	if reset {
		metrics.PeriodResets.Inc()
		log.Infof("metering: started new billing period for user %s", userID)
		s.invalidate(ctx, userID)
	}

	rec, err := s.store.IncrementUsage(ctx, userID, kind)
	switch {
	case err == nil:
	case errors.Is(err, subscription.ErrInactive):
		s.observe(kind, string(ReasonSubscriptionInactive))
		used, limit := subscription.Usage(rec, kind)
		return nil, &EntitlementError{
			Reason: ReasonSubscriptionInactive,
			Kind:   kind,
			Status: rec.Status,
			Used:   used,
			Limit:  limit,
		}
	case errors.Is(err, subscription.ErrLimitReached):
		s.observe(kind, string(ReasonQuotaExceeded))
		used, limit := subscription.Usage(rec, kind)
		return nil, &EntitlementError{
			Reason: ReasonQuotaExceeded,
			Kind:   kind,
			Status: rec.Status,
			Used:   used,
			Limit:  limit,
		}
	default:
		s.observe(kind, "error")
		return nil, fmt.Errorf("consume %s: %w", kind, err)
	}

	s.observe(kind, "allowed")
	s.invalidate(ctx, userID)

	used, limit := subscription.Usage(rec, kind)
	return &Usage{
		Kind:       kind,
		Plan:       plans.Normalize(rec.Plan),
		Used:       used,
		Limit:      limit,
		ValidUntil: rec.ValidUntil,
	}, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.notifier != nil {
		s.notifier.Invalidate(ctx, userID)
	}
}

func (s *Service) observe(kind plans.Kind, outcome string) {
	metrics.UsageDecisions.WithLabelValues(string(kind), outcome).Inc()
}
