package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
)

// Verifier authenticates a raw provider delivery and parses it into an Event.
// Errors wrap ErrUnverifiedEvent, ErrMalformedEvent, ErrProviderUnavailable
// or ErrNotConfigured.
type Verifier interface {
	Provider() string
	Parse(ctx context.Context, payload []byte, headers HeaderGetter) (Event, error)
}

// Notifier is told about every user whose record changed.
type Notifier interface {
	Invalidate(ctx context.Context, userID string)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// Service reconciles provider notifications into subscription records.
type Service struct {
	repo     Repository
	store    subscription.Store
	notifier Notifier
	now      func() time.Time
}

// NewService creates a billing service from an injected repository and store.
func NewService(repo Repository, store subscription.Store, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), subscription.NewStore(db), opts...)
}

// SeedPlanMappings upserts the configured provider plan references.
func (s *Service) SeedPlanMappings(ctx context.Context, provider string, refs map[plans.ID]string) error {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return errors.New("provider is required")
	}
	for planID, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		def, ok := plans.Lookup(string(planID))
		if !ok {
			return fmt.Errorf("unknown plan %q for %s ref %s", planID, p, ref)
		}
		if err := s.repo.UpsertPlanMapping(ctx, &models.BillingPlanMapping{
			Provider:        p,
			ProviderPlanRef: ref,
			InternalPlan:    string(def.ID),
			IsActive:        true,
		}); err != nil {
			return fmt.Errorf("seed %s plan mapping %s: %w", p, ref, err)
		}
	}
	return nil
}

// HandleDelivery verifies, records and reconciles one webhook delivery.
// Deliveries that were already applied successfully are acknowledged as
// duplicates; failed or unresolved ones are processed again.
func (s *Service) HandleDelivery(ctx context.Context, v Verifier, payload []byte, headers HeaderGetter) (*Result, error) {
	ev, err := v.Parse(ctx, payload, headers)
	if err != nil {
		return nil, err
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        ev.Provider,
		ProviderEventID: ev.ProviderEventID,
		EventType:       ev.EventType,
		Operation:       string(ev.Kind),
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: record webhook event: %w", subscription.ErrStoreUnavailable, err)
	}
	if !created && stored.Handled() {
		return &Result{Outcome: OutcomeDuplicate, Event: ev}, nil
	}

	res, procErr := s.Reconcile(ctx, ev)
	markErr := procErr
	if markErr == nil && res != nil && res.Unresolved {
		markErr = errors.New(res.Reason)
	}
	if err := s.MarkWebhookProcessed(ctx, stored.ID, markErr); err != nil {
		log.Errorf("billing: mark webhook %d processed: %v", stored.ID, err)
	}
	return res, procErr
}

// Reconcile applies a verified canonical event to the user's record. Applying
// the same event twice yields the same record.
func (s *Service) Reconcile(ctx context.Context, ev Event) (*Result, error) {
	if ev.Kind == KindUnknown || ev.Kind == "" {
		return s.ignore(ev, "unhandled event type"), nil
	}

	userID, err := s.resolveUser(ctx, ev)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			return s.unresolved(ev, "no user for subscription"), nil
		}
		return nil, err
	}

	upd, planID, err := s.updateFor(ctx, ev)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.ApplyBillingUpdate(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, subscription.ErrUnknownUser) {
			return s.unresolved(ev, "unknown user "+userID), nil
		}
		return nil, fmt.Errorf("apply %s for user %s: %w", ev.Kind, userID, err)
	}
	if s.notifier != nil {
		s.notifier.Invalidate(ctx, userID)
	}

	log.Infof("billing: %s %s applied to user %s (plan=%s status=%s)", ev.Provider, ev.Kind, userID, rec.Plan, rec.Status)
	return &Result{Outcome: OutcomeApplied, Event: ev, Plan: planID, Record: rec}, nil
}

func (s *Service) resolveUser(ctx context.Context, ev Event) (string, error) {
	if id := strings.TrimSpace(ev.UserID); id != "" {
		return id, nil
	}
	rec, err := s.store.FindByExternalID(ctx, ev.Provider, ev.ExternalSubscriptionID)
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

func (s *Service) updateFor(ctx context.Context, ev Event) (subscription.BillingUpdate, plans.ID, error) {
	now := s.now()
	var upd subscription.BillingUpdate

	switch ev.Kind {
	case KindActivate:
		planID, err := s.ResolvePlan(ctx, ev.Provider, ev.PlanRef)
		if err != nil {
			return upd, "", fmt.Errorf("%w: resolve plan: %w", subscription.ErrStoreUnavailable, err)
		}
		validUntil := now.Add(plans.BillingPeriod)
		if ev.PeriodEnd != nil {
			validUntil = ev.PeriodEnd.UTC()
		}
		upd.Plan = &planID
		upd.Status = statusPtr(models.SubscriptionStatusActive)
		upd.Provider = stringPtr(ev.Provider)
		upd.ExternalSubscriptionID = stringPtr(ev.ExternalSubscriptionID)
		upd.ValidUntil = &validUntil
		return upd, planID, nil

	case KindCancel:
		free := plans.Free
		upd.Plan = &free
		upd.Status = statusPtr(models.SubscriptionStatusCancelled)
		upd.ValidUntil = &now
		return upd, free, nil

	case KindSuspend:
		upd.Status = statusPtr(models.SubscriptionStatusSuspended)
		return upd, "", nil

	case KindPaymentFailure:
		upd.Status = statusPtr(models.SubscriptionStatusPaymentFailed)
		upd.FailureNote = stringPtr(failureNote(ev))
		return upd, "", nil

	default:
		return upd, "", fmt.Errorf("unsupported event kind %q", ev.Kind)
	}
}

func (s *Service) ignore(ev Event, reason string) *Result {
	log.Infof("billing: ignoring %s event %s (%s): %s", ev.Provider, ev.ProviderEventID, ev.EventType, reason)
	return &Result{Outcome: OutcomeIgnored, Event: ev, Reason: reason}
}

func (s *Service) unresolved(ev Event, reason string) *Result {
	res := s.ignore(ev, reason)
	res.Unresolved = true
	return res
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		Operation:       strings.TrimSpace(in.Operation),
		PayloadJSON:     in.PayloadJSON,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

func failureNote(ev Event) string {
	note := "payment failed"
	if ev.FailureAmount != "" {
		note += ": " + ev.FailureAmount
		if ev.FailureCurrency != "" {
			note += " " + ev.FailureCurrency
		}
	}
	if ev.ProviderEventID != "" {
		note += " (" + ev.Provider + " " + ev.ProviderEventID + ")"
	}
	return note
}

func statusPtr(s models.SubscriptionStatus) *models.SubscriptionStatus {
	return &s
}

func stringPtr(s string) *string {
	return &s
}
