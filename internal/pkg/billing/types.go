package billing

import (
	"time"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
)

// EventKind is the canonical operation a provider event maps to.
type EventKind string

const (
	KindActivate       EventKind = "activate"
	KindCancel         EventKind = "cancel"
	KindSuspend        EventKind = "suspend"
	KindPaymentFailure EventKind = "payment_failure"
	KindUnknown        EventKind = "unknown"
)

// Event is the provider-agnostic shape every verified delivery is parsed
// into before it may touch a subscription record.
type Event struct {
	Kind                   EventKind
	Provider               string
	ProviderEventID        string
	EventType              string
	ExternalSubscriptionID string
	// UserID is the hint the provider carries back to us (Stripe metadata,
	// PayPal custom_id). Empty when the provider did not echo it.
	UserID string
	// PlanRef is the provider's own plan reference (Stripe price ID, PayPal
	// plan ID).
	PlanRef         string
	PeriodEnd       *time.Time
	FailureAmount   string
	FailureCurrency string
	Payload         []byte
}

// Outcome describes what a delivery did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is returned for every accepted delivery.
type Result struct {
	Outcome Outcome
	Event   Event
	Plan    plans.ID
	Record  *models.SubscriptionRecord
	// Reason explains an ignored event.
	Reason string
	// Unresolved marks an ignored event whose user or subscription is not
	// known yet. The delivery stays reprocessable.
	Unresolved bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Operation       string
	PayloadJSON     string
}

// HeaderGetter is the read side of request headers. http.Header satisfies it.
type HeaderGetter interface {
	Get(key string) string
}
