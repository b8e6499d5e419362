package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/AskFox/app/models"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeVerifier authenticates Stripe deliveries with the endpoint signing
// secret and parses them into canonical events.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: strings.TrimSpace(secret)}
}

func (v *StripeVerifier) Provider() string {
	return models.BillingProviderStripe
}

func (v *StripeVerifier) Parse(_ context.Context, payload []byte, headers HeaderGetter) (Event, error) {
	if v.secret == "" {
		return Event{}, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is not set", ErrNotConfigured)
	}
	sig := strings.TrimSpace(headers.Get(stripeSignatureHeader))
	if sig == "" {
		return Event{}, fmt.Errorf("%w: missing %s header", ErrUnverifiedEvent, stripeSignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrUnverifiedEvent, err)
	}
	return normalizeStripeEvent(&event, payload)
}

// stripeRef decodes fields Stripe sends either as an ID string or as an
// expanded object.
type stripeRef string

func (r *stripeRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = stripeRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = stripeRef(obj.ID)
	return nil
}

type stripeSubscription struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s *stripeSubscription) firstPriceID() string {
	for _, item := range s.Items.Data {
		if id := strings.TrimSpace(item.Price.ID); id != "" {
			return id
		}
	}
	return ""
}

func (s *stripeSubscription) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	if end == 0 {
		for _, item := range s.Items.Data {
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	return unixPtr(end)
}

type stripeInvoice struct {
	ID           string    `json:"id"`
	Subscription stripeRef `json:"subscription"`
	AmountDue    int64     `json:"amount_due"`
	Currency     string    `json:"currency"`
	// Newer API versions moved the subscription under parent.
	Parent struct {
		SubscriptionDetails struct {
			Subscription stripeRef        `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

func (inv *stripeInvoice) subscriptionID() string {
	if id := strings.TrimSpace(string(inv.Subscription)); id != "" {
		return id
	}
	return strings.TrimSpace(string(inv.Parent.SubscriptionDetails.Subscription))
}

func (inv *stripeInvoice) userID() string {
	if id := metadataUserID(inv.Parent.SubscriptionDetails.Metadata); id != "" {
		return id
	}
	return metadataUserID(inv.SubscriptionDetails.Metadata)
}

func normalizeStripeEvent(event *stripelib.Event, payload []byte) (Event, error) {
	out := Event{
		Kind:            KindUnknown,
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         payload,
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, fmt.Errorf("%w: stripe event %s has no data object", ErrMalformedEvent, event.ID)
	}

	switch out.EventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"customer.subscription.paused",
		"customer.subscription.resumed":
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("%w: decode subscription: %w", ErrMalformedEvent, err)
		}
		out.ExternalSubscriptionID = strings.TrimSpace(sub.ID)
		out.UserID = metadataUserID(sub.Metadata)
		out.PlanRef = sub.firstPriceID()
		out.PeriodEnd = sub.periodEnd()
		out.Kind = stripeSubscriptionKind(out.EventType, sub.Status)

	case "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return out, fmt.Errorf("%w: decode invoice: %w", ErrMalformedEvent, err)
		}
		out.Kind = KindPaymentFailure
		out.ExternalSubscriptionID = inv.subscriptionID()
		out.UserID = inv.userID()
		out.FailureAmount = formatMinorUnits(inv.AmountDue)
		out.FailureCurrency = strings.ToUpper(strings.TrimSpace(inv.Currency))
	}
	return out, nil
}

func stripeSubscriptionKind(eventType, status string) EventKind {
	switch eventType {
	case "customer.subscription.deleted":
		return KindCancel
	case "customer.subscription.paused":
		return KindSuspend
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return KindActivate
	case "canceled":
		return KindCancel
	case "paused":
		return KindSuspend
	default:
		// incomplete, past_due, unpaid: the invoice events carry the signal.
		return KindUnknown
	}
}

func metadataUserID(md map[string]string) string {
	return strings.TrimSpace(md["user_id"])
}

func formatMinorUnits(amount int64) string {
	if amount <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
