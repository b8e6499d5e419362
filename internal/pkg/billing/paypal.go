package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ManuelReschke/AskFox/app/models"
)

const (
	paypalVerifyPath = "/v1/notifications/verify-webhook-signature"
	paypalTokenPath  = "/v1/oauth2/token"
)

// Transmission headers PayPal signs every webhook delivery with.
var paypalTransmissionHeaders = []string{
	"Paypal-Auth-Algo",
	"Paypal-Cert-Url",
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Sig",
	"Paypal-Transmission-Time",
}

// PayPalVerifier asks PayPal to confirm a delivery's transmission signature
// and parses verified deliveries into canonical events.
type PayPalVerifier struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	APIBaseURL   string

	HTTPClient *http.Client
}

// NewPayPalVerifier builds a verifier whose HTTP client fetches and caches
// client-credentials tokens on demand.
func NewPayPalVerifier(clientID, clientSecret, webhookID, apiBaseURL string) *PayPalVerifier {
	base := strings.TrimRight(strings.TrimSpace(apiBaseURL), "/")
	v := &PayPalVerifier{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: strings.TrimSpace(clientSecret),
		WebhookID:    strings.TrimSpace(webhookID),
		APIBaseURL:   base,
	}

	cc := &clientcredentials.Config{
		ClientID:     v.ClientID,
		ClientSecret: v.ClientSecret,
		TokenURL:     base + paypalTokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 15 * time.Second})
	v.HTTPClient = cc.Client(ctx)
	v.HTTPClient.Timeout = 15 * time.Second
	return v
}

func (v *PayPalVerifier) Provider() string {
	return models.BillingProviderPayPal
}

func (v *PayPalVerifier) configured() bool {
	return v.ClientID != "" && v.ClientSecret != "" && v.WebhookID != "" && v.APIBaseURL != ""
}

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

func (v *PayPalVerifier) Parse(ctx context.Context, payload []byte, headers HeaderGetter) (Event, error) {
	if !v.configured() {
		return Event{}, fmt.Errorf("%w: PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET and PAYPAL_WEBHOOK_ID are required", ErrNotConfigured)
	}

	values := make(map[string]string, len(paypalTransmissionHeaders))
	for _, h := range paypalTransmissionHeaders {
		val := strings.TrimSpace(headers.Get(h))
		if val == "" {
			return Event{}, fmt.Errorf("%w: missing %s header", ErrUnverifiedEvent, h)
		}
		values[h] = val
	}
	if !json.Valid(payload) {
		return Event{}, fmt.Errorf("%w: payload is not valid JSON", ErrUnverifiedEvent)
	}

	if err := v.verify(ctx, paypalVerifyRequest{
		AuthAlgo:         values["Paypal-Auth-Algo"],
		CertURL:          values["Paypal-Cert-Url"],
		TransmissionID:   values["Paypal-Transmission-Id"],
		TransmissionSig:  values["Paypal-Transmission-Sig"],
		TransmissionTime: values["Paypal-Transmission-Time"],
		WebhookID:        v.WebhookID,
		WebhookEvent:     json.RawMessage(payload),
	}); err != nil {
		return Event{}, err
	}
	return normalizePayPalEvent(payload)
}

func (v *PayPalVerifier) verify(ctx context.Context, in paypalVerifyRequest) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.APIBaseURL+paypalVerifyPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: verify signature: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("%w: verify signature: status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: verify signature: status=%d body=%s", ErrUnverifiedEvent, resp.StatusCode, string(respBody))
	}

	var out paypalVerifyResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("%w: decode verification response: %w", ErrProviderUnavailable, err)
	}
	if !strings.EqualFold(out.VerificationStatus, "SUCCESS") {
		return fmt.Errorf("%w: verification_status=%s", ErrUnverifiedEvent, out.VerificationStatus)
	}
	return nil
}

type paypalEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type paypalSubscription struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	CustomID    string `json:"custom_id"`
	BillingInfo struct {
		NextBillingTime   string `json:"next_billing_time"`
		LastFailedPayment struct {
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
		} `json:"last_failed_payment"`
	} `json:"billing_info"`
}

func normalizePayPalEvent(payload []byte) (Event, error) {
	var env paypalEvent
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: decode paypal event: %w", ErrMalformedEvent, err)
	}

	out := Event{
		Kind:            KindUnknown,
		Provider:        models.BillingProviderPayPal,
		ProviderEventID: strings.TrimSpace(env.ID),
		EventType:       strings.ToUpper(strings.TrimSpace(env.EventType)),
		Payload:         payload,
	}
	if !strings.HasPrefix(out.EventType, "BILLING.SUBSCRIPTION.") {
		return out, nil
	}
	if len(env.Resource) == 0 {
		return out, fmt.Errorf("%w: paypal event %s has no resource", ErrMalformedEvent, env.ID)
	}

	var sub paypalSubscription
	if err := json.Unmarshal(env.Resource, &sub); err != nil {
		return out, fmt.Errorf("%w: decode subscription resource: %w", ErrMalformedEvent, err)
	}
	out.ExternalSubscriptionID = strings.TrimSpace(sub.ID)
	out.UserID = strings.TrimSpace(sub.CustomID)
	out.PlanRef = strings.TrimSpace(sub.PlanID)
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(sub.BillingInfo.NextBillingTime)); err == nil {
		t = t.UTC()
		out.PeriodEnd = &t
	}
	out.Kind = paypalSubscriptionKind(out.EventType, sub.Status)
	if out.Kind == KindPaymentFailure {
		out.FailureAmount = strings.TrimSpace(sub.BillingInfo.LastFailedPayment.Amount.Value)
		out.FailureCurrency = strings.ToUpper(strings.TrimSpace(sub.BillingInfo.LastFailedPayment.Amount.CurrencyCode))
	}
	return out, nil
}

func paypalSubscriptionKind(eventType, status string) EventKind {
	switch strings.TrimPrefix(eventType, "BILLING.SUBSCRIPTION.") {
	case "ACTIVATED", "RE-ACTIVATED":
		return KindActivate
	case "CREATED", "UPDATED":
		if strings.EqualFold(strings.TrimSpace(status), "ACTIVE") {
			return KindActivate
		}
		return KindUnknown
	case "CANCELLED", "EXPIRED":
		return KindCancel
	case "SUSPENDED":
		return KindSuspend
	case "PAYMENT.FAILED":
		return KindPaymentFailure
	default:
		return KindUnknown
	}
}
