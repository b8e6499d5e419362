package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
	BillingProviderPayPal = "paypal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive        SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspended     SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled     SubscriptionStatus = "CANCELLED"
	SubscriptionStatusPaymentFailed SubscriptionStatus = "PAYMENT_FAILED"
)

// IsActive reports whether metered actions are allowed in this status.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubscriptionStatusActive
}

// SubscriptionRecord is the single per-user entitlement row: current plan,
// status, usage counters and the end of the current period. The limit
// columns snapshot the plan's allowance at the last plan change for
// reporting; enforcement reads the plan catalog.
type SubscriptionRecord struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	UserID                 string             `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Plan                   string             `gorm:"type:varchar(32);not null;default:'FREE'" json:"plan"`
	Status                 SubscriptionStatus `gorm:"type:varchar(32);not null;default:'ACTIVE';index" json:"status"`
	Provider               string             `gorm:"type:varchar(20);not null;default:'';index:idx_subscription_records_external,priority:1" json:"provider"`
	ExternalSubscriptionID string             `gorm:"type:varchar(191);not null;default:'';index:idx_subscription_records_external,priority:2" json:"external_subscription_id"`
	DocumentsUsed          int                `gorm:"not null;default:0" json:"documents_used"`
	QuestionsUsed          int                `gorm:"not null;default:0" json:"questions_used"`
	DocumentsLimit         int                `gorm:"not null;default:0" json:"documents_limit"`
	QuestionsLimit         int                `gorm:"not null;default:0" json:"questions_limit"`
	ValidUntil             time.Time          `gorm:"not null" json:"valid_until"`
	LastFailureNote        string             `gorm:"type:varchar(255);not null;default:''" json:"last_failure_note"`
	LastFailureAt          *time.Time         `gorm:"type:timestamp;default:null" json:"last_failure_at,omitempty"`
	CreatedAt              time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}
