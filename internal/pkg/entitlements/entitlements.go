// Package entitlements is the read-only projection of a subscription record
// that clients use to render plan, status and remaining quota.
package entitlements

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
)

const unlimitedLiteral = "unlimited"

// Limit is a quota value that renders the unlimited sentinel as the string
// "unlimited" instead of -1.
type Limit int

func (l Limit) Unlimited() bool {
	return plans.IsUnlimited(int(l))
}

func (l Limit) String() string {
	if l.Unlimited() {
		return unlimitedLiteral
	}
	return strconv.Itoa(int(l))
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.Unlimited() {
		return []byte(`"` + unlimitedLiteral + `"`), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

func (l *Limit) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte(`"`+unlimitedLiteral+`"`)) {
		*l = Limit(plans.Unlimited)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("limit must be an integer or %q: %w", unlimitedLiteral, err)
	}
	*l = Limit(n)
	return nil
}

// Entitlement is what a user may currently do.
type Entitlement struct {
	UserID          string                    `json:"user_id"`
	Plan            plans.ID                  `json:"plan"`
	PlanName        string                    `json:"plan_name"`
	Status          models.SubscriptionStatus `json:"status"`
	Active          bool                      `json:"active"`
	DocumentsUsed   int                       `json:"documents_used"`
	DocumentsLimit  Limit                     `json:"documents_limit"`
	QuestionsUsed   int                       `json:"questions_used"`
	QuestionsLimit  Limit                     `json:"questions_limit"`
	ValidUntil      time.Time                 `json:"valid_until"`
	LastFailureNote string                    `json:"last_failure_note,omitempty"`
}

// FromRecord projects a subscription record through the plan catalog.
func FromRecord(rec *models.SubscriptionRecord) *Entitlement {
	def := plans.Resolve(rec.Plan)
	return &Entitlement{
		UserID:          rec.UserID,
		Plan:            def.ID,
		PlanName:        def.Name,
		Status:          rec.Status,
		Active:          rec.Status.IsActive(),
		DocumentsUsed:   rec.DocumentsUsed,
		DocumentsLimit:  Limit(def.DocumentsPerMonth),
		QuestionsUsed:   rec.QuestionsUsed,
		QuestionsLimit:  Limit(def.QuestionsPerMonth),
		ValidUntil:      rec.ValidUntil.UTC(),
		LastFailureNote: rec.LastFailureNote,
	}
}

// Remaining returns how many actions of kind are left, or the unlimited
// sentinel.
func (e *Entitlement) Remaining(kind plans.Kind) Limit {
	used, limit := e.QuestionsUsed, e.QuestionsLimit
	if kind == plans.KindDocument {
		used, limit = e.DocumentsUsed, e.DocumentsLimit
	}
	if limit.Unlimited() {
		return limit
	}
	if r := int(limit) - used; r > 0 {
		return Limit(r)
	}
	return 0
}
