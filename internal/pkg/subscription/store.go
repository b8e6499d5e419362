// Package subscription owns the per-user SubscriptionRecord. It is the only
// code that writes the row; every mutation is a single conditional statement
// keyed by user_id so quota checks and billing updates never interleave
// halfway. Quota limits always come from the plan catalog.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
)

var (
	ErrNotFound         = errors.New("subscription record not found")
	ErrUnknownUser      = errors.New("unknown user")
	ErrInactive         = errors.New("subscription is not active")
	ErrLimitReached     = errors.New("usage limit reached")
	ErrStoreUnavailable = errors.New("subscription store unavailable")
)

const maxIncrementAttempts = 3

// BillingUpdate lists the fields a billing event may change. Nil fields are
// left untouched.
type BillingUpdate struct {
	Plan                   *plans.ID
	Status                 *models.SubscriptionStatus
	Provider               *string
	ExternalSubscriptionID *string
	ValidUntil             *time.Time
	FailureNote            *string
}

// Store is the Subscription Record Store.
type Store interface {
	Get(ctx context.Context, userID string) (*models.SubscriptionRecord, error)
	GetOrCreate(ctx context.Context, userID string) (*models.SubscriptionRecord, error)
	FindByExternalID(ctx context.Context, provider, externalSubscriptionID string) (*models.SubscriptionRecord, error)
	ApplyBillingUpdate(ctx context.Context, userID string, upd BillingUpdate) (*models.SubscriptionRecord, error)
	// IncrementUsage consumes one unit of kind. On ErrInactive and
	// ErrLimitReached the unchanged record is returned alongside the error.
	IncrementUsage(ctx context.Context, userID string, kind plans.Kind) (*models.SubscriptionRecord, error)
	// ResetPeriod zeroes both counters and starts a new period at now if the
	// record is active and its period ended before now. The bool reports
	// whether a reset happened.
	ResetPeriod(ctx context.Context, userID string, now time.Time) (*models.SubscriptionRecord, bool, error)
}

type Option func(*gormStore)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *gormStore) {
		s.now = now
	}
}

type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a subscription store backed by GORM.
func NewStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRecord returns the defaults a user starts with: FREE, ACTIVE, no usage
// and one full billing period.
func NewRecord(userID string, now time.Time) *models.SubscriptionRecord {
	free := plans.Resolve(string(plans.Free))
	return &models.SubscriptionRecord{
		UserID:         userID,
		Plan:           string(free.ID),
		Status:         models.SubscriptionStatusActive,
		DocumentsLimit: free.DocumentsPerMonth,
		QuestionsLimit: free.QuestionsPerMonth,
		ValidUntil:     now.Add(plans.BillingPeriod),
	}
}

// Usage returns the used counter of kind and the limit the catalog assigns
// to the record's plan.
func Usage(rec *models.SubscriptionRecord, kind plans.Kind) (used, limit int) {
	limit = plans.Resolve(rec.Plan).Limit(kind)
	switch kind {
	case plans.KindDocument:
		return rec.DocumentsUsed, limit
	case plans.KindQuestion:
		return rec.QuestionsUsed, limit
	default:
		return 0, 0
	}
}

func (s *gormStore) Get(ctx context.Context, userID string) (*models.SubscriptionRecord, error) {
	return s.take(s.db.WithContext(ctx), "user_id = ?", userID)
}

func (s *gormStore) GetOrCreate(ctx context.Context, userID string) (*models.SubscriptionRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	rec, err := s.Get(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.create(s.db.WithContext(ctx), userID); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *gormStore) FindByExternalID(ctx context.Context, provider, externalSubscriptionID string) (*models.SubscriptionRecord, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	externalSubscriptionID = strings.TrimSpace(externalSubscriptionID)
	if provider == "" || externalSubscriptionID == "" {
		return nil, ErrNotFound
	}
	return s.take(s.db.WithContext(ctx), "provider = ? AND external_subscription_id = ?", provider, externalSubscriptionID)
}

func (s *gormStore) ApplyBillingUpdate(ctx context.Context, userID string, upd BillingUpdate) (*models.SubscriptionRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	cols := upd.columns(s.now())
	var out *models.SubscriptionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensure(tx, userID); err != nil {
			return err
		}
		if len(cols) > 0 {
			if err := tx.Model(&models.SubscriptionRecord{}).
				Where("user_id = ?", userID).
				Updates(cols).Error; err != nil {
				return unavailable(err)
			}
		}
		rec, err := s.take(tx, "user_id = ?", userID)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) IncrementUsage(ctx context.Context, userID string, kind plans.Kind) (*models.SubscriptionRecord, error) {
	usedCol, err := usedColumn(kind)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		rec, err := s.take(db, "user_id = ?", userID)
		if err != nil {
			return nil, err
		}
		if !rec.Status.IsActive() {
			return rec, ErrInactive
		}

		// plan = ? makes the UPDATE miss when a billing update changed the
		// plan after this read.
		limit := plans.Resolve(rec.Plan).Limit(kind)
		q := db.Model(&models.SubscriptionRecord{}).
			Where("user_id = ? AND plan = ? AND status = ?", userID, rec.Plan, string(models.SubscriptionStatusActive))
		if !plans.IsUnlimited(limit) {
			q = q.Where(usedCol+" < ?", limit)
		}
		res := q.Updates(map[string]interface{}{
			usedCol:      gorm.Expr(usedCol+" + ?", 1),
			"updated_at": s.now(),
		})
		if res.Error != nil {
			return nil, unavailable(res.Error)
		}

		after, err := s.take(db, "user_id = ?", userID)
		if err != nil {
			return nil, err
		}
		switch {
		case res.RowsAffected > 0:
			return after, nil
		case !after.Status.IsActive():
			return after, ErrInactive
		case after.Plan == rec.Plan:
			return after, ErrLimitReached
		}
	}
	return nil, fmt.Errorf("%w: plan of user %s changed during %d increment attempts", ErrStoreUnavailable, userID, maxIncrementAttempts)
}

func (s *gormStore) ResetPeriod(ctx context.Context, userID string, now time.Time) (*models.SubscriptionRecord, bool, error) {
	now = now.UTC()
	res := s.db.WithContext(ctx).Model(&models.SubscriptionRecord{}).
		Where("user_id = ? AND status = ? AND valid_until < ?", userID, string(models.SubscriptionStatusActive), now).
		Updates(map[string]interface{}{
			"documents_used": 0,
			"questions_used": 0,
			"valid_until":    now.Add(plans.BillingPeriod),
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, false, unavailable(res.Error)
	}

	rec, err := s.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return rec, res.RowsAffected > 0, nil
}

func (s *gormStore) ensure(tx *gorm.DB, userID string) error {
	var n int64
	if err := tx.Model(&models.SubscriptionRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return unavailable(err)
	}
	if n > 0 {
		return nil
	}
	return s.create(tx, userID)
}

func (s *gormStore) create(tx *gorm.DB, userID string) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrUnknownUser
	}

	rec := NewRecord(userID, s.now())
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(rec).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *gormStore) take(db *gorm.DB, query string, args ...interface{}) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	if err := db.Where(query, args...).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &rec, nil
}

func (u BillingUpdate) columns(now time.Time) map[string]interface{} {
	cols := make(map[string]interface{})
	if u.Plan != nil {
		def := plans.Resolve(string(*u.Plan))
		cols["plan"] = string(def.ID)
		cols["documents_limit"] = def.DocumentsPerMonth
		cols["questions_limit"] = def.QuestionsPerMonth
	}
	if u.Status != nil {
		cols["status"] = string(*u.Status)
	}
	if u.Provider != nil {
		cols["provider"] = strings.ToLower(strings.TrimSpace(*u.Provider))
	}
	if u.ExternalSubscriptionID != nil {
		cols["external_subscription_id"] = strings.TrimSpace(*u.ExternalSubscriptionID)
	}
	if u.ValidUntil != nil {
		cols["valid_until"] = u.ValidUntil.UTC()
	}
	if u.FailureNote != nil {
		cols["last_failure_note"] = *u.FailureNote
		cols["last_failure_at"] = now
	}
	if len(cols) > 0 {
		cols["updated_at"] = now
	}
	return cols
}

func usedColumn(kind plans.Kind) (string, error) {
	switch kind {
	case plans.KindDocument:
		return "documents_used", nil
	case plans.KindQuestion:
		return "questions_used", nil
	default:
		return "", fmt.Errorf("unknown usage kind %q", kind)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
