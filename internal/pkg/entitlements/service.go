package entitlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ManuelReschke/AskFox/internal/pkg/metrics"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
)

const (
	cacheKeyPrefix = "entitlement:"
	loadTimeout    = 5 * time.Second
)

// Service serves entitlements, reading through an optional Redis cache.
// Concurrent misses for the same user share one store read.
type Service struct {
	store subscription.Store
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewService creates the query service. A nil client or a non-positive ttl
// disables caching.
func NewService(store subscription.Store, rdb *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		rdb = nil
	}
	return &Service{store: store, rdb: rdb, ttl: ttl}
}

func cacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

// Get returns the user's entitlement, creating the FREE record on first use.
func (s *Service) Get(ctx context.Context, userID string) (*Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	if ent, ok := s.cached(ctx, userID); ok {
		return ent, nil
	}

	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		// Shared by every waiter, so the first caller's cancellation must not
		// fail the others.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		rec, err := s.store.GetOrCreate(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		ent := FromRecord(rec)
		s.put(loadCtx, ent)
		return ent, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	out := *v.(*Entitlement)
	return &out, nil
}

// Invalidate drops the cached entitlement of userID.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cacheKey(userID)).Err(); err != nil {
		log.Warnf("entitlements: invalidate %s: %v", userID, err)
	}
}

func (s *Service) cached(ctx context.Context, userID string) (*Entitlement, bool) {
	if s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.EntitlementCacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.EntitlementCacheLookups.WithLabelValues("error").Inc()
			log.Warnf("entitlements: cache read %s: %v", userID, err)
		}
		return nil, false
	}

	var ent Entitlement
	if err := json.Unmarshal(raw, &ent); err != nil {
		metrics.EntitlementCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.EntitlementCacheLookups.WithLabelValues("hit").Inc()
	return &ent, true
}

func (s *Service) put(ctx context.Context, ent *Entitlement) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(ent)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(ent.UserID), raw, s.ttl).Err(); err != nil {
		log.Warnf("entitlements: cache write %s: %v", ent.UserID, err)
	}
}
