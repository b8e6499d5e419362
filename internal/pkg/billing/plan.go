package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AskFox/internal/pkg/metrics"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
)

// ResolvePlan maps a provider plan reference onto the catalog. Unknown or
// inactive references resolve to FREE; only a storage failure is an error.
func (s *Service) ResolvePlan(ctx context.Context, provider, providerPlanRef string) (plans.ID, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPlanRef)
	if p == "" || ref == "" {
		s.planFallback(p, ref, "empty plan reference")
		return plans.Free, nil
	}

	m, err := s.repo.FindActivePlanMapping(ctx, p, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.planFallback(p, ref, "no active mapping")
			return plans.Free, nil
		}
		return "", err
	}

	def, ok := plans.Lookup(m.InternalPlan)
	if !ok {
		s.planFallback(p, ref, "mapped to unknown plan "+m.InternalPlan)
		return plans.Free, nil
	}
	return def.ID, nil
}

func (s *Service) planFallback(provider, ref, reason string) {
	metrics.PlanMappingFallbacks.WithLabelValues(provider).Inc()
	log.Warnf("billing: %s plan ref %q resolved to FREE (%s)", provider, ref, reason)
}
