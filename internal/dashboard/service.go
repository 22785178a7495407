package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"paflow/internal/paf/models"
	"paflow/pkg/domain"
	dErrors "paflow/pkg/domain-errors"
	"paflow/pkg/requestcontext"
)

// Stats is the licensee dashboard snapshot: PAF counts per status plus how
// many active PAFs enter their renewal window within 30 days.
type Stats struct {
	ScopeID        int64                 `json:"scope_id"`
	Total          int                   `json:"total"`
	ByStatus       map[models.Status]int `json:"by_status"`
	RenewalDueSoon int                   `json:"renewal_due_soon"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

// Counter is the PAF store surface the dashboard needs.
type Counter interface {
	CountByStatus(ctx context.Context, scopeID int64) (map[models.Status]int, error)
	CountRenewalDue(ctx context.Context, scopeID int64, deadline time.Time) (int, error)
}

// Cache is the subset of the redis client the dashboard uses. Nil-able so
// deployments without Redis fall back to computing on every request.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const renewalLookahead = 30 * 24 * time.Hour

// Service computes dashboard statistics with a short-lived Redis cache in
// front of the counting queries.
type Service struct {
	counter Counter
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

func NewService(counter Counter, cache Cache, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{counter: counter, cache: cache, ttl: ttl, logger: logger, metrics: metrics}
}

// Stats returns the snapshot for the calling administrator's scope. Cached
// snapshots may lag writes by up to the TTL.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "administrator access is required")
	}

	key := cacheKey(actor.ScopeID)
	if cached := s.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	stats, err := s.compute(ctx, actor.ScopeID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, stats)
	return stats, nil
}

func (s *Service) compute(ctx context.Context, scopeID int64) (*Stats, error) {
	byStatus, err := s.counter.CountByStatus(ctx, scopeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count PAFs")
	}
	now := requestcontext.Now(ctx)
	dueSoon, err := s.counter.CountRenewalDue(ctx, scopeID, now.Add(renewalLookahead))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count renewals due")
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &Stats{
		ScopeID:        scopeID,
		Total:          total,
		ByStatus:       byStatus,
		RenewalDueSoon: dueSoon,
		GeneratedAt:    now,
	}, nil
}

func (s *Service) fromCache(ctx context.Context, key string) *Stats {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WarnContext(ctx, "stats cache read failed", "error", err)
		}
		s.metrics.RecordCacheMiss()
		return nil
	}
	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		s.logger.WarnContext(ctx, "stats cache entry corrupt", "error", err)
		s.metrics.RecordCacheMiss()
		return nil
	}
	s.metrics.RecordCacheHit()
	return &stats
}

func (s *Service) store(ctx context.Context, key string, stats *Stats) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "stats cache write failed", "error", err)
	}
}

func cacheKey(scopeID int64) string {
	return fmt.Sprintf("paflow:stats:scope:%d", scopeID)
}
