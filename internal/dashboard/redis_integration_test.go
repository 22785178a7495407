//go:build integration

package dashboard_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"paflow/internal/dashboard"
	"paflow/internal/paf/models"
	"paflow/pkg/domain"
	"paflow/pkg/requestcontext"
	"paflow/pkg/testutil/containers"
)

type countingCounter struct {
	calls atomic.Int32
}

func (c *countingCounter) CountByStatus(context.Context, int64) (map[models.Status]int, error) {
	c.calls.Add(1)
	return map[models.Status]int{models.StatusValidatedActive: 4}, nil
}

func (c *countingCounter) CountRenewalDue(context.Context, int64, time.Time) (int, error) {
	return 1, nil
}

type StatsCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestStatsCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StatsCacheSuite))
}

func (s *StatsCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *StatsCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *StatsCacheSuite) adminCtx() context.Context {
	admin := domain.ActorContext{ActorID: 50, Role: domain.RoleAdmin, ScopeID: 100}
	return requestcontext.WithActor(context.Background(), admin)
}

func (s *StatsCacheSuite) TestCacheShortCircuitsRecomputation() {
	counter := &countingCounter{}
	svc := dashboard.NewService(counter, s.redis.Client, time.Minute, slog.Default(), nil)

	first, err := svc.Stats(s.adminCtx())
	s.Require().NoError(err)
	s.Equal(4, first.ByStatus[models.StatusValidatedActive])
	s.Equal(int32(1), counter.calls.Load())

	second, err := svc.Stats(s.adminCtx())
	s.Require().NoError(err)
	s.Equal(first.GeneratedAt.Unix(), second.GeneratedAt.Unix(), "second call served from cache")
	s.Equal(int32(1), counter.calls.Load(), "cache hit must not recount")
}

func (s *StatsCacheSuite) TestCacheExpires() {
	counter := &countingCounter{}
	svc := dashboard.NewService(counter, s.redis.Client, 100*time.Millisecond, slog.Default(), nil)

	_, err := svc.Stats(s.adminCtx())
	s.Require().NoError(err)

	time.Sleep(150 * time.Millisecond)

	_, err = svc.Stats(s.adminCtx())
	s.Require().NoError(err)
	s.Equal(int32(2), counter.calls.Load(), "expired entry recomputes")
}
