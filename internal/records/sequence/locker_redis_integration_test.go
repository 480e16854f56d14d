//go:build integration

package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"oncocentre/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLockerSuite(t *testing.T) {
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupTest() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestExclusiveUntilUnlocked() {
	l := NewRedisLocker(s.redis.Client, 5*time.Second)
	unlock, err := l.Lock(context.Background(), "ONCOCENTRE_2025_")
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "ONCOCENTRE_2025_")
	s.ErrorIs(err, context.DeadlineExceeded)

	unlock()
	again, err := l.Lock(context.Background(), "ONCOCENTRE_2025_")
	s.Require().NoError(err)
	again()
}

func (s *RedisLockerSuite) TestExpiredHolderCannotReleaseNewLock() {
	l := NewRedisLocker(s.redis.Client, 50*time.Millisecond)
	stale, err := l.Lock(context.Background(), "scope")
	s.Require().NoError(err)
	time.Sleep(100 * time.Millisecond)

	fresh := NewRedisLocker(s.redis.Client, 5*time.Second)
	unlock, err := fresh.Lock(context.Background(), "scope")
	s.Require().NoError(err)
	defer unlock()

	stale()
	exists, err := s.redis.Client.Exists(context.Background(), lockKeyPrefix+"scope").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)
}

func (s *RedisLockerSuite) TestGeneratorsInDifferentProcessesShareTheLock() {
	ids := newIDSet()
	// separate lockers model separate processes sharing one Redis
	gens := []*Generator{
		NewGenerator(ids, NewRedisLocker(s.redis.Client, 5*time.Second), "ONCOCENTRE"),
		NewGenerator(ids, NewRedisLocker(s.redis.Client, 5*time.Second), "ONCOCENTRE"),
	}

	var mu sync.Mutex
	var issued []string
	var eg errgroup.Group
	for i := range 20 {
		g := gens[i%2]
		eg.Go(func() error {
			id, err := g.Issue(context.Background(), 2025, ids.insert)
			if err != nil {
				return err
			}
			mu.Lock()
			issued = append(issued, id)
			mu.Unlock()
			return nil
		})
	}
	s.Require().NoError(eg.Wait())
	sort.Strings(issued)
	s.Equal("ONCOCENTRE_2025_00001", issued[0])
	s.Equal("ONCOCENTRE_2025_00020", issued[19])
}
