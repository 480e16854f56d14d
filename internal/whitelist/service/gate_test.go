package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/whitelist/models"
	"oncocentre/internal/whitelist/service"
	"oncocentre/internal/whitelist/store"
	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit/publisher"
	auditmemory "oncocentre/pkg/platform/audit/store/memory"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

// flakyStore fails reads on demand.
type flakyStore struct {
	*store.InMemoryStore
	failCount bool
	failFind  bool
}

func (f *flakyStore) Count(ctx context.Context) (int, error) {
	if f.failCount {
		return 0, fmt.Errorf("count: %w", sentinel.ErrUnavailable)
	}
	return f.InMemoryStore.Count(ctx)
}

func (f *flakyStore) FindByUsername(ctx context.Context, username string) (*models.Entry, error) {
	if f.failFind {
		return nil, fmt.Errorf("find: %w", sentinel.ErrUnavailable)
	}
	return f.InMemoryStore.FindByUsername(ctx, username)
}

type GateSuite struct {
	suite.Suite
	ctx        context.Context
	store      *flakyStore
	auditStore *auditmemory.InMemoryStore
	gate       *service.Gate
	admin      *authModels.Identity
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC))
	s.store = &flakyStore{InMemoryStore: store.NewInMemory()}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.gate = service.NewGate(s.store, []string{"env-user", " other ", ""},
		service.WithAuditPublisher(publisher.NewPublisher(s.auditStore)))
	s.admin = &authModels.Identity{ID: id.NewIdentityID(), Username: "root", IsAdministrator: true, Active: true}
}

func (s *GateSuite) TestNeverPopulatedStoreUsesFallback() {
	d := s.gate.Check(s.ctx, "env-user")
	s.True(d.Allowed)
	s.Equal(service.SourceFallback, d.Source)

	d = s.gate.Check(s.ctx, "stranger")
	s.False(d.Allowed)
	s.Equal(service.SourceFallback, d.Source)

	s.True(s.gate.IsAuthorized(s.ctx, "other"), "fallback names are trimmed")
}

func (s *GateSuite) TestStoreWithNoActiveEntriesDenies() {
	_, err := s.gate.Add(s.ctx, "env-user", s.admin, "")
	s.Require().NoError(err)
	s.Require().NoError(s.gate.Remove(s.ctx, "env-user"))

	d := s.gate.Check(s.ctx, "env-user")
	s.False(d.Allowed, "a populated store supersedes the fallback even with no active entry")
	s.Equal(service.SourceStore, d.Source)
}

func (s *GateSuite) TestStoreReadFailureUsesFallback() {
	_, err := s.gate.Add(s.ctx, "alice", s.admin, "")
	s.Require().NoError(err)

	s.Run("count failure", func() {
		s.store.failCount = true
		defer func() { s.store.failCount = false }()
		d := s.gate.Check(s.ctx, "env-user")
		s.True(d.Allowed)
		s.Equal(service.SourceFallback, d.Source)
		s.False(s.gate.IsAuthorized(s.ctx, "alice"))
	})

	s.Run("lookup failure", func() {
		s.store.failFind = true
		defer func() { s.store.failFind = false }()
		d := s.gate.Check(s.ctx, "env-user")
		s.True(d.Allowed)
		s.Equal(service.SourceFallback, d.Source)
	})
}

func (s *GateSuite) TestPopulatedStoreIsExclusive() {
	_, err := s.gate.Add(s.ctx, "alice", s.admin, "ward 3")
	s.Require().NoError(err)

	s.True(s.gate.IsAuthorized(s.ctx, "alice"))
	d := s.gate.Check(s.ctx, "env-user")
	s.False(d.Allowed)
	s.Equal(service.SourceStore, d.Source)
}

func (s *GateSuite) TestAddIsIdempotent() {
	first, err := s.gate.Add(s.ctx, "alice", s.admin, "ward 3")
	s.Require().NoError(err)
	s.Equal(service.OutcomeAdded, first.Outcome)

	second, err := s.gate.Add(s.ctx, "alice", s.admin, "again")
	s.Require().NoError(err)
	s.Equal(service.OutcomeAlreadyPresent, second.Outcome)
	s.Equal(first.Entry.ID, second.Entry.ID)

	entries, err := s.gate.List(s.ctx)
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Equal("ward 3", entries[0].Note)
}

func (s *GateSuite) TestRemoveThenAddReusesEntry() {
	first, err := s.gate.Add(s.ctx, "alice", s.admin, "ward 3")
	s.Require().NoError(err)
	s.Require().NoError(s.gate.Remove(s.ctx, "alice"))
	s.False(s.gate.IsAuthorized(s.ctx, "alice"))

	other := &authModels.Identity{ID: id.NewIdentityID(), Username: "root2", IsAdministrator: true, Active: true}
	again, err := s.gate.Add(s.ctx, "alice", other, "")
	s.Require().NoError(err)
	s.Equal(service.OutcomeReactivated, again.Outcome)
	s.Equal(first.Entry.ID, again.Entry.ID)
	s.Equal("root", again.Entry.AddedByName, "original attribution is kept")
	s.Equal("ward 3", again.Entry.Note)
	s.True(s.gate.IsAuthorized(s.ctx, "alice"))

	entries, err := s.gate.List(s.ctx)
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Equal([]string{"whitelist_added", "whitelist_removed", "whitelist_reactivated"}, s.auditStore.Actions())
}

func (s *GateSuite) TestRemoveAndActivateMissing() {
	err := s.gate.Remove(s.ctx, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.gate.Add(s.ctx, "alice", s.admin, "")
	s.Require().NoError(err)
	s.Require().NoError(s.gate.Remove(s.ctx, "alice"))
	err = s.gate.Remove(s.ctx, "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "removing twice reports the entry as absent")

	_, err = s.gate.Activate(s.ctx, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	entry, err := s.gate.Activate(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(entry.Active)
}

func (s *GateSuite) TestAddValidatesUsername() {
	_, err := s.gate.Add(s.ctx, "   ", s.admin, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *GateSuite) TestConcurrentAddsKeepOneEntry() {
	var g errgroup.Group
	var mu sync.Mutex
	outcomes := map[service.Outcome]int{}
	for range 16 {
		g.Go(func() error {
			res, err := s.gate.Add(s.ctx, "alice", s.admin, "")
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(1, outcomes[service.OutcomeAdded])
	s.Equal(15, outcomes[service.OutcomeAlreadyPresent])

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *GateSuite) TestMigrateFromFallback() {
	_, err := s.gate.Add(s.ctx, "other", s.admin, "")
	s.Require().NoError(err)
	s.Require().NoError(s.gate.Remove(s.ctx, "other"))

	added, err := s.gate.MigrateFromFallback(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Equal(1, added, "inactive entries count as present")

	added, err = s.gate.MigrateFromFallback(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Zero(added)

	entries, err := s.gate.List(s.ctx)
	s.Require().NoError(err)
	s.Len(entries, 2)
	s.True(s.gate.IsAuthorized(s.ctx, "env-user"))
	s.False(s.gate.IsAuthorized(s.ctx, "other"))
}

func (s *GateSuite) TestMigrateStopsOnStoreFailure() {
	s.store.failFind = true
	_, err := s.gate.MigrateFromFallback(s.ctx, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.True(errors.Is(err, sentinel.ErrUnavailable))
}

func (s *GateSuite) TestRefreshFallback() {
	s.False(s.gate.IsAuthorized(s.ctx, "newcomer"))
	s.gate.RefreshFallback([]string{"newcomer", "newcomer"})
	s.True(s.gate.IsAuthorized(s.ctx, "newcomer"))
	s.False(s.gate.IsAuthorized(s.ctx, "env-user"))
	s.Equal([]string{"newcomer"}, s.gate.FallbackUsernames())
}

func (s *GateSuite) TestRefreshWhileChecking() {
	var g errgroup.Group
	for i := range 50 {
		g.Go(func() error {
			if i%2 == 0 {
				s.gate.RefreshFallback([]string{"env-user", fmt.Sprintf("user-%d", i)})
				return nil
			}
			if !s.gate.IsAuthorized(s.ctx, "env-user") {
				return errors.New("env-user lost during refresh")
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
}
