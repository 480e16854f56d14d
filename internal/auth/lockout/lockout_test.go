package lockout

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"oncocentre/internal/auth/metrics"
	"oncocentre/internal/storage"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit/publisher"
	auditmemory "oncocentre/pkg/platform/audit/store/memory"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

func TestRecordRegisterFailure(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	r := &Record{Username: "alice"}

	assert.False(t, r.RegisterFailure(now, time.Minute, 3))
	assert.False(t, r.RegisterFailure(now.Add(30*time.Second), time.Minute, 3))
	assert.Equal(t, 2, r.FailureCount)

	assert.False(t, r.RegisterFailure(now.Add(2*time.Minute), time.Minute, 3), "a stale count restarts")
	assert.Equal(t, 1, r.FailureCount)

	r.FailureCount = 3
	r.LockUntil(now.Add(3 * time.Minute))
	assert.True(t, r.IsLockedAt(now.Add(2*time.Minute)))
	assert.False(t, r.IsLockedAt(now.Add(3*time.Minute)))

	live := *r
	assert.True(t, live.RegisterFailure(now.Add(150*time.Second), time.Hour, 3), "failures during a live lock keep counting")
	assert.Equal(t, 4, live.FailureCount)
	assert.NotNil(t, live.LockedUntil)

	assert.False(t, r.RegisterFailure(now.Add(4*time.Minute), time.Hour, 3), "an expired lock restarts the count")
	assert.Nil(t, r.LockedUntil)
	assert.Equal(t, 1, r.FailureCount)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate(), "disabled needs nothing")
	assert.NoError(t, Config{Enabled: true, MaxFailures: 5, Window: time.Minute, Duration: time.Minute}.Validate())
	assert.Error(t, Config{Enabled: true, Window: time.Minute, Duration: time.Minute}.Validate())
	assert.Error(t, Config{Enabled: true, MaxFailures: 5, Duration: time.Minute}.Validate())
}

type GuardSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
	now      time.Time
	audit    *auditmemory.InMemoryStore
	metrics  *metrics.Metrics
	guard    *Guard
}

func TestGuardInMemory(t *testing.T) {
	suite.Run(t, &GuardSuite{newStore: func() Store { return NewInMemory() }})
}

func TestGuardSQLite(t *testing.T) {
	s := &GuardSuite{}
	s.newStore = func() Store {
		cfg := storage.Config{Type: storage.DatabaseTypeSQLite}
		cfg.ApplyDefaults(filepath.Join(s.T().TempDir(), "db"))
		db, err := storage.Open(cfg, &Record{})
		s.Require().NoError(err)
		s.T().Cleanup(func() { _ = storage.Close(db) })
		return NewGorm(db)
	}
	suite.Run(t, s)
}

func (s *GuardSuite) SetupTest() {
	s.store = s.newStore()
	s.now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.guard = New(s.store, Config{Enabled: true, MaxFailures: 3, Window: 15 * time.Minute, Duration: 15 * time.Minute},
		WithMetrics(s.metrics),
		WithAuditPublisher(publisher.NewPublisher(s.audit)))
}

func (s *GuardSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(d))
}

func (s *GuardSuite) TestLocksAtLimit() {
	s.NoError(s.guard.Check(s.ctx, "alice"))
	for i := range 3 {
		s.Require().NoError(s.guard.RecordFailure(s.at(time.Duration(i)*time.Minute), "alice"))
	}

	err := s.guard.Check(s.at(3*time.Minute), "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeLockedOut))
	s.NoError(s.guard.Check(s.at(3*time.Minute), "bob"), "other usernames are unaffected")
	s.NoError(s.guard.Check(s.at(18*time.Minute), "alice"), "the lock lasts Duration from the last failure")

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Lockouts))
	s.Contains(s.audit.Actions(), "login_locked_out")
}

func (s *GuardSuite) TestFailuresOutsideWindowDoNotAccumulate() {
	for i := range 3 {
		s.Require().NoError(s.guard.RecordFailure(s.at(time.Duration(i)*20*time.Minute), "alice"))
	}
	s.NoError(s.guard.Check(s.at(41*time.Minute), "alice"))

	rec, err := s.guard.Status(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(1, rec.FailureCount)
}

func (s *GuardSuite) TestResetAndUnlock() {
	for range 3 {
		s.Require().NoError(s.guard.RecordFailure(s.ctx, " alice "))
	}
	s.Error(s.guard.Check(s.ctx, "alice"), "usernames are trimmed")

	cleared, err := s.guard.Unlock(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(cleared)
	s.NoError(s.guard.Check(s.ctx, "alice"))
	s.Contains(s.audit.Actions(), "login_lockout_cleared")

	cleared, err = s.guard.Unlock(s.ctx, "alice")
	s.Require().NoError(err)
	s.False(cleared)

	s.Require().NoError(s.guard.RecordFailure(s.ctx, "alice"))
	s.Require().NoError(s.guard.Reset(s.ctx, "alice"))
	_, err = s.store.Get(s.ctx, "alice")
	s.ErrorIs(err, sentinel.ErrNotFound)

	rec, err := s.guard.Status(s.ctx, "alice")
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *GuardSuite) TestDisabledDoesNothing() {
	g := New(s.store, Config{})
	for range 10 {
		s.Require().NoError(g.RecordFailure(s.ctx, "alice"))
	}
	s.NoError(g.Check(s.ctx, "alice"))
	_, err := s.store.Get(s.ctx, "alice")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
