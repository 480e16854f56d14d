// Package lockout refuses logins for a username after repeated failed
// attempts. Counting is per attempted username, known or not, so a lockout
// never reveals whether an account exists.
package lockout

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// MaxFailures within Window locks the username for Duration.
	MaxFailures int           `mapstructure:"max_failures" yaml:"max_failures"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	Duration    time.Duration `mapstructure:"duration" yaml:"duration"`
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxFailures < 1 {
		return fmt.Errorf("auth.lockout.max_failures must be at least 1")
	}
	if c.Window <= 0 || c.Duration <= 0 {
		return fmt.Errorf("auth.lockout.window and auth.lockout.duration must be positive")
	}
	return nil
}

// Record tracks recent failures for one username.
type Record struct {
	Username      string `gorm:"primaryKey;size:80"`
	FailureCount  int    `gorm:"not null"`
	LockedUntil   *time.Time
	LastFailureAt time.Time `gorm:"not null"`
}

func (Record) TableName() string { return "login_lockouts" }

func (r *Record) IsLockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// RegisterFailure counts a failure at now. The count restarts when the
// previous failure is older than window or an earlier lock has expired.
// It reports whether limit failures have been reached.
func (r *Record) RegisterFailure(now time.Time, window time.Duration, limit int) bool {
	expiredLock := r.LockedUntil != nil && !now.Before(*r.LockedUntil)
	if r.FailureCount == 0 || now.Sub(r.LastFailureAt) > window || expiredLock {
		r.FailureCount = 0
		r.LockedUntil = nil
	}
	r.FailureCount++
	r.LastFailureAt = now
	return r.FailureCount >= limit
}

func (r *Record) LockUntil(until time.Time) {
	r.LockedUntil = &until
}
