//go:build integration

package store

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"oncocentre/internal/records/models"
	"oncocentre/pkg/testutil/containers"
)

func TestPostgresStoreSuite(t *testing.T) {
	s := &StoreSuite{}
	s.newStore = func() recordStore {
		pg := containers.GetManager().GetPostgres(s.T())
		pg.Migrate(s.T(), &models.ProtectedRecord{})
		pg.Truncate(s.T(), "protected_records")
		return NewGorm(pg.DB)
	}
	suite.Run(t, s)
}
