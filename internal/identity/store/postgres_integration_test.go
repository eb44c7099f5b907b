//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"visitid/internal/identity/models"
	"visitid/internal/identity/store"
	"visitid/pkg/platform/sentinel"
	"visitid/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "identities")
	s.Require().NoError(err)
}

func newVisitor() *models.Identity {
	return models.NewVisitor(uuid.NewString(), "10.0.0.1", time.Now().UTC())
}

func (s *PostgresStoreSuite) TestInsertAndFind() {
	ctx := context.Background()
	rec := newVisitor()

	s.Require().NoError(s.store.Insert(ctx, rec))
	s.NotZero(rec.ID)

	found, err := s.store.FindByVisitorToken(ctx, rec.VisitorToken)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
	s.Equal(models.RoleVisitor, found.Role)
	s.Equal(models.StatusActive, found.Status)
}

func (s *PostgresStoreSuite) TestFindUnknownToken() {
	_, err := s.store.FindByVisitorToken(context.Background(), "no-such-token")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateTokenInsert() {
	ctx := context.Background()
	rec := newVisitor()
	s.Require().NoError(s.store.Insert(ctx, rec))

	dup := models.NewVisitor(rec.VisitorToken, "10.0.0.2", time.Now().UTC())
	err := s.store.Insert(ctx, dup)

	var conflict *store.ConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal(store.AttrVisitorToken, conflict.Attr)
}

func (s *PostgresStoreSuite) TestEmptyValuesDoNotConflict() {
	ctx := context.Background()

	// Two visitors without handle or phone must coexist.
	s.Require().NoError(s.store.Insert(ctx, newVisitor()))
	s.Require().NoError(s.store.Insert(ctx, newVisitor()))

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *PostgresStoreSuite) TestCheckUnique() {
	ctx := context.Background()
	now := time.Now().UTC()
	rec := models.NewRegistered(uuid.NewString(), models.RegistrationAttrs{
		UserHandle:       "taken1",
		DisplayName:      "Taken",
		Phone:            "13812345678",
		CredentialSecret: "s3cretpass",
	}, "10.0.0.1", now)
	s.Require().NoError(s.store.Insert(ctx, rec))

	s.Run("free value passes", func() {
		s.NoError(s.store.CheckUnique(ctx, store.AttrUserHandle, "someoneelse", 0))
	})

	s.Run("taken value conflicts", func() {
		err := s.store.CheckUnique(ctx, store.AttrUserHandle, "taken1", 0)
		var conflict *store.ConflictError
		s.Require().ErrorAs(err, &conflict)
		s.Equal(store.AttrUserHandle, conflict.Attr)
	})

	s.Run("own record is excluded", func() {
		s.NoError(s.store.CheckUnique(ctx, store.AttrPhone, "13812345678", rec.ID))
	})
}

func (s *PostgresStoreSuite) TestUpdateByID() {
	ctx := context.Background()
	rec := newVisitor()
	s.Require().NoError(s.store.Insert(ctx, rec))

	rec.ApplyRegistration(models.RegistrationAttrs{
		UserHandle:       "alice123",
		DisplayName:      "Alice",
		Phone:            "13812345678",
		CredentialSecret: "s3cretpass",
	}, "10.0.0.9", time.Now().UTC())
	s.Require().NoError(s.store.UpdateByID(ctx, rec))

	found, err := s.store.FindByVisitorToken(ctx, rec.VisitorToken)
	s.Require().NoError(err)
	s.Equal("alice123", found.UserHandle)
	s.Equal(models.RoleUser, found.Role)
	s.Equal("10.0.0.9", found.LastIP)
}

func (s *PostgresStoreSuite) TestUpdateUnknownID() {
	rec := newVisitor()
	rec.ID = 999999
	err := s.store.UpdateByID(context.Background(), rec)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentInsertSamePhone verifies that concurrent registrations
// with the same phone produce exactly one winner.
func (s *PostgresStoreSuite) TestConcurrentInsertSamePhone() {
	ctx := context.Background()
	const goroutines = 50
	phone := "13912345678"

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			rec := models.NewRegistered(uuid.NewString(), models.RegistrationAttrs{
				UserHandle:       uuid.NewString()[:12],
				DisplayName:      "Racer",
				Phone:            phone,
				CredentialSecret: "s3cretpass",
			}, "10.0.0.1", time.Now().UTC())

			err := s.store.Insert(ctx, rec)
			if err == nil {
				successCount.Add(1)
				return
			}
			var conflict *store.ConflictError
			if errors.As(err, &conflict) && conflict.Attr == store.AttrPhone {
				conflictCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one insert should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get a phone conflict")
}
