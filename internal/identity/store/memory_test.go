package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"visitid/internal/identity/models"
	"visitid/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func newVisitor(token string) *models.Identity {
	return models.NewVisitor(token, "192.0.2.1", time.Now())
}

func (s *InMemoryStoreSuite) TestInsertAssignsIDAndIndexesToken() {
	ctx := context.Background()
	rec := newVisitor("tok-1")
	s.Require().NoError(s.store.Insert(ctx, rec))
	s.NotZero(rec.ID)

	found, err := s.store.FindByVisitorToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
	s.Equal(models.RoleVisitor, found.Role)
}

func (s *InMemoryStoreSuite) TestFindMissReturnsNotFound() {
	_, err := s.store.FindByVisitorToken(context.Background(), "no-such-token")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestCheckUnique() {
	ctx := context.Background()
	rec := newVisitor("tok-1")
	rec.UserHandle = "alice1"
	rec.Phone = "13800000001"
	s.Require().NoError(s.store.Insert(ctx, rec))

	s.Run("empty value is satisfied", func() {
		s.NoError(s.store.CheckUnique(ctx, AttrPhone, "", 0))
	})

	s.Run("taken value conflicts", func() {
		err := s.store.CheckUnique(ctx, AttrUserHandle, "alice1", 0)
		var conflict *ConflictError
		s.Require().ErrorAs(err, &conflict)
		s.Equal(AttrUserHandle, conflict.Attr)
	})

	s.Run("own record is excluded", func() {
		s.NoError(s.store.CheckUnique(ctx, AttrUserHandle, "alice1", rec.ID))
		s.NoError(s.store.CheckUnique(ctx, AttrVisitorToken, "tok-1", rec.ID))
	})

	s.Run("free value passes", func() {
		s.NoError(s.store.CheckUnique(ctx, AttrPhone, "13800000002", 0))
	})
}

func (s *InMemoryStoreSuite) TestInsertRejectsDuplicateToken() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, newVisitor("tok-1")))

	err := s.store.Insert(ctx, newVisitor("tok-1"))
	var conflict *ConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal(AttrVisitorToken, conflict.Attr)
}

func (s *InMemoryStoreSuite) TestUpdateReindexesChangedAttributes() {
	ctx := context.Background()
	rec := newVisitor("tok-1")
	s.Require().NoError(s.store.Insert(ctx, rec))

	rec.UserHandle = "bob01"
	rec.Phone = "13800000000"
	rec.Role = models.RoleUser
	s.Require().NoError(s.store.UpdateByID(ctx, rec))

	found, err := s.store.FindByVisitorToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal("bob01", found.UserHandle)
	s.Equal(models.RoleUser, found.Role)

	// The handle is now taken by tok-1's record.
	other := newVisitor("tok-2")
	other.UserHandle = "bob01"
	var conflict *ConflictError
	s.Require().ErrorAs(s.store.Insert(ctx, other), &conflict)
	s.Equal(AttrUserHandle, conflict.Attr)
}

func (s *InMemoryStoreSuite) TestUpdateUnknownIDReturnsNotFound() {
	rec := newVisitor("tok-1")
	rec.ID = 404
	s.Require().ErrorIs(s.store.UpdateByID(context.Background(), rec), sentinel.ErrNotFound)
}

// TestConcurrentInsertSamePhone verifies the store itself is the last-line
// defense: concurrent writers racing past CheckUnique still produce exactly
// one winner.
func (s *InMemoryStoreSuite) TestConcurrentInsertSamePhone() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := newVisitor(uuid.NewString())
			rec.UserHandle = uuid.NewString()[:8]
			rec.Phone = "13900000000"
			err := s.store.Insert(ctx, rec)
			if err == nil {
				successCount.Add(1)
				return
			}
			var conflict *ConflictError
			if s.ErrorAs(err, &conflict) {
				s.Equal(AttrPhone, conflict.Attr)
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one insert should win")
	s.Equal(int32(goroutines-1), conflictCount.Load())

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}
