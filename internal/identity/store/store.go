// Package store persists identity records. It is the sole place uniqueness
// is checked and enforced: proactively through CheckUnique, and
// authoritatively through the backing engine's unique constraints, which
// remain the final arbiter when concurrent writers race past the check.
package store

import (
	"context"
	"fmt"

	"visitid/internal/identity/models"
)

// UniqueAttr names an identity attribute covered by a uniqueness constraint.
type UniqueAttr string

const (
	AttrVisitorToken UniqueAttr = "visitorToken"
	AttrUserHandle   UniqueAttr = "userHandle"
	AttrPhone        UniqueAttr = "phone"
)

// ConflictError reports a uniqueness violation on a specific attribute,
// whether detected proactively or by the engine's constraint on commit.
type ConflictError struct {
	Attr UniqueAttr
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in use", e.Attr)
}

// Store is the repository over the identity record table. Implementations
// must honor an in-flight transaction when invoked through a StoreTx scope.
type Store interface {
	// FindByVisitorToken looks up the record bound to token. Returns
	// sentinel.ErrNotFound (wrapped) on miss; resolution treats that as an
	// expected branch, never a failure.
	FindByVisitorToken(ctx context.Context, token string) (*models.Identity, error)

	// CheckUnique verifies no other record holds value for attr. Empty
	// values are treated as satisfied. excludeID skips the caller's own
	// record so self-conflicts are not flagged; pass 0 on fresh inserts.
	CheckUnique(ctx context.Context, attr UniqueAttr, value string, excludeID int64) error

	// Insert persists a new record and assigns its surrogate ID.
	Insert(ctx context.Context, identity *models.Identity) error

	// UpdateByID overwrites the record with the given ID.
	UpdateByID(ctx context.Context, identity *models.Identity) error

	// Count returns the number of identity records.
	Count(ctx context.Context) (int, error)
}
