//go:build integration

package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"praman/internal/vc/models"
	"praman/internal/vc/store"
	"praman/pkg/platform/sentinel"
	"praman/pkg/testutil"
	"praman/pkg/testutil/containers"
)

// contractSuite runs the revocation store contract against one backend.
type contractSuite struct {
	suite.Suite
	newStore func() store.Store
	reset    func(ctx context.Context) error
	store    store.Store
}

func (s *contractSuite) SetupTest() {
	s.Require().NoError(s.reset(context.Background()))
	s.store = s.newStore()
}

func (s *contractSuite) TestSaveAndFindRoundTrip() {
	ctx := context.Background()
	rev := models.Revocation{
		CredentialID: models.NewCredentialID(),
		IssuerDID:    "did:bharat:" + strings.Repeat("ab", 32),
		Reason:       "key compromise",
		RevokedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(s.store.Save(ctx, rev))

	found, err := s.store.FindByID(ctx, rev.CredentialID)
	s.Require().NoError(err)
	s.Equal(rev.CredentialID, found.CredentialID)
	s.Equal(rev.IssuerDID, found.IssuerDID)
	s.Equal(rev.Reason, found.Reason)
	s.WithinDuration(rev.RevokedAt, found.RevokedAt, time.Millisecond)
}

func (s *contractSuite) TestSecondRevocationConflicts() {
	ctx := context.Background()
	rev := models.Revocation{CredentialID: models.NewCredentialID(), RevokedAt: time.Now()}
	s.Require().NoError(s.store.Save(ctx, rev))
	s.ErrorIs(s.store.Save(ctx, rev), sentinel.ErrAlreadyUsed)
}

// Exactly one of many concurrent revocations of the same id succeeds.
func (s *contractSuite) TestConcurrentRevokeSingleWinner() {
	id := models.NewCredentialID()
	const goroutines = 30

	result := testutil.RunConcurrentCtx(context.Background(), goroutines, func(ctx context.Context, _ int) error {
		return s.store.Save(ctx, models.Revocation{CredentialID: id, RevokedAt: time.Now()})
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(goroutines-1), result.Conflicts)
}

func (s *contractSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), models.NewCredentialID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &contractSuite{
		newStore: func() store.Store { return store.NewPostgres(pg.DB) },
		reset: func(ctx context.Context) error {
			return pg.TruncateTables(ctx, "credential_revocations")
		},
	})
}

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := containers.GetManager().GetMongo(t).Database("praman_test")
	suite.Run(t, &contractSuite{
		newStore: func() store.Store { return store.NewMongo(db) },
		reset: func(ctx context.Context) error {
			return db.Collection(store.RevocationsCollection).Drop(ctx)
		},
	})
}
