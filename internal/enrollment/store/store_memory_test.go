package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praman/internal/enrollment/models"
	"praman/pkg/platform/sentinel"
	"praman/pkg/requestcontext"
	"praman/pkg/testutil"
)

func testSession(userID string) models.Session {
	return models.Session{
		UserID:    userID,
		Challenge: "Y2hhbGxlbmdl",
		CreatedAt: testutil.FixedTime,
		ExpiresAt: testutil.FixedTime.Add(5 * time.Minute),
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedTime)
	st := NewInMemoryStore()

	_, err := st.Find(ctx, "user-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, st.Create(ctx, testSession("user-1")))
	got, err := st.Find(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, testSession("user-1"), got)

	replaced := testSession("user-1")
	replaced.Challenge = "bmV3"
	assert.ErrorIs(t, st.Create(ctx, replaced), sentinel.ErrAlreadyUsed)

	consumed, err := st.Consume(ctx, "user-1", "Y2hhbGxlbmdl")
	require.NoError(t, err)
	assert.Equal(t, "Y2hhbGxlbmdl", consumed.Challenge)

	_, err = st.Consume(ctx, "user-1", "Y2hhbGxlbmdl")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = st.Find(ctx, "user-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ReplacesExpiredSession(t *testing.T) {
	st := NewInMemoryStore()
	require.NoError(t, st.Create(requestcontext.WithTime(context.Background(), testutil.FixedTime), testSession("user-1")))

	late := requestcontext.WithTime(context.Background(), testutil.FixedTime.Add(5*time.Minute))
	replaced := testSession("user-1")
	replaced.Challenge = "bmV3"
	require.NoError(t, st.Create(late, replaced))

	got, err := st.Find(late, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "bmV3", got.Challenge)
}

func TestInMemoryStore_ConsumeKeepsSessionWithOtherChallenge(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedTime)
	st := NewInMemoryStore()
	require.NoError(t, st.Create(ctx, testSession("user-1")))

	_, err := st.Consume(ctx, "user-1", "c3RhbGU")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	got, err := st.Find(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Y2hhbGxlbmdl", got.Challenge)
}

func TestInMemoryStore_ConcurrentConsume(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedTime)
	st := NewInMemoryStore()
	require.NoError(t, st.Create(ctx, testSession("user-1")))

	succeeded, errs := testutil.RunConcurrentCollect(16, func(int) error {
		_, err := st.Consume(ctx, "user-1", "Y2hhbGxlbmdl")
		return err
	})
	assert.Equal(t, int32(1), succeeded)
	for _, err := range errs {
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := testSession("user-1")
	assert.False(t, s.IsExpiredAt(testutil.FixedTime))
	assert.True(t, s.IsExpiredAt(s.ExpiresAt))
	assert.True(t, s.IsExpiredAt(s.ExpiresAt.Add(time.Second)))
}
