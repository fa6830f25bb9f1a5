package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/testsupport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var may1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) Repository {
	return NewRepository(testsupport.OpenSQLite(t, &DailySummary{}))
}

func TestIncrementCreatesThenAdds(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, repo.Increment(ctx, user, may1, Delta{DistanceKm: 1.5, CheckIns: 1}))
	require.NoError(t, repo.Increment(ctx, user, may1, Delta{DistanceKm: 0.25, Hours: 2, Visits: 1}))

	row, err := repo.Get(ctx, user, may1)
	require.NoError(t, err)
	assert.InDelta(t, 1.75, row.TotalDistanceKm, 1e-9)
	assert.InDelta(t, 2.0, row.TotalHours, 1e-9)
	assert.Equal(t, 1, row.VisitCount)
	assert.Equal(t, 1, row.CheckInCount)
	assert.Equal(t, 0, row.BusinessCount)

	// a different day is a different row
	require.NoError(t, repo.Increment(ctx, user, may1.AddDate(0, 0, 1), Delta{DistanceKm: 3}))
	row, err = repo.Get(ctx, user, may1)
	require.NoError(t, err)
	assert.InDelta(t, 1.75, row.TotalDistanceKm, 1e-9)
}

func TestConcurrentIncrementsDoNotLoseUpdates(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, repo.Increment(ctx, user, may1, Delta{DistanceKm: 10}))

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := 0.5
			if i%2 == 1 {
				d = 1.25
			}
			errs <- repo.Increment(ctx, user, may1, Delta{DistanceKm: d, Visits: 1})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	row, err := repo.Get(ctx, user, may1)
	require.NoError(t, err)
	assert.InDelta(t, 10+10*0.5+10*1.25, row.TotalDistanceKm, 1e-9)
	assert.Equal(t, writers, row.VisitCount)
}

func TestListRespectsScope(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, repo.Increment(ctx, alice, may1, Delta{DistanceKm: 1}))
	require.NoError(t, repo.Increment(ctx, bob, may1, Delta{DistanceKm: 2}))

	svc := NewService(repo, time.UTC, zap.NewNop())

	rows, err := svc.List(ctx, access.Only(alice), may1, may1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, alice, rows[0].UserID)

	rows, err = svc.List(ctx, access.Unrestricted(), may1, may1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = svc.List(ctx, access.Only(), may1, may1)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.List(ctx, access.Unrestricted(), may1, may1.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

type failingRepo struct {
	Repository
	calls int
}

func (f *failingRepo) Increment(ctx context.Context, userID uuid.UUID, day time.Time, delta Delta) error {
	f.calls++
	return errors.New("connection reset")
}

func TestServiceIncrementSwallowsFailures(t *testing.T) {
	repo := &failingRepo{}
	svc := NewService(repo, time.UTC, zap.NewNop())

	assert.NotPanics(t, func() {
		svc.Increment(context.Background(), uuid.New(), time.Now(), Delta{DistanceKm: 1})
	})
	assert.Equal(t, 1, repo.calls)

	svc.Increment(context.Background(), uuid.New(), time.Now(), Delta{})
	assert.Equal(t, 1, repo.calls, "zero deltas are not written")
}

func TestDayOf(t *testing.T) {
	late := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, may1, DayOf(late, time.UTC))

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, may1.AddDate(0, 0, 1), DayOf(late, tokyo))
}
