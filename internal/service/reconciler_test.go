package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

var reconcileNow = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestReconciler(repo *mockContestRepository, events EventPublisher) *Reconciler {
	r := NewReconciler(repo, events, zap.NewNop())
	r.now = func() time.Time { return reconcileNow }
	return r
}

func cfContest(id, canonical string, status models.Status, start time.Time) *models.Contest {
	return models.NewContest(models.PlatformCodeforces, canonical, id, "Codeforces Round "+id, start, 7200, status)
}

func notFound() error {
	return db.WrapError(pgx.ErrNoRows, "find contest by identity")
}

func TestReconciler_ReconcileUpcoming(t *testing.T) {
	ctx := context.Background()
	start := reconcileNow.Add(24 * time.Hour)

	t.Run("inserts absent contest and publishes discovery", func(t *testing.T) {
		repo := new(mockContestRepository)
		events := &recordingPublisher{}
		rec := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "2060").Return(nil, db.ErrNotFound)
		repo.On("InsertIfAbsent", ctx, rec).Return(true, nil)

		res := newTestReconciler(repo, events).ReconcileUpcoming(ctx, models.PlatformCodeforces, []*models.Contest{rec})

		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, []string{EventContestDiscovered}, events.types())
		repo.AssertExpectations(t)
	})

	t.Run("unchanged contest performs no writes", func(t *testing.T) {
		repo := new(mockContestRepository)
		stored := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start)
		rec := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "2060").Return(stored, nil)

		res := newTestReconciler(repo, nil).ReconcileUpcoming(ctx, models.PlatformCodeforces, []*models.Contest{rec})

		assert.Equal(t, ReconcileResult{}, res)
		assert.Equal(t, stored.ID, rec.ID)
		repo.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "RefreshSchedule", mock.Anything, mock.Anything)
	})

	t.Run("rescheduled upcoming contest is refreshed", func(t *testing.T) {
		repo := new(mockContestRepository)
		stored := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start)
		rec := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start.Add(time.Hour))

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "2060").Return(stored, nil)
		repo.On("RefreshSchedule", ctx, mock.MatchedBy(func(c *models.Contest) bool {
			return c.ID == stored.ID && c.StartTime.Equal(start.Add(time.Hour))
		})).Return(true, nil)

		res := newTestReconciler(repo, nil).ReconcileUpcoming(ctx, models.PlatformCodeforces, []*models.Contest{rec})

		assert.Equal(t, 1, res.Refreshed)
		repo.AssertExpectations(t)
	})

	t.Run("contest already past is left alone", func(t *testing.T) {
		repo := new(mockContestRepository)
		stored := cfContest("2060", "codeforces-round-998-div-3", models.StatusPast, start.Add(-48*time.Hour))
		rec := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "2060").Return(stored, nil)

		res := newTestReconciler(repo, nil).ReconcileUpcoming(ctx, models.PlatformCodeforces, []*models.Contest{rec})

		assert.Equal(t, ReconcileResult{}, res)
		repo.AssertNotCalled(t, "RefreshSchedule", mock.Anything, mock.Anything)
	})

	t.Run("lost insert race is skipped", func(t *testing.T) {
		repo := new(mockContestRepository)
		events := &recordingPublisher{}
		rec := cfContest("2060", "codeforces-round-998-div-3", models.StatusUpcoming, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "2060").Return(nil, db.ErrNotFound)
		repo.On("InsertIfAbsent", ctx, rec).Return(false, nil)

		res := newTestReconciler(repo, events).ReconcileUpcoming(ctx, models.PlatformCodeforces, []*models.Contest{rec})

		assert.Equal(t, 0, res.Inserted)
		assert.Equal(t, 1, res.Skipped)
		assert.Empty(t, events.types())
	})

	t.Run("one failing record does not stop the batch", func(t *testing.T) {
		repo := new(mockContestRepository)
		bad := cfContest("1", "codeforces-round-1", models.StatusUpcoming, start)
		good := cfContest("2", "codeforces-round-2", models.StatusUpcoming, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "1").Return(nil, errors.New("connection reset"))
		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "2").Return(nil, db.ErrNotFound)
		repo.On("InsertIfAbsent", ctx, good).Return(true, nil)

		res := newTestReconciler(repo, nil).ReconcileUpcoming(ctx, models.PlatformCodeforces, []*models.Contest{bad, good})

		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, 1, res.Skipped)
		repo.AssertExpectations(t)
	})
}

func TestReconciler_ReconcileOngoing(t *testing.T) {
	ctx := context.Background()
	start := reconcileNow.Add(-30 * time.Minute)

	t.Run("empty in-progress set closes every ongoing contest of the platform", func(t *testing.T) {
		repo := new(mockContestRepository)

		repo.On("CloseOngoing", ctx, models.PlatformLeetCode, []string{}).Return(int64(2), nil)
		repo.On("CloseExpiredUpcoming", ctx, models.PlatformLeetCode, reconcileNow).Return(int64(0), nil)

		res := newTestReconciler(repo, nil).ReconcileOngoing(ctx, models.PlatformLeetCode, nil)

		assert.Equal(t, int64(2), res.Closed)
		repo.AssertExpectations(t)
	})

	t.Run("inserts absent, advances upcoming, closes the rest", func(t *testing.T) {
		repo := new(mockContestRepository)
		events := &recordingPublisher{}

		fresh := cfContest("10", "codeforces-round-10", models.StatusOngoing, start)
		known := cfContest("11", "codeforces-round-11", models.StatusOngoing, start)
		storedKnown := cfContest("11", "codeforces-round-11", models.StatusUpcoming, start)
		running := cfContest("12", "codeforces-round-12", models.StatusOngoing, start)
		storedRunning := cfContest("12", "codeforces-round-12", models.StatusOngoing, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "10").Return(nil, db.ErrNotFound)
		repo.On("InsertIfAbsent", ctx, fresh).Return(true, nil)
		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "11").Return(storedKnown, nil)
		repo.On("AdvanceStatus", ctx, storedKnown.ID, models.StatusOngoing).Return(true, nil)
		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "12").Return(storedRunning, nil)
		repo.On("CloseOngoing", ctx, models.PlatformCodeforces, []string{"10", "11", "12"}).Return(int64(1), nil)
		repo.On("CloseExpiredUpcoming", ctx, models.PlatformCodeforces, reconcileNow).Return(int64(1), nil)

		res := newTestReconciler(repo, events).ReconcileOngoing(ctx, models.PlatformCodeforces, []*models.Contest{fresh, known, running})

		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, 1, res.Advanced)
		assert.Equal(t, int64(2), res.Closed)
		assert.Equal(t, models.StatusOngoing, fresh.Status)
		assert.ElementsMatch(t, []string{EventContestDiscovered, EventContestStatusChanged}, events.types())
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "AdvanceStatus", mock.Anything, storedRunning.ID, mock.Anything)
	})

	t.Run("past contest never regresses", func(t *testing.T) {
		repo := new(mockContestRepository)
		rec := cfContest("20", "codeforces-round-20", models.StatusOngoing, start)
		stored := cfContest("20", "codeforces-round-20", models.StatusPast, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "20").Return(stored, nil)
		repo.On("CloseOngoing", ctx, models.PlatformCodeforces, []string{"20"}).Return(int64(0), nil)
		repo.On("CloseExpiredUpcoming", ctx, models.PlatformCodeforces, reconcileNow).Return(int64(0), nil)

		res := newTestReconciler(repo, nil).ReconcileOngoing(ctx, models.PlatformCodeforces, []*models.Contest{rec})

		assert.Equal(t, ReconcileResult{}, res)
		repo.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("close failures are logged, not returned", func(t *testing.T) {
		repo := new(mockContestRepository)

		repo.On("CloseOngoing", ctx, models.PlatformCodeChef, []string{}).Return(int64(0), errors.New("db down"))
		repo.On("CloseExpiredUpcoming", ctx, models.PlatformCodeChef, reconcileNow).Return(int64(0), errors.New("db down"))

		res := newTestReconciler(repo, nil).ReconcileOngoing(ctx, models.PlatformCodeChef, []*models.Contest{})
		assert.Zero(t, res.Closed)
	})
}

func TestReconciler_ReconcileFinished(t *testing.T) {
	ctx := context.Background()
	start := reconcileNow.Add(-72 * time.Hour)

	t.Run("inserts absent contest as past", func(t *testing.T) {
		repo := new(mockContestRepository)
		rec := cfContest("30", "codeforces-round-30", models.StatusOngoing, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "30").Return(nil, notFound())
		repo.On("InsertIfAbsent", ctx, rec).Return(true, nil)

		inserted, err := newTestReconciler(repo, nil).ReconcileFinished(ctx, rec)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, models.StatusPast, rec.Status)
	})

	t.Run("existing contest is not written", func(t *testing.T) {
		repo := new(mockContestRepository)
		rec := cfContest("30", "codeforces-round-30", models.StatusPast, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "30").Return(rec, nil)

		inserted, err := newTestReconciler(repo, nil).ReconcileFinished(ctx, rec)
		require.NoError(t, err)
		assert.False(t, inserted)
		repo.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
	})

	t.Run("lookup failure is returned", func(t *testing.T) {
		repo := new(mockContestRepository)
		rec := cfContest("30", "codeforces-round-30", models.StatusPast, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "30").Return(nil, errors.New("timeout"))

		_, err := newTestReconciler(repo, nil).ReconcileFinished(ctx, rec)
		assert.Error(t, err)
	})

	t.Run("lost race reports conflict", func(t *testing.T) {
		repo := new(mockContestRepository)
		rec := cfContest("30", "codeforces-round-30", models.StatusPast, start)

		repo.On("FindByIdentity", ctx, models.PlatformCodeforces, "30").Return(nil, db.ErrNotFound)
		repo.On("InsertIfAbsent", ctx, rec).Return(false, nil)

		_, err := newTestReconciler(repo, nil).ReconcileFinished(ctx, rec)
		assert.ErrorIs(t, err, ErrReconciliationConflict)
	})
}
