package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
)

func newTestQuery(contests *mockContestRepository, solutions *mockSolutionRepository, cache *mockUpcomingCache) *ContestQuery {
	q := NewContestQuery(contests, solutions, cache)
	q.now = func() time.Time { return reconcileNow }
	return q
}

func TestContestQuery_Upcoming(t *testing.T) {
	ctx := context.Background()

	cf := cfContest("2063", "codeforces-round-1000-div-2", models.StatusUpcoming, reconcileNow.Add(time.Hour))
	lc := leetContest("weekly-contest-440", models.StatusUpcoming, reconcileNow.Add(2*time.Hour))
	cached := []models.ContestView{cf.View(), lc.View()}

	t.Run("serves the cached list", func(t *testing.T) {
		cache := new(mockUpcomingCache)
		cache.On("GetCached", ctx).Return(cached)
		contests := new(mockContestRepository)

		got, err := newTestQuery(contests, nil, cache).Upcoming(ctx, UpcomingFilter{})
		require.NoError(t, err)
		assert.Equal(t, cached, got)
		contests.AssertNotCalled(t, "ListUpcoming", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("filters the cached list", func(t *testing.T) {
		cache := new(mockUpcomingCache)
		cache.On("GetCached", ctx).Return(cached)

		q := newTestQuery(new(mockContestRepository), nil, cache)

		got, err := q.Upcoming(ctx, UpcomingFilter{Platform: models.PlatformLeetCode})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "weekly-contest-440", got[0].ContestID)

		got, err = q.Upcoming(ctx, UpcomingFilter{Search: "ROUND 2063"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "codeforces-round-1000-div-2", got[0].ContestID)
	})

	t.Run("falls back to the store on a miss", func(t *testing.T) {
		cache := new(mockUpcomingCache)
		cache.On("GetCached", ctx).Return(nil)
		contests := new(mockContestRepository)
		contests.On("ListUpcoming", ctx, reconcileNow, &repository.ContestFilters{Platform: models.PlatformCodeforces}).
			Return([]*models.Contest{cf}, nil)

		got, err := newTestQuery(contests, nil, cache).Upcoming(ctx, UpcomingFilter{Platform: models.PlatformCodeforces})
		require.NoError(t, err)
		assert.Equal(t, []models.ContestView{cf.View()}, got)
	})

	t.Run("cached empty list falls back to the store", func(t *testing.T) {
		cache := new(mockUpcomingCache)
		cache.On("GetCached", ctx).Return([]models.ContestView{})
		contests := new(mockContestRepository)
		contests.On("ListUpcoming", ctx, reconcileNow, &repository.ContestFilters{}).
			Return([]*models.Contest{cf}, nil)

		got, err := newTestQuery(contests, nil, cache).Upcoming(ctx, UpcomingFilter{})
		require.NoError(t, err)
		assert.Equal(t, []models.ContestView{cf.View()}, got)
	})
}

func TestContestQuery_ByCanonicalID(t *testing.T) {
	ctx := context.Background()
	cf := cfContest("2063", "codeforces-round-1000-div-2", models.StatusUpcoming, reconcileNow.Add(time.Hour))
	past := leetContest("weekly-contest-400", models.StatusPast, reconcileNow.Add(-30*24*time.Hour))

	cache := new(mockUpcomingCache)
	cache.On("GetCached", ctx).Return([]models.ContestView{cf.View()})
	contests := new(mockContestRepository)
	contests.On("GetByCanonicalID", ctx, "weekly-contest-400").Return(past, nil)
	contests.On("GetByCanonicalID", ctx, "missing").Return(nil, db.ErrNotFound)

	q := newTestQuery(contests, nil, cache)

	got, err := q.ByCanonicalID(ctx, "codeforces-round-1000-div-2")
	require.NoError(t, err)
	assert.Equal(t, cf.View(), got)
	contests.AssertNotCalled(t, "GetByCanonicalID", ctx, "codeforces-round-1000-div-2")

	got, err = q.ByCanonicalID(ctx, "weekly-contest-400")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPast, got.Status)

	_, err = q.ByCanonicalID(ctx, "missing")
	assert.True(t, db.IsNotFound(err))
}

func TestContestQuery_Solutions(t *testing.T) {
	ctx := context.Background()
	past := leetContest("weekly-contest-400", models.StatusPast, reconcileNow.Add(-30*24*time.Hour))
	solution := models.NewSolution(past.ID, models.VideoLink{URL: "https://www.youtube.com/watch?v=abc"})

	contests := new(mockContestRepository)
	contests.On("GetByCanonicalID", ctx, "weekly-contest-400").Return(past, nil)
	solutions := new(mockSolutionRepository)
	solutions.On("GetByContestID", ctx, past.ID).Return(solution, nil)

	got, err := newTestQuery(contests, solutions, nil).Solutions(ctx, "weekly-contest-400")
	require.NoError(t, err)
	assert.Equal(t, solution, got)
}

func TestContestQuery_Vote(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	solutions := new(mockSolutionRepository)
	solutions.On("Vote", ctx, id, models.VoteUp).Return(&models.Votes{Upvotes: 4, Downvotes: 1}, nil)

	q := newTestQuery(nil, solutions, nil)

	votes, err := q.Vote(ctx, id, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, int64(4), votes.Upvotes)

	_, err = q.Vote(ctx, id, models.VoteType("sideways"))
	assert.ErrorIs(t, err, ErrInvalidVote)
	solutions.AssertNumberOfCalls(t, "Vote", 1)
}
