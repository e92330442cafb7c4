package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
)

// ErrInvalidVote is returned for a vote type other than upvote or downvote.
var ErrInvalidVote = errors.New("invalid vote type")

// UpcomingFilter narrows the upcoming list. Zero values match everything.
type UpcomingFilter struct {
	Platform models.Platform
	Search   string
}

func (f UpcomingFilter) matches(v models.ContestView) bool {
	if f.Platform != "" && v.Platform != f.Platform {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(v.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// ContestQuery serves contest reads, preferring the cached upcoming list.
type ContestQuery struct {
	contests  repository.ContestRepository
	solutions repository.SolutionRepository
	cache     UpcomingCache
	now       func() time.Time
}

func NewContestQuery(contests repository.ContestRepository, solutions repository.SolutionRepository, cache UpcomingCache) *ContestQuery {
	return &ContestQuery{
		contests:  contests,
		solutions: solutions,
		cache:     cache,
		now:       time.Now,
	}
}

// Upcoming returns upcoming contests soonest first: the cached list when it
// holds any contest, otherwise contests from the store that have not started.
func (q *ContestQuery) Upcoming(ctx context.Context, filter UpcomingFilter) ([]models.ContestView, error) {
	if cached := q.cache.GetCached(ctx); len(cached) > 0 {
		out := make([]models.ContestView, 0, len(cached))
		for _, v := range cached {
			if filter.matches(v) {
				out = append(out, v)
			}
		}
		return out, nil
	}

	contests, err := q.contests.ListUpcoming(ctx, q.now(), &repository.ContestFilters{
		Platform: filter.Platform,
		Search:   filter.Search,
	})
	if err != nil {
		return nil, fmt.Errorf("list upcoming contests: %w", err)
	}

	out := make([]models.ContestView, 0, len(contests))
	for _, c := range contests {
		out = append(out, c.View())
	}
	return out, nil
}

// ByCanonicalID finds a contest in the cached list, then in the store.
func (q *ContestQuery) ByCanonicalID(ctx context.Context, canonicalID string) (models.ContestView, error) {
	for _, v := range q.cache.GetCached(ctx) {
		if v.ContestID == canonicalID {
			return v, nil
		}
	}

	contest, err := q.contests.GetByCanonicalID(ctx, canonicalID)
	if err != nil {
		return models.ContestView{}, err
	}
	return contest.View(), nil
}

// List pages through stored contests, newest first.
func (q *ContestQuery) List(ctx context.Context, filters *repository.ContestFilters) ([]*models.Contest, int, error) {
	return q.contests.List(ctx, filters)
}

// Solutions returns the solution attached to a contest.
func (q *ContestQuery) Solutions(ctx context.Context, canonicalID string) (*models.Solution, error) {
	contest, err := q.contests.GetByCanonicalID(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	return q.solutions.GetByContestID(ctx, contest.ID)
}

// Vote increments one of a solution's counters and returns both.
func (q *ContestQuery) Vote(ctx context.Context, solutionID uuid.UUID, vote models.VoteType) (*models.Votes, error) {
	if !vote.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVote, vote)
	}
	return q.solutions.Vote(ctx, solutionID, vote)
}
