package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
)

// Aggregator fans a refresh cycle out to every platform adapter and caches
// the combined upcoming list.
type Aggregator struct {
	adapters []Adapter
	contests repository.ContestRepository
	cache    UpcomingCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewAggregator(adapters []Adapter, contests repository.ContestRepository, cache UpcomingCache, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		contests: contests,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// RefreshAll fetches every platform concurrently and returns the upcoming
// contests of the platforms that answered, in completion order. Platforms
// with nothing stored before the cycle are then backfilled with their
// finished contests.
func (g *Aggregator) RefreshAll(ctx context.Context) []*models.Contest {
	all, _ := g.refresh(ctx)
	return all
}

// RefreshAndCache runs a refresh cycle and caches the contests that have not
// started yet. When no platform answered the cached list is dropped instead,
// so readers fall back to the store.
func (g *Aggregator) RefreshAndCache(ctx context.Context) error {
	contests, answered := g.refresh(ctx)

	if answered == 0 && len(g.adapters) > 0 {
		g.logger.Warn("No platform answered, dropping cached upcoming contests")
		if err := g.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear upcoming contests: %w", err)
		}
		return nil
	}

	now := g.now()
	upcoming := make([]*models.Contest, 0, len(contests))
	for _, c := range contests {
		if c.StartTime.After(now) {
			upcoming = append(upcoming, c)
		}
	}

	if err := g.cache.CacheUpcoming(ctx, upcoming); err != nil {
		return fmt.Errorf("cache upcoming contests: %w", err)
	}
	return nil
}

type fetchResult struct {
	contests []*models.Contest
	ok       bool
}

// refresh returns the merged upcoming contests and how many platforms answered.
func (g *Aggregator) refresh(ctx context.Context) ([]*models.Contest, int) {
	empty := g.emptyPlatforms(ctx)

	p := pool.NewWithResults[fetchResult]()
	for _, a := range g.adapters {
		p.Go(func() fetchResult {
			return g.fetchUpcoming(ctx, a)
		})
	}

	var (
		all      []*models.Contest
		answered int
	)
	for _, res := range p.Wait() {
		if res.ok {
			answered++
		}
		all = append(all, res.contests...)
	}

	if len(empty) > 0 {
		g.backfill(ctx, empty)
	}

	return all, answered
}

func (g *Aggregator) fetchUpcoming(ctx context.Context, a Adapter) fetchResult {
	var (
		contests []*models.Contest
		err      error
		pc       panics.Catcher
	)
	pc.Try(func() {
		contests, err = a.FetchUpcoming(ctx)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		g.logger.Error("Failed to fetch contests",
			zap.String("platform", string(a.Platform())),
			zap.Error(err),
		)
		return fetchResult{}
	}
	return fetchResult{contests: contests, ok: true}
}

func (g *Aggregator) emptyPlatforms(ctx context.Context) []Adapter {
	var empty []Adapter
	for _, a := range g.adapters {
		count, err := g.contests.CountByPlatform(ctx, a.Platform())
		if err != nil {
			g.logger.Error("Failed to count stored contests",
				zap.String("platform", string(a.Platform())),
				zap.Error(err),
			)
			continue
		}
		if count == 0 {
			empty = append(empty, a)
		}
	}
	return empty
}

func (g *Aggregator) backfill(ctx context.Context, adapters []Adapter) {
	p := pool.New()
	for _, a := range adapters {
		p.Go(func() {
			var (
				res BackfillResult
				err error
				pc  panics.Catcher
			)
			pc.Try(func() {
				res, err = a.FetchPastContests(ctx)
			})
			if r := pc.Recovered(); r != nil {
				err = r.AsError()
			}

			if err != nil {
				g.logger.Error("Failed to backfill finished contests",
					zap.String("platform", string(a.Platform())),
					zap.Int("pages", res.Pages),
					zap.Int("inserted", res.Inserted),
					zap.Error(err),
				)
			}
		})
	}
	p.Wait()
}
