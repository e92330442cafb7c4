package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/source"
)

const (
	defaultStopAfterExisting = 3
	defaultMaxBackfillPages  = 100
)

// Adapter is one platform's view of the aggregation pipeline.
type Adapter interface {
	Platform() models.Platform

	// FetchUpcoming reconciles the platform's current listing and returns its
	// upcoming contests.
	FetchUpcoming(ctx context.Context) ([]*models.Contest, error)

	// FetchPastContests imports finished contests until it reaches ones that
	// are already stored.
	FetchPastContests(ctx context.Context) (BackfillResult, error)
}

// BackfillResult summarizes one historical import.
type BackfillResult struct {
	Platform models.Platform
	Pages    int
	Inserted int
	Existing int
}

// SourceAdapter couples a platform client with the reconciler.
type SourceAdapter struct {
	client     source.Client
	reconciler *Reconciler
	backfill   config.BackfillConfig
	logger     *zap.Logger
}

func NewSourceAdapter(client source.Client, reconciler *Reconciler, backfill config.BackfillConfig, logger *zap.Logger) *SourceAdapter {
	if backfill.StopAfterExisting <= 0 {
		backfill.StopAfterExisting = defaultStopAfterExisting
	}
	if backfill.MaxPages <= 0 {
		backfill.MaxPages = defaultMaxBackfillPages
	}

	return &SourceAdapter{
		client:     client,
		reconciler: reconciler,
		backfill:   backfill,
		logger:     logger.With(zap.String("platform", string(client.Platform()))),
	}
}

func (a *SourceAdapter) Platform() models.Platform {
	return a.client.Platform()
}

func (a *SourceAdapter) FetchUpcoming(ctx context.Context) ([]*models.Contest, error) {
	listing, err := a.client.FetchListing(ctx)
	if err != nil {
		return nil, err
	}

	upcoming := a.reconciler.ReconcileUpcoming(ctx, a.Platform(), listing.Upcoming)
	ongoing := a.reconciler.ReconcileOngoing(ctx, a.Platform(), listing.Ongoing)

	a.logger.Info("Reconciled contest listing",
		zap.Int("upcoming", len(listing.Upcoming)),
		zap.Int("ongoing", len(listing.Ongoing)),
		zap.Int("inserted", upcoming.Inserted+ongoing.Inserted),
		zap.Int("refreshed", upcoming.Refreshed),
		zap.Int("advanced", ongoing.Advanced),
		zap.Int64("closed", ongoing.Closed),
		zap.Int("skipped", upcoming.Skipped+ongoing.Skipped),
	)

	return listing.Upcoming, nil
}

// FetchPastContests walks finished pages newest first, inserting absent
// contests as past. It stops once StopAfterExisting consecutive contests are
// already stored, when pages run out, or at MaxPages.
func (a *SourceAdapter) FetchPastContests(ctx context.Context) (BackfillResult, error) {
	res := BackfillResult{Platform: a.Platform()}
	consecutive := 0

	for page := 0; page < a.backfill.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		contests, more, err := a.client.FetchFinishedPage(ctx, page)
		if err != nil {
			return res, fmt.Errorf("fetch finished page %d: %w", page, err)
		}
		res.Pages++

		for _, c := range contests {
			inserted, err := a.reconciler.ReconcileFinished(ctx, c)
			switch {
			case errors.Is(err, ErrReconciliationConflict):
				inserted = false
			case err != nil:
				a.logger.Error("Failed to backfill contest",
					zap.String("identity", c.IdentityKey()),
					zap.String("name", c.Name),
					zap.Error(err),
				)
				continue
			}

			if inserted {
				res.Inserted++
				consecutive = 0
				continue
			}

			res.Existing++
			consecutive++
			if consecutive >= a.backfill.StopAfterExisting {
				a.logBackfill(res, "reached stored contests")
				return res, nil
			}
		}

		if !more || len(contests) == 0 {
			break
		}
	}

	a.logBackfill(res, "pages exhausted")
	return res, nil
}

func (a *SourceAdapter) logBackfill(res BackfillResult, reason string) {
	a.logger.Info("Backfilled finished contests",
		zap.String("reason", reason),
		zap.Int("pages", res.Pages),
		zap.Int("inserted", res.Inserted),
		zap.Int("existing", res.Existing),
	)
}
