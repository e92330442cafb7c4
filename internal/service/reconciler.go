package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
)

// ErrReconciliationConflict is returned when a concurrent writer inserted the
// same contest between the existence check and the insert.
var ErrReconciliationConflict = errors.New("reconciliation conflict")

// ReconcileResult counts the writes made while reconciling one batch.
type ReconcileResult struct {
	Inserted  int
	Refreshed int
	Advanced  int
	Closed    int64
	Skipped   int
}

// Reconciler applies upstream contest listings to the store without creating
// duplicates and without moving any contest's status backwards.
type Reconciler struct {
	contests repository.ContestRepository
	events   EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(contests repository.ContestRepository, events EventPublisher, logger *zap.Logger) *Reconciler {
	if events == nil {
		events = NopPublisher()
	}
	return &Reconciler{
		contests: contests,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// ReconcileUpcoming inserts unseen upcoming contests and refreshes the
// schedule of stored contests that are still upcoming.
func (r *Reconciler) ReconcileUpcoming(ctx context.Context, platform models.Platform, records []*models.Contest) ReconcileResult {
	var res ReconcileResult

	for _, rec := range records {
		existing, err := r.contests.FindByIdentity(ctx, platform, rec.IdentityKey())
		switch {
		case db.IsNotFound(err):
			if err := r.insert(ctx, rec); err != nil {
				r.skip(&res, rec, err)
				continue
			}
			res.Inserted++
		case err != nil:
			r.skip(&res, rec, err)
		default:
			rec.ID = existing.ID
			if existing.Status != models.StatusUpcoming || !existing.ScheduleDiffers(rec) {
				continue
			}
			changed, err := r.contests.RefreshSchedule(ctx, rec)
			if err != nil {
				r.skip(&res, rec, err)
				continue
			}
			if changed {
				res.Refreshed++
				metrics.ContestWrites.WithLabelValues(string(platform), "refreshed").Inc()
			}
		}
	}

	return res
}

// ReconcileOngoing records the platform's in-progress contests. Absent ones
// are inserted as ongoing and stored upcoming ones advance to ongoing. Every
// other ongoing contest of the platform, and every upcoming contest whose end
// has passed, becomes past. An empty records slice therefore closes all of
// the platform's ongoing contests.
func (r *Reconciler) ReconcileOngoing(ctx context.Context, platform models.Platform, records []*models.Contest) ReconcileResult {
	var res ReconcileResult
	keep := make([]string, 0, len(records))

	for _, rec := range records {
		keep = append(keep, rec.IdentityKey())

		existing, err := r.contests.FindByIdentity(ctx, platform, rec.IdentityKey())
		switch {
		case db.IsNotFound(err):
			rec.Status = models.StatusOngoing
			if err := r.insert(ctx, rec); err != nil {
				r.skip(&res, rec, err)
				continue
			}
			res.Inserted++
		case err != nil:
			r.skip(&res, rec, err)
		default:
			rec.ID = existing.ID
			if !existing.Status.CanAdvanceTo(models.StatusOngoing) {
				continue
			}
			advanced, err := r.contests.AdvanceStatus(ctx, existing.ID, models.StatusOngoing)
			if err != nil {
				r.skip(&res, rec, err)
				continue
			}
			if advanced {
				res.Advanced++
				existing.Status = models.StatusOngoing
				metrics.ContestWrites.WithLabelValues(string(platform), "advanced").Inc()
				publishQuietly(ctx, r.events, r.logger, NewContestEvent(EventContestStatusChanged, existing))
			}
		}
	}

	closed, err := r.contests.CloseOngoing(ctx, platform, keep)
	if err != nil {
		r.logger.Error("Failed to close finished contests",
			zap.String("platform", string(platform)),
			zap.Error(err),
		)
	}
	res.Closed += closed

	expired, err := r.contests.CloseExpiredUpcoming(ctx, platform, r.now())
	if err != nil {
		r.logger.Error("Failed to close expired upcoming contests",
			zap.String("platform", string(platform)),
			zap.Error(err),
		)
	}
	res.Closed += expired

	if res.Closed > 0 {
		metrics.ContestWrites.WithLabelValues(string(platform), "closed").Add(float64(res.Closed))
		r.logger.Info("Closed finished contests",
			zap.String("platform", string(platform)),
			zap.Int64("count", res.Closed),
		)
	}

	return res
}

// ReconcileFinished inserts a finished contest as past unless it is already
// stored. It reports whether a row was written.
func (r *Reconciler) ReconcileFinished(ctx context.Context, rec *models.Contest) (bool, error) {
	_, err := r.contests.FindByIdentity(ctx, rec.Platform, rec.IdentityKey())
	if err == nil {
		return false, nil
	}
	if !db.IsNotFound(err) {
		return false, fmt.Errorf("check existing contest: %w", err)
	}

	rec.Status = models.StatusPast
	if err := r.insert(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) insert(ctx context.Context, rec *models.Contest) error {
	inserted, err := r.contests.InsertIfAbsent(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert contest: %w", err)
	}
	if !inserted {
		return ErrReconciliationConflict
	}

	metrics.ContestWrites.WithLabelValues(string(rec.Platform), "inserted").Inc()
	publishQuietly(ctx, r.events, r.logger, NewContestEvent(EventContestDiscovered, rec))
	return nil
}

func (r *Reconciler) skip(res *ReconcileResult, rec *models.Contest, err error) {
	res.Skipped++

	if errors.Is(err, ErrReconciliationConflict) {
		r.logger.Info("Contest inserted concurrently, skipping",
			zap.String("platform", string(rec.Platform)),
			zap.String("identity", rec.IdentityKey()),
			zap.String("name", rec.Name),
		)
		return
	}

	metrics.ReconcileFailures.WithLabelValues(string(rec.Platform)).Inc()
	r.logger.Error("Failed to reconcile contest",
		zap.String("platform", string(rec.Platform)),
		zap.String("identity", rec.IdentityKey()),
		zap.String("name", rec.Name),
		zap.Error(err),
	)
}
