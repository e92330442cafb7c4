// Package source fetches contest listings from the upstream platforms and
// normalizes them into models.Contest records.
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/validation"
)

// Client fetches one platform's contests.
type Client interface {
	Platform() models.Platform

	// FetchListing returns the platform's current contests partitioned by phase.
	FetchListing(ctx context.Context) (*Listing, error)

	// FetchFinishedPage returns one page of finished contests, newest first,
	// and whether more pages follow. Pages are zero-based.
	FetchFinishedPage(ctx context.Context, page int) ([]*models.Contest, bool, error)
}

// Listing is a platform's contests partitioned by phase.
type Listing struct {
	Upcoming []*models.Contest
	Ongoing  []*models.Contest
	Finished []*models.Contest
}

// UpstreamFetchError reports a failed or malformed upstream response.
type UpstreamFetchError struct {
	Platform   models.Platform
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// Keep drops records that fail validation, logging each one. A bad record
// never fails the batch.
func Keep(v *validation.Validator, log *zap.Logger, contests []*models.Contest) []*models.Contest {
	kept := contests[:0]
	for _, c := range contests {
		if c == nil {
			continue
		}
		if err := v.Contest(c); err != nil {
			log.Warn("Skipping invalid contest record",
				zap.String("platform", string(c.Platform)),
				zap.String("identity", c.IdentityKey()),
				zap.String("name", c.Name),
				zap.Error(err),
			)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
