// Package codeforces reads the Codeforces contest list API.
package codeforces

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/parser"
	"github.com/contest-tracker/contest-aggregator-go/internal/source"
	"github.com/contest-tracker/contest-aggregator-go/internal/validation"
)

const (
	DefaultBaseURL = "https://codeforces.com"

	phaseBefore            = "BEFORE"
	phaseCoding            = "CODING"
	phasePendingSystemTest = "PENDING_SYSTEM_TEST"
	phaseSystemTest        = "SYSTEM_TEST"
	phaseFinished          = "FINISHED"
)

type contestListResponse struct {
	Status  string       `json:"status"`
	Comment string       `json:"comment"`
	Result  []rawContest `json:"result"`
}

type rawContest struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Phase            string `json:"phase"`
	DurationSeconds  int64  `json:"durationSeconds"`
	StartTimeSeconds int64  `json:"startTimeSeconds"`
}

// Client fetches Codeforces rounds. Only regular and educational rounds are
// kept; IOI-format contests and olympiads are dropped.
type Client struct {
	http      *source.HTTP
	baseURL   string
	validator *validation.Validator
	logger    *zap.Logger
}

func New(cfg config.SourceConfig, v *validation.Validator, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		http:      source.NewHTTP(models.PlatformCodeforces, cfg, logger),
		baseURL:   baseURL,
		validator: v,
		logger:    logger,
	}
}

func (c *Client) Platform() models.Platform {
	return models.PlatformCodeforces
}

func (c *Client) FetchListing(ctx context.Context) (*source.Listing, error) {
	raw, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	listing := &source.Listing{}
	for _, rc := range raw {
		if !isRound(rc) {
			continue
		}

		switch rc.Phase {
		case phaseBefore:
			listing.Upcoming = append(listing.Upcoming, c.normalize(rc, models.StatusUpcoming))
		case phaseCoding:
			listing.Ongoing = append(listing.Ongoing, c.normalize(rc, models.StatusOngoing))
		case phasePendingSystemTest, phaseSystemTest, phaseFinished:
			listing.Finished = append(listing.Finished, c.normalize(rc, models.StatusPast))
		default:
			c.logger.Debug("Skipping contest in unknown phase",
				zap.Int64("id", rc.ID),
				zap.String("phase", rc.Phase),
			)
		}
	}

	listing.Upcoming = source.Keep(c.validator, c.logger, listing.Upcoming)
	listing.Ongoing = source.Keep(c.validator, c.logger, listing.Ongoing)
	listing.Finished = source.Keep(c.validator, c.logger, listing.Finished)

	return listing, nil
}

// FetchFinishedPage returns every finished round on page 0. The API has no
// pagination, so there is never a second page.
func (c *Client) FetchFinishedPage(ctx context.Context, page int) ([]*models.Contest, bool, error) {
	if page > 0 {
		return nil, false, nil
	}

	listing, err := c.FetchListing(ctx)
	if err != nil {
		return nil, false, err
	}

	return listing.Finished, false, nil
}

func (c *Client) fetch(ctx context.Context) ([]rawContest, error) {
	var resp contestListResponse
	if err := c.http.GetJSON(ctx, "contest.list", c.baseURL+"/api/contest.list", &resp); err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		return nil, &source.UpstreamFetchError{
			Platform: models.PlatformCodeforces,
			Op:       "contest.list",
			Err:      fmt.Errorf("api status %q: %s", resp.Status, resp.Comment),
		}
	}
	if resp.Result == nil {
		return nil, &source.UpstreamFetchError{
			Platform: models.PlatformCodeforces,
			Op:       "contest.list",
			Err:      errors.New("response has no result"),
		}
	}

	return resp.Result, nil
}

func isRound(rc rawContest) bool {
	if rc.Type == "IOI" || strings.Contains(rc.Name, "Olympiad") {
		return false
	}
	return strings.Contains(rc.Name, "Codeforces Round") || strings.Contains(rc.Name, "Educational Codeforces Round")
}

func (c *Client) normalize(rc rawContest, status models.Status) *models.Contest {
	id := strconv.FormatInt(rc.ID, 10)
	contest := models.NewContest(
		models.PlatformCodeforces,
		parser.CanonicalID(models.PlatformCodeforces, rc.Name),
		id,
		rc.Name,
		time.Unix(rc.StartTimeSeconds, 0),
		int(rc.DurationSeconds),
		status,
	)
	contest.Type = rc.Type
	contest.URL = "https://codeforces.com/contest/" + id
	if rc.StartTimeSeconds == 0 {
		contest.StartTime, contest.EndTime = time.Time{}, time.Time{}
	}
	return contest
}
