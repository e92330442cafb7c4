// Package leetcode reads contests from the LeetCode GraphQL API.
package leetcode

import (
	"context"
	"errors"
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
	DefaultBaseURL  = "https://leetcode.com"
	DefaultPageSize = 20
)

const allContestsQuery = `query allContests {
  allContests {
    title
    titleSlug
    startTime
    duration
  }
}`

const pastContestsQuery = `query pastContests($pageNo: Int, $numPerPage: Int) {
  pastContests(pageNo: $pageNo, numPerPage: $numPerPage) {
    currentPage
    pageNum
    data {
      title
      titleSlug
      startTime
      duration
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type allContestsResponse struct {
	Data struct {
		AllContests []rawContest `json:"allContests"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type pastContestsResponse struct {
	Data struct {
		PastContests *struct {
			CurrentPage int          `json:"currentPage"`
			PageNum     int          `json:"pageNum"`
			Data        []rawContest `json:"data"`
		} `json:"pastContests"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type rawContest struct {
	Title     string `json:"title" validate:"required"`
	TitleSlug string `json:"titleSlug" validate:"required"`
	StartTime int64  `json:"startTime" validate:"gt=0"`
	Duration  int64  `json:"duration" validate:"gt=0"`
}

// Client fetches LeetCode weekly and biweekly contests.
type Client struct {
	http      *source.HTTP
	baseURL   string
	pageSize  int
	validator *validation.Validator
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg config.SourceConfig, pageSize int, v *validation.Validator, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Client{
		http:      source.NewHTTP(models.PlatformLeetCode, cfg, logger),
		baseURL:   baseURL,
		pageSize:  pageSize,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *Client) Platform() models.Platform {
	return models.PlatformLeetCode
}

// FetchListing partitions allContests by the current time: not started,
// running, and ended.
func (c *Client) FetchListing(ctx context.Context) (*source.Listing, error) {
	var resp allContestsResponse
	if err := c.http.PostJSON(ctx, "allContests", c.graphQLURL(), graphQLRequest{Query: allContestsQuery}, &resp); err != nil {
		return nil, err
	}
	if err := c.queryError("allContests", resp.Errors); err != nil {
		return nil, err
	}

	now := c.now()
	listing := &source.Listing{}

	for _, rc := range resp.Data.AllContests {
		start := time.Unix(rc.StartTime, 0)
		end := start.Add(time.Duration(rc.Duration) * time.Second)

		switch {
		case start.After(now):
			listing.Upcoming = c.appendNormalized(listing.Upcoming, rc, models.StatusUpcoming)
		case end.After(now):
			listing.Ongoing = c.appendNormalized(listing.Ongoing, rc, models.StatusOngoing)
		default:
			listing.Finished = c.appendNormalized(listing.Finished, rc, models.StatusPast)
		}
	}

	listing.Upcoming = source.Keep(c.validator, c.logger, listing.Upcoming)
	listing.Ongoing = source.Keep(c.validator, c.logger, listing.Ongoing)
	listing.Finished = source.Keep(c.validator, c.logger, listing.Finished)

	return listing, nil
}

// FetchFinishedPage reads pastContests. Upstream pages are one-based.
func (c *Client) FetchFinishedPage(ctx context.Context, page int) ([]*models.Contest, bool, error) {
	req := graphQLRequest{
		Query: pastContestsQuery,
		Variables: map[string]any{
			"pageNo":     page + 1,
			"numPerPage": c.pageSize,
		},
	}

	var resp pastContestsResponse
	if err := c.http.PostJSON(ctx, "pastContests", c.graphQLURL(), req, &resp); err != nil {
		return nil, false, err
	}
	if err := c.queryError("pastContests", resp.Errors); err != nil {
		return nil, false, err
	}

	past := resp.Data.PastContests
	if past == nil {
		return nil, false, &source.UpstreamFetchError{
			Platform: models.PlatformLeetCode,
			Op:       "pastContests",
			Err:      errors.New("response has no pastContests"),
		}
	}

	var contests []*models.Contest
	for _, rc := range past.Data {
		contests = c.appendNormalized(contests, rc, models.StatusPast)
	}

	more := len(past.Data) > 0 && past.CurrentPage < past.PageNum
	return source.Keep(c.validator, c.logger, contests), more, nil
}

func (c *Client) graphQLURL() string {
	return c.baseURL + "/graphql"
}

func (c *Client) queryError(op string, errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}

	return &source.UpstreamFetchError{
		Platform: models.PlatformLeetCode,
		Op:       op,
		Err:      errors.New(strings.Join(msgs, "; ")),
	}
}

func (c *Client) appendNormalized(out []*models.Contest, rc rawContest, status models.Status) []*models.Contest {
	if err := c.validator.Struct(rc); err != nil {
		c.logger.Warn("Skipping malformed LeetCode contest",
			zap.String("slug", rc.TitleSlug),
			zap.String("title", rc.Title),
			zap.Error(err),
		)
		return out
	}

	slug := parser.NativeSlug(rc.TitleSlug)
	contest := models.NewContest(
		models.PlatformLeetCode,
		slug,
		"",
		rc.Title,
		time.Unix(rc.StartTime, 0),
		int(rc.Duration),
		status,
	)
	contest.URL = "https://leetcode.com/contest/" + slug

	return append(out, contest)
}
