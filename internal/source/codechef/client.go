// Package codechef reads the CodeChef contest listing API.
package codechef

import (
	"context"
	"fmt"
	"net/url"
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
	DefaultBaseURL  = "https://www.codechef.com"
	DefaultPageSize = 20

	statusSuccess = "success"
)

type listResponse struct {
	Status          string       `json:"status"`
	Message         string       `json:"message"`
	PresentContests []rawContest `json:"present_contests"`
	FutureContests  []rawContest `json:"future_contests"`
	PastContests    []rawContest `json:"past_contests"`
}

type pastResponse struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Contests []rawContest `json:"contests"`
	Count    int          `json:"count"`
}

type rawContest struct {
	Code     string `json:"contest_code" validate:"required"`
	Name     string `json:"contest_name" validate:"required"`
	StartISO string `json:"contest_start_date_iso" validate:"required"`
	EndISO   string `json:"contest_end_date_iso" validate:"required"`
}

// Client fetches CodeChef contests.
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
		http:      source.NewHTTP(models.PlatformCodeChef, cfg, logger),
		baseURL:   baseURL,
		pageSize:  pageSize,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *Client) Platform() models.Platform {
	return models.PlatformCodeChef
}

func (c *Client) FetchListing(ctx context.Context) (*source.Listing, error) {
	var resp listResponse
	if err := c.http.GetJSON(ctx, "list", c.baseURL+"/api/list/contests/all", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != statusSuccess {
		return nil, c.apiError("list", resp.Status, resp.Message)
	}

	now := c.now()
	listing := &source.Listing{
		Ongoing:  c.normalizeAll(resp.PresentContests, models.StatusOngoing),
		Finished: c.normalizeAll(resp.PastContests, models.StatusPast),
	}

	for _, contest := range c.normalizeAll(resp.FutureContests, models.StatusUpcoming) {
		if contest.EndTime.After(now) {
			listing.Upcoming = append(listing.Upcoming, contest)
		}
	}

	return listing, nil
}

// FetchFinishedPage reads the paginated past-contest listing, newest first.
func (c *Client) FetchFinishedPage(ctx context.Context, page int) ([]*models.Contest, bool, error) {
	offset := page * c.pageSize

	query := url.Values{}
	query.Set("sort_by", "START")
	query.Set("sorting_order", "desc")
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("mode", "all")

	var resp pastResponse
	if err := c.http.GetJSON(ctx, "past", c.baseURL+"/api/list/contests/past?"+query.Encode(), &resp); err != nil {
		return nil, false, err
	}
	if resp.Status != "" && resp.Status != statusSuccess {
		return nil, false, c.apiError("past", resp.Status, resp.Message)
	}

	contests := c.normalizeAll(resp.Contests, models.StatusPast)
	more := len(resp.Contests) > 0 && offset+len(resp.Contests) < resp.Count

	return contests, more, nil
}

func (c *Client) normalizeAll(raw []rawContest, status models.Status) []*models.Contest {
	out := make([]*models.Contest, 0, len(raw))
	for _, rc := range raw {
		contest, err := c.normalize(rc, status)
		if err != nil {
			c.logger.Warn("Skipping malformed CodeChef contest",
				zap.String("code", rc.Code),
				zap.String("name", rc.Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, contest)
	}
	return source.Keep(c.validator, c.logger, out)
}

func (c *Client) normalize(rc rawContest, status models.Status) (*models.Contest, error) {
	if err := c.validator.Struct(rc); err != nil {
		return nil, err
	}

	start, err := time.Parse(time.RFC3339, rc.StartISO)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, rc.EndISO)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	code := strings.TrimSpace(rc.Code)
	contest := models.NewContest(
		models.PlatformCodeChef,
		parser.StripCodePrefix(code),
		code,
		rc.Name,
		start,
		int(end.Sub(start).Seconds()),
		status,
	)
	contest.URL = "https://www.codechef.com/" + code

	return contest, nil
}

func (c *Client) apiError(op, status, message string) error {
	return &source.UpstreamFetchError{
		Platform: models.PlatformCodeChef,
		Op:       op,
		Err:      fmt.Errorf("api status %q: %s", status, message),
	}
}
