package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
	"github.com/contest-tracker/contest-aggregator-go/internal/parser"
	"github.com/contest-tracker/contest-aggregator-go/internal/validation"
)

// MatchResult is the outcome of matching one video.
type MatchResult string

const (
	MatchAttached MatchResult = "attached"
	MatchNoMatch  MatchResult = "no_match"
)

// VideoMatcher attaches solution videos to contests.
type VideoMatcher interface {
	MatchAndAttach(ctx context.Context, video *models.Video) (MatchResult, error)
}

// Matcher resolves a video title to a stored contest and records the video
// as one of its solutions. Repeating a match never duplicates a link.
type Matcher struct {
	contests  repository.ContestRepository
	solutions repository.SolutionRepository
	validator *validation.Validator
	events    EventPublisher
	logger    *zap.Logger
}

func NewMatcher(contests repository.ContestRepository, solutions repository.SolutionRepository, v *validation.Validator, events EventPublisher, logger *zap.Logger) *Matcher {
	if events == nil {
		events = NopPublisher()
	}
	return &Matcher{
		contests:  contests,
		solutions: solutions,
		validator: v,
		events:    events,
		logger:    logger,
	}
}

func (m *Matcher) MatchAndAttach(ctx context.Context, video *models.Video) (MatchResult, error) {
	match := parser.VideoContestID(video.Title)
	if match.Empty() {
		m.noMatch(video, match, "no identifier in title")
		return MatchNoMatch, nil
	}

	// CodeChef videos name the native contest code, not the canonical number.
	includeNative := match.Platform == models.PlatformCodeChef

	contest, err := m.contests.FindLatestMatching(ctx, match.ID, match.Platform, includeNative)
	if db.IsNotFound(err) {
		m.noMatch(video, match, "no contest matches")
		return MatchNoMatch, nil
	}
	if err != nil {
		metrics.VideoMatches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("find contest for %q: %w", match.ID, err)
	}

	link := models.NewVideoLink(video)
	if err := m.validator.VideoLink(link); err != nil {
		metrics.VideoMatches.WithLabelValues("error").Inc()
		return "", err
	}

	appended, err := m.contests.AppendSolutionLink(ctx, contest.ID, link.URL)
	if err != nil {
		metrics.VideoMatches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("attach link to contest %s: %w", contest.CanonicalID, err)
	}

	if err := m.attachSolution(ctx, contest, link); err != nil {
		metrics.VideoMatches.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.VideoMatches.WithLabelValues(string(MatchAttached)).Inc()

	if appended {
		contest.AddSolutionLink(link.URL)
		event := NewContestEvent(EventSolutionAttached, contest)
		event.SolutionURL = link.URL
		publishQuietly(ctx, m.events, m.logger, event)

		m.logger.Info("Attached solution video",
			zap.String("platform", string(contest.Platform)),
			zap.String("contest_id", contest.CanonicalID),
			zap.String("video_id", video.ID),
			zap.String("title", video.Title),
		)
	}

	return MatchAttached, nil
}

// attachSolution creates the contest's solution seeded with link, or adds
// link to the existing one.
func (m *Matcher) attachSolution(ctx context.Context, contest *models.Contest, link models.VideoLink) error {
	created, err := m.solutions.CreateIfAbsent(ctx, models.NewSolution(contest.ID, link))
	if err != nil {
		return fmt.Errorf("create solution for contest %s: %w", contest.CanonicalID, err)
	}
	if created {
		return nil
	}

	if _, err := m.solutions.AppendLink(ctx, contest.ID, link); err != nil {
		return fmt.Errorf("append solution link for contest %s: %w", contest.CanonicalID, err)
	}
	return nil
}

func (m *Matcher) noMatch(video *models.Video, match parser.VideoMatch, reason string) {
	metrics.VideoMatches.WithLabelValues(string(MatchNoMatch)).Inc()
	m.logger.Info("No contest for video",
		zap.String("reason", reason),
		zap.String("video_id", video.ID),
		zap.String("title", video.Title),
		zap.String("platform", string(match.Platform)),
		zap.String("derived_id", match.ID),
	)
}
