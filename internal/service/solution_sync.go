package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

const defaultSyncWorkers = 4

// PlaylistSource lists the videos of a playlist.
type PlaylistSource interface {
	PlaylistVideos(ctx context.Context, playlistID string) ([]*models.Video, error)
}

// SyncSummary counts the outcome of one solution sync.
type SyncSummary struct {
	Playlists       int `json:"playlists"`
	FailedPlaylists int `json:"failedPlaylists"`
	Videos          int `json:"videos"`
	Attached        int `json:"attached"`
	NoMatch         int `json:"noMatch"`
	Failed          int `json:"failed"`
}

// SolutionSync matches every video of the configured playlists against the
// stored contests.
type SolutionSync struct {
	source    PlaylistSource
	matcher   VideoMatcher
	playlists []string
	workers   int
	logger    *zap.Logger
}

func NewSolutionSync(source PlaylistSource, matcher VideoMatcher, playlists []string, workers int, logger *zap.Logger) *SolutionSync {
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	return &SolutionSync{
		source:    source,
		matcher:   matcher,
		playlists: playlists,
		workers:   workers,
		logger:    logger,
	}
}

type playlistFetch struct {
	id     string
	videos []*models.Video
	err    error
}

// Sync fetches the playlists concurrently, then matches their videos on a
// bounded worker pool. Videos listed in several playlists are matched once.
func (s *SolutionSync) Sync(ctx context.Context) (SyncSummary, error) {
	summary := SyncSummary{Playlists: len(s.playlists)}

	fetches := pool.NewWithResults[playlistFetch]()
	for _, id := range s.playlists {
		fetches.Go(func() playlistFetch {
			videos, err := s.source.PlaylistVideos(ctx, id)
			return playlistFetch{id: id, videos: videos, err: err}
		})
	}

	seen := make(map[string]bool)
	var videos []*models.Video
	for _, f := range fetches.Wait() {
		if f.err != nil {
			summary.FailedPlaylists++
			s.logger.Error("Failed to fetch playlist",
				zap.String("playlist_id", f.id),
				zap.Error(f.err),
			)
			continue
		}
		for _, v := range f.videos {
			if seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			videos = append(videos, v)
		}
	}
	summary.Videos = len(videos)

	workers, err := ants.NewPool(s.workers)
	if err != nil {
		return summary, fmt.Errorf("create worker pool: %w", err)
	}
	defer workers.Release()

	var (
		attached atomic.Int32
		noMatch  atomic.Int32
		failed   atomic.Int32
		wg       sync.WaitGroup
	)

	for _, video := range videos {
		wg.Add(1)
		if err := workers.Submit(func() {
			defer wg.Done()

			result, err := s.matcher.MatchAndAttach(ctx, video)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("Failed to match video",
					zap.String("video_id", video.ID),
					zap.String("title", video.Title),
					zap.Error(err),
				)
			case result == MatchAttached:
				attached.Add(1)
			default:
				noMatch.Add(1)
			}
		}); err != nil {
			wg.Done()
			wg.Wait()
			return summary, fmt.Errorf("submit video to worker pool: %w", err)
		}
	}

	wg.Wait()

	summary.Attached = int(attached.Load())
	summary.NoMatch = int(noMatch.Load())
	summary.Failed = int(failed.Load())

	s.logger.Info("Synced solution videos",
		zap.Int("playlists", summary.Playlists),
		zap.Int("failed_playlists", summary.FailedPlaylists),
		zap.Int("videos", summary.Videos),
		zap.Int("attached", summary.Attached),
		zap.Int("no_match", summary.NoMatch),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}
