package youtube

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

const (
	videoKind      = "youtube#video"
	maxPageResults = 50
)

// Titles YouTube substitutes for entries the key cannot see.
var hiddenTitles = map[string]bool{
	"Private video": true,
	"Deleted video": true,
}

// Client wraps the YouTube Data API v3 client
type Client struct {
	service *youtube.Service
	logger  *zap.Logger
}

// NewClient creates a new YouTube API client. Extra options are appended
// after the API key.
func NewClient(ctx context.Context, apiKey string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{
		service: service,
		logger:  logger,
	}, nil
}

// PlaylistVideos returns every public video of a playlist, following page
// tokens until the listing is exhausted.
func (c *Client) PlaylistVideos(ctx context.Context, playlistID string) ([]*models.Video, error) {
	var (
		videos    []*models.Video
		pageToken string
		pages     int
	)

	for {
		call := c.service.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(playlistID).
			MaxResults(maxPageResults).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list playlist %s page %d: %w", playlistID, pages, err)
		}
		pages++

		for _, item := range response.Items {
			if v := toVideo(playlistID, item); v != nil {
				videos = append(videos, v)
			}
		}

		pageToken = response.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Debug("Fetched playlist",
		zap.String("playlist_id", playlistID),
		zap.Int("pages", pages),
		zap.Int("videos", len(videos)),
	)
	return videos, nil
}

func toVideo(playlistID string, item *youtube.PlaylistItem) *models.Video {
	s := item.Snippet
	if s == nil || s.ResourceId == nil || s.ResourceId.Kind != videoKind || s.ResourceId.VideoId == "" {
		return nil
	}
	if hiddenTitles[s.Title] {
		return nil
	}

	return models.NewVideo(s.ResourceId.VideoId, playlistID, s.Title, thumbnail(s.Thumbnails), firstLine(s.Description))
}

// thumbnail picks the largest of the commonly available sizes.
func thumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
