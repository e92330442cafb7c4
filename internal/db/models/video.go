package models

import "fmt"

// Video is a solution video read from a playlist. It is never persisted on
// its own; matched videos become VideoLinks.
type Video struct {
	ID          string
	PlaylistID  string
	Title       string
	URL         string
	Thumbnail   string
	Description string
}

// NewVideo builds a Video with the canonical watch URL for videoID.
func NewVideo(videoID, playlistID, title, thumbnail, description string) *Video {
	return &Video{
		ID:          videoID,
		PlaylistID:  playlistID,
		Title:       title,
		URL:         WatchURL(videoID),
		Thumbnail:   thumbnail,
		Description: description,
	}
}

// WatchURL returns the public watch URL for a video id.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
