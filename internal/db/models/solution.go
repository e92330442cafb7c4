package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Limits on stored video link text.
const (
	MaxLinkTitleLength       = 100
	MaxLinkDescriptionLength = 500
)

// VoteType selects which counter a vote increments.
type VoteType string

// Vote types.
const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

// Valid reports whether v is a known vote type.
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// VideoLink is one solution video attached to a contest.
type VideoLink struct {
	URL         string `json:"url" validate:"required,youtube_url"`
	Title       string `json:"title" validate:"max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
	Thumbnail   string `json:"thumbnail,omitempty" validate:"omitempty,url"`
}

// NewVideoLink converts a catalogue video, truncating text to the stored limits.
func NewVideoLink(v *Video) VideoLink {
	return VideoLink{
		URL:         v.URL,
		Title:       truncate(v.Title, MaxLinkTitleLength),
		Description: truncate(v.Description, MaxLinkDescriptionLength),
		Thumbnail:   v.Thumbnail,
	}
}

// Votes holds the independent up and down counters.
type Votes struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

// Solution groups the video links for one contest. There is at most one per contest.
type Solution struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	ContestID uuid.UUID   `db:"contest_id" json:"contestId"`
	Links     []VideoLink `db:"links" json:"youtubeLinks"`
	Votes     Votes       `json:"votes"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// NewSolution seeds a solution with its first link.
func NewSolution(contestID uuid.UUID, link VideoLink) *Solution {
	now := time.Now()
	return &Solution{
		ID:        uuid.New(),
		ContestID: contestID,
		Links:     []VideoLink{link},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasLink reports whether a link with url is present.
func (s *Solution) HasLink(url string) bool {
	for _, l := range s.Links {
		if l.URL == url {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
