package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies an upstream contest platform. The set is closed.
type Platform string

// Supported platforms.
const (
	PlatformCodeforces Platform = "Codeforces"
	PlatformCodeChef   Platform = "CodeChef"
	PlatformLeetCode   Platform = "LeetCode"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformCodeforces, PlatformCodeChef, PlatformLeetCode}

// ParsePlatform resolves a platform name case-insensitively.
func ParsePlatform(s string) (Platform, bool) {
	for _, p := range Platforms {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Status is the lifecycle phase of a contest. Transitions only move forward:
// upcoming, then ongoing, then past.
type Status string

// Contest statuses.
const (
	StatusUpcoming Status = "upcoming"
	StatusOngoing  Status = "ongoing"
	StatusPast     Status = "past"
)

func (s Status) rank() int {
	switch s {
	case StatusUpcoming:
		return 1
	case StatusOngoing:
		return 2
	case StatusPast:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() > s.rank()
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st.rank() == 0 {
		return "", false
	}
	return st, true
}

// Contest is a normalized contest record from any platform.
type Contest struct {
	ID              uuid.UUID `db:"id" json:"id"`
	CanonicalID     string    `db:"canonical_id" json:"contestId" validate:"required,max=200"`
	OriginalID      string    `db:"original_id" json:"originalId,omitempty" validate:"max=100"`
	Name            string    `db:"name" json:"name" validate:"required,max=200"`
	Platform        Platform  `db:"platform" json:"platform" validate:"required,oneof=Codeforces CodeChef LeetCode"`
	Type            string    `db:"contest_type" json:"type,omitempty"`
	StartTime       time.Time `db:"start_time" json:"startTime" validate:"required"`
	EndTime         time.Time `db:"end_time" json:"endTime" validate:"required,gtfield=StartTime"`
	DurationSeconds int       `db:"duration_seconds" json:"duration" validate:"min=1"`
	URL             string    `db:"url" json:"url,omitempty" validate:"omitempty,url"`
	Status          Status    `db:"status" json:"status" validate:"required,oneof=upcoming ongoing past"`
	SolutionLinks   []string  `db:"solution_links" json:"solutionLinks"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// NewContest builds a contest whose end time is derived from the start and
// the duration in seconds.
func NewContest(platform Platform, canonicalID, originalID, name string, start time.Time, durationSeconds int, status Status) *Contest {
	now := time.Now()
	return &Contest{
		ID:              uuid.New(),
		CanonicalID:     canonicalID,
		OriginalID:      originalID,
		Name:            strings.TrimSpace(name),
		Platform:        platform,
		StartTime:       start.UTC(),
		EndTime:         start.UTC().Add(time.Duration(durationSeconds) * time.Second),
		DurationSeconds: durationSeconds,
		Status:          status,
		SolutionLinks:   []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IdentityKey is the per-platform key used for deduplication: the native id
// when the platform provides one, otherwise the canonical id.
func (c *Contest) IdentityKey() string {
	if c.OriginalID != "" {
		return c.OriginalID
	}
	return c.CanonicalID
}

// Advance moves the contest to next if that is a forward transition.
func (c *Contest) Advance(next Status) bool {
	if !c.Status.CanAdvanceTo(next) {
		return false
	}
	c.Status = next
	c.UpdatedAt = time.Now()
	return true
}

// HasSolutionLink reports whether url is already attached.
func (c *Contest) HasSolutionLink(url string) bool {
	for _, l := range c.SolutionLinks {
		if l == url {
			return true
		}
	}
	return false
}

// AddSolutionLink appends url unless it is already present.
func (c *Contest) AddSolutionLink(url string) bool {
	if url == "" || c.HasSolutionLink(url) {
		return false
	}
	c.SolutionLinks = append(c.SolutionLinks, url)
	c.UpdatedAt = time.Now()
	return true
}

// ScheduleDiffers reports whether other carries a different schedule or name.
func (c *Contest) ScheduleDiffers(other *Contest) bool {
	return !c.StartTime.Equal(other.StartTime) ||
		!c.EndTime.Equal(other.EndTime) ||
		c.DurationSeconds != other.DurationSeconds ||
		c.Name != other.Name
}

// ContestView is the projection served from the upcoming-contests cache.
type ContestView struct {
	ContestID  string    `json:"contestId"`
	OriginalID string    `json:"originalId,omitempty"`
	Name       string    `json:"name"`
	Platform   Platform  `json:"platform"`
	Type       string    `json:"type,omitempty"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Duration   int       `json:"duration"`
	URL        string    `json:"url,omitempty"`
	Status     Status    `json:"status"`
}

// View projects the contest for caching and listing.
func (c *Contest) View() ContestView {
	return ContestView{
		ContestID:  c.CanonicalID,
		OriginalID: c.OriginalID,
		Name:       c.Name,
		Platform:   c.Platform,
		Type:       c.Type,
		StartTime:  c.StartTime,
		EndTime:    c.EndTime,
		Duration:   c.DurationSeconds,
		URL:        c.URL,
		Status:     c.Status,
	}
}
