// Package repository implements PostgreSQL persistence for contests and solutions.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

// ContestRepository defines operations for managing contests.
type ContestRepository interface {
	// InsertIfAbsent inserts the contest unless one with the same platform and
	// identity key exists. It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, contest *models.Contest) (bool, error)

	// FindByIdentity retrieves a contest by platform and identity key.
	FindByIdentity(ctx context.Context, platform models.Platform, identityKey string) (*models.Contest, error)

	// GetByCanonicalID retrieves the most recent contest with the canonical id.
	GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Contest, error)

	// FindLatestMatching retrieves the most recent contest whose canonical id
	// contains fragment case-insensitively. An empty platform searches all
	// platforms; includeNative also matches against the native id.
	FindLatestMatching(ctx context.Context, fragment string, platform models.Platform, includeNative bool) (*models.Contest, error)

	// CountByPlatform returns the number of stored contests for a platform.
	CountByPlatform(ctx context.Context, platform models.Platform) (int, error)

	// AdvanceStatus moves a contest forward to status. Backward moves are
	// no-ops. It reports whether the row changed.
	AdvanceStatus(ctx context.Context, id uuid.UUID, status models.Status) (bool, error)

	// RefreshSchedule rewrites name and times of a still-upcoming contest
	// when they differ from the stored values.
	RefreshSchedule(ctx context.Context, contest *models.Contest) (bool, error)

	// CloseOngoing moves every ongoing contest of the platform whose identity
	// key is not in keep to past.
	CloseOngoing(ctx context.Context, platform models.Platform, keep []string) (int64, error)

	// CloseExpiredUpcoming moves upcoming contests that ended before now to past.
	CloseExpiredUpcoming(ctx context.Context, platform models.Platform, now time.Time) (int64, error)

	// AppendSolutionLink adds url to the contest's solution links unless present.
	AppendSolutionLink(ctx context.Context, id uuid.UUID, url string) (bool, error)

	// ListUpcoming retrieves contests starting at or after now, soonest first.
	ListUpcoming(ctx context.Context, now time.Time, filters *ContestFilters) ([]*models.Contest, error)

	// List retrieves contests with filters and pagination, newest first.
	List(ctx context.Context, filters *ContestFilters) ([]*models.Contest, int, error)
}

// ContestFilters contains filter options for listing contests.
type ContestFilters struct {
	Platform models.Platform
	Status   models.Status
	Search   string
	Limit    int
	Offset   int
}

// DefaultListLimit is the page size used when a filter sets none.
const DefaultListLimit = 50

// PageLimit returns the page size List applies.
func (f *ContestFilters) PageLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

const contestColumns = `id, canonical_id, original_id, name, platform, contest_type,
		start_time, end_time, duration_seconds, url, status, solution_links, created_at, updated_at`

type contestRepository struct {
	pool *pgxpool.Pool
}

// NewContestRepository creates a new ContestRepository.
func NewContestRepository(pool *pgxpool.Pool) ContestRepository {
	return &contestRepository{pool: pool}
}

func (r *contestRepository) InsertIfAbsent(ctx context.Context, c *models.Contest) (bool, error) {
	query := `
		INSERT INTO contests (id, canonical_id, original_id, name, platform, contest_type,
			start_time, end_time, duration_seconds, url, status, solution_links, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (platform, identity_key) DO NOTHING
	`

	links := c.SolutionLinks
	if links == nil {
		links = []string{}
	}

	tag, err := r.pool.Exec(ctx, query,
		c.ID,
		c.CanonicalID,
		nullString(c.OriginalID),
		c.Name,
		string(c.Platform),
		nullString(c.Type),
		c.StartTime,
		c.EndTime,
		c.DurationSeconds,
		nullString(c.URL),
		string(c.Status),
		links,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return false, db.WrapError(err, "insert contest")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *contestRepository) FindByIdentity(ctx context.Context, platform models.Platform, identityKey string) (*models.Contest, error) {
	query := `SELECT ` + contestColumns + `
		FROM contests
		WHERE platform = $1 AND identity_key = $2
	`

	contest, err := scanContest(r.pool.QueryRow(ctx, query, string(platform), identityKey))
	if err != nil {
		return nil, db.WrapError(err, "find contest by identity")
	}

	return contest, nil
}

func (r *contestRepository) GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Contest, error) {
	query := `SELECT ` + contestColumns + `
		FROM contests
		WHERE canonical_id = $1
		ORDER BY start_time DESC
		LIMIT 1
	`

	contest, err := scanContest(r.pool.QueryRow(ctx, query, canonicalID))
	if err != nil {
		return nil, db.WrapError(err, "get contest by canonical id")
	}

	return contest, nil
}

func (r *contestRepository) FindLatestMatching(ctx context.Context, fragment string, platform models.Platform, includeNative bool) (*models.Contest, error) {
	query := `SELECT ` + contestColumns + `
		FROM contests
		WHERE ($2::text = '' OR platform = $2::text)
		  AND (strpos(lower(canonical_id), lower($1::text)) > 0
		       OR ($3::boolean AND strpos(lower(COALESCE(original_id, '')), lower($1::text)) > 0))
		ORDER BY start_time DESC
		LIMIT 1
	`

	contest, err := scanContest(r.pool.QueryRow(ctx, query, fragment, string(platform), includeNative))
	if err != nil {
		return nil, db.WrapError(err, "find matching contest")
	}

	return contest, nil
}

func (r *contestRepository) CountByPlatform(ctx context.Context, platform models.Platform) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contests WHERE platform = $1`, string(platform)).Scan(&count)
	if err != nil {
		return 0, db.WrapError(err, "count contests by platform")
	}
	return count, nil
}

func (r *contestRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, status models.Status) (bool, error) {
	earlier := earlierStatuses(status)
	if len(earlier) == 0 {
		return false, nil
	}

	query := `
		UPDATE contests
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`

	tag, err := r.pool.Exec(ctx, query, id, string(status), earlier)
	if err != nil {
		return false, db.WrapError(err, "advance contest status")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *contestRepository) RefreshSchedule(ctx context.Context, c *models.Contest) (bool, error) {
	query := `
		UPDATE contests
		SET name = $2, start_time = $3, end_time = $4, duration_seconds = $5, updated_at = NOW()
		WHERE id = $1
		  AND status = 'upcoming'
		  AND (name <> $2 OR start_time <> $3 OR end_time <> $4 OR duration_seconds <> $5)
	`

	tag, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.StartTime, c.EndTime, c.DurationSeconds)
	if err != nil {
		return false, db.WrapError(err, "refresh contest schedule")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *contestRepository) CloseOngoing(ctx context.Context, platform models.Platform, keep []string) (int64, error) {
	if keep == nil {
		// A NULL array would make the predicate NULL and match nothing.
		keep = []string{}
	}

	query := `
		UPDATE contests
		SET status = 'past', updated_at = NOW()
		WHERE platform = $1 AND status = 'ongoing' AND NOT (identity_key = ANY($2))
	`

	tag, err := r.pool.Exec(ctx, query, string(platform), keep)
	if err != nil {
		return 0, db.WrapError(err, "close ongoing contests")
	}

	return tag.RowsAffected(), nil
}

func (r *contestRepository) CloseExpiredUpcoming(ctx context.Context, platform models.Platform, now time.Time) (int64, error) {
	query := `
		UPDATE contests
		SET status = 'past', updated_at = NOW()
		WHERE platform = $1 AND status = 'upcoming' AND end_time <= $2
	`

	tag, err := r.pool.Exec(ctx, query, string(platform), now)
	if err != nil {
		return 0, db.WrapError(err, "close expired upcoming contests")
	}

	return tag.RowsAffected(), nil
}

func (r *contestRepository) AppendSolutionLink(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	query := `
		UPDATE contests
		SET solution_links = array_append(solution_links, $2::text), updated_at = NOW()
		WHERE id = $1 AND NOT ($2::text = ANY(solution_links))
	`

	tag, err := r.pool.Exec(ctx, query, id, url)
	if err != nil {
		return false, db.WrapError(err, "append solution link")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *contestRepository) ListUpcoming(ctx context.Context, now time.Time, filters *ContestFilters) ([]*models.Contest, error) {
	if filters == nil {
		filters = &ContestFilters{}
	}

	where, args := filters.where([]string{"start_time >= $1"}, []interface{}{now})

	query := fmt.Sprintf(`SELECT %s
		FROM contests
		%s
		ORDER BY start_time ASC
	`, contestColumns, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.WrapError(err, "list upcoming contests")
	}
	defer rows.Close()

	return scanContests(rows)
}

func (r *contestRepository) List(ctx context.Context, filters *ContestFilters) ([]*models.Contest, int, error) {
	if filters == nil {
		filters = &ContestFilters{}
	}

	where, args := filters.where(nil, nil)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM contests %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, db.WrapError(err, "count contests")
	}

	query := fmt.Sprintf(`SELECT %s
		FROM contests
		%s
		ORDER BY start_time DESC
		LIMIT $%d OFFSET $%d
	`, contestColumns, where, len(args)+1, len(args)+2)
	args = append(args, filters.PageLimit(), filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.WrapError(err, "list contests")
	}
	defer rows.Close()

	contests, err := scanContests(rows)
	if err != nil {
		return nil, 0, err
	}

	return contests, total, nil
}

// where renders the filter conditions after any base conditions, numbering
// placeholders after the base arguments.
func (f *ContestFilters) where(conds []string, args []interface{}) (string, []interface{}) {
	if f.Platform != "" {
		args = append(args, string(f.Platform))
		conds = append(conds, fmt.Sprintf("platform = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func earlierStatuses(status models.Status) []string {
	var out []string
	for _, s := range []models.Status{models.StatusUpcoming, models.StatusOngoing, models.StatusPast} {
		if s.CanAdvanceTo(status) {
			out = append(out, string(s))
		}
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContest(row rowScanner) (*models.Contest, error) {
	var (
		c                      models.Contest
		originalID, ctype, url *string
		platform, status       string
	)

	err := row.Scan(
		&c.ID,
		&c.CanonicalID,
		&originalID,
		&c.Name,
		&platform,
		&ctype,
		&c.StartTime,
		&c.EndTime,
		&c.DurationSeconds,
		&url,
		&status,
		&c.SolutionLinks,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.OriginalID = deref(originalID)
	c.Type = deref(ctype)
	c.URL = deref(url)
	c.Platform = models.Platform(platform)
	c.Status = models.Status(status)
	if c.SolutionLinks == nil {
		c.SolutionLinks = []string{}
	}

	return &c, nil
}

func scanContests(rows pgx.Rows) ([]*models.Contest, error) {
	contests := []*models.Contest{}

	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		contests = append(contests, contest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contests: %w", err)
	}

	return contests, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
