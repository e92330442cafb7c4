package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

// SolutionRepository defines operations for managing contest solutions.
type SolutionRepository interface {
	// CreateIfAbsent inserts the solution unless the contest already has one.
	CreateIfAbsent(ctx context.Context, solution *models.Solution) (bool, error)

	// GetByID retrieves a solution by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error)

	// GetByContestID retrieves the solution for a contest.
	GetByContestID(ctx context.Context, contestID uuid.UUID) (*models.Solution, error)

	// AppendLink adds link to the contest's solution unless a link with the
	// same URL is present.
	AppendLink(ctx context.Context, contestID uuid.UUID, link models.VideoLink) (bool, error)

	// Vote increments the up or down counter and returns the new tally.
	Vote(ctx context.Context, id uuid.UUID, vote models.VoteType) (*models.Votes, error)
}

const solutionColumns = `id, contest_id, links, upvotes, downvotes, created_at, updated_at`

type solutionRepository struct {
	pool *pgxpool.Pool
}

// NewSolutionRepository creates a new SolutionRepository.
func NewSolutionRepository(pool *pgxpool.Pool) SolutionRepository {
	return &solutionRepository{pool: pool}
}

func (r *solutionRepository) CreateIfAbsent(ctx context.Context, s *models.Solution) (bool, error) {
	query := `
		INSERT INTO solutions (id, contest_id, links, upvotes, downvotes, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		ON CONFLICT (contest_id) DO NOTHING
	`

	links := s.Links
	if links == nil {
		links = []models.VideoLink{}
	}

	tag, err := r.pool.Exec(ctx, query,
		s.ID,
		s.ContestID,
		links,
		s.Votes.Upvotes,
		s.Votes.Downvotes,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return false, db.WrapError(err, "create solution")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *solutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1`

	solution, err := scanSolution(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "get solution by id")
	}

	return solution, nil
}

func (r *solutionRepository) GetByContestID(ctx context.Context, contestID uuid.UUID) (*models.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE contest_id = $1`

	solution, err := scanSolution(r.pool.QueryRow(ctx, query, contestID))
	if err != nil {
		return nil, db.WrapError(err, "get solution by contest id")
	}

	return solution, nil
}

func (r *solutionRepository) AppendLink(ctx context.Context, contestID uuid.UUID, link models.VideoLink) (bool, error) {
	query := `
		UPDATE solutions
		SET links = links || $2::jsonb, updated_at = NOW()
		WHERE contest_id = $1 AND NOT (links @> $3::jsonb)
	`

	probe := []map[string]string{{"url": link.URL}}

	tag, err := r.pool.Exec(ctx, query, contestID, []models.VideoLink{link}, probe)
	if err != nil {
		return false, db.WrapError(err, "append solution link")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *solutionRepository) Vote(ctx context.Context, id uuid.UUID, vote models.VoteType) (*models.Votes, error) {
	var column string
	switch vote {
	case models.VoteUp:
		column = "upvotes"
	case models.VoteDown:
		column = "downvotes"
	default:
		return nil, fmt.Errorf("unknown vote type %q", vote)
	}

	query := fmt.Sprintf(`
		UPDATE solutions
		SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING upvotes, downvotes
	`, column)

	var votes models.Votes
	if err := r.pool.QueryRow(ctx, query, id).Scan(&votes.Upvotes, &votes.Downvotes); err != nil {
		return nil, db.WrapError(err, "vote on solution")
	}

	return &votes, nil
}

func scanSolution(row rowScanner) (*models.Solution, error) {
	var s models.Solution

	err := row.Scan(
		&s.ID,
		&s.ContestID,
		&s.Links,
		&s.Votes.Upvotes,
		&s.Votes.Downvotes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.Links == nil {
		s.Links = []models.VideoLink{}
	}

	return &s, nil
}
