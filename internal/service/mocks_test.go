package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
)

type mockContestRepository struct {
	mock.Mock
}

func (m *mockContestRepository) InsertIfAbsent(ctx context.Context, contest *models.Contest) (bool, error) {
	args := m.Called(ctx, contest)
	return args.Bool(0), args.Error(1)
}

func (m *mockContestRepository) FindByIdentity(ctx context.Context, platform models.Platform, identityKey string) (*models.Contest, error) {
	args := m.Called(ctx, platform, identityKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contest), args.Error(1)
}

func (m *mockContestRepository) GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Contest, error) {
	args := m.Called(ctx, canonicalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contest), args.Error(1)
}

func (m *mockContestRepository) FindLatestMatching(ctx context.Context, fragment string, platform models.Platform, includeNative bool) (*models.Contest, error) {
	args := m.Called(ctx, fragment, platform, includeNative)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contest), args.Error(1)
}

func (m *mockContestRepository) CountByPlatform(ctx context.Context, platform models.Platform) (int, error) {
	args := m.Called(ctx, platform)
	return args.Int(0), args.Error(1)
}

func (m *mockContestRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, status models.Status) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockContestRepository) RefreshSchedule(ctx context.Context, contest *models.Contest) (bool, error) {
	args := m.Called(ctx, contest)
	return args.Bool(0), args.Error(1)
}

func (m *mockContestRepository) CloseOngoing(ctx context.Context, platform models.Platform, keep []string) (int64, error) {
	args := m.Called(ctx, platform, keep)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockContestRepository) CloseExpiredUpcoming(ctx context.Context, platform models.Platform, now time.Time) (int64, error) {
	args := m.Called(ctx, platform, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockContestRepository) AppendSolutionLink(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	args := m.Called(ctx, id, url)
	return args.Bool(0), args.Error(1)
}

func (m *mockContestRepository) ListUpcoming(ctx context.Context, now time.Time, filters *repository.ContestFilters) ([]*models.Contest, error) {
	args := m.Called(ctx, now, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Contest), args.Error(1)
}

func (m *mockContestRepository) List(ctx context.Context, filters *repository.ContestFilters) ([]*models.Contest, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.Contest), args.Int(1), args.Error(2)
}

type mockSolutionRepository struct {
	mock.Mock
}

func (m *mockSolutionRepository) CreateIfAbsent(ctx context.Context, solution *models.Solution) (bool, error) {
	args := m.Called(ctx, solution)
	return args.Bool(0), args.Error(1)
}

func (m *mockSolutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Solution), args.Error(1)
}

func (m *mockSolutionRepository) GetByContestID(ctx context.Context, contestID uuid.UUID) (*models.Solution, error) {
	args := m.Called(ctx, contestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Solution), args.Error(1)
}

func (m *mockSolutionRepository) AppendLink(ctx context.Context, contestID uuid.UUID, link models.VideoLink) (bool, error) {
	args := m.Called(ctx, contestID, link)
	return args.Bool(0), args.Error(1)
}

func (m *mockSolutionRepository) Vote(ctx context.Context, id uuid.UUID, vote models.VoteType) (*models.Votes, error) {
	args := m.Called(ctx, id, vote)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Votes), args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*ContestEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *ContestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var _ repository.ContestRepository = (*mockContestRepository)(nil)
var _ repository.SolutionRepository = (*mockSolutionRepository)(nil)
