// Package scheduler runs the periodic refresh jobs of the worker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
)

// Job names.
const (
	JobRefreshContests = "refresh_contests"
	JobSyncSolutions   = "sync_solutions"
)

const defaultInterval = 10 * time.Minute

var (
	// ErrUnknownJob is returned by RunNow for a name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned by RunNow while the job is already executing.
	ErrJobRunning = errors.New("job already running")
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

type entry struct {
	job Job
	mu  sync.Mutex
}

// Scheduler owns the periodic jobs. A job never overlaps with itself: a tick
// that arrives while the previous run is still going is rescheduled.
type Scheduler struct {
	sched    gocron.Scheduler
	interval time.Duration
	onStart  bool
	jobs     map[string]*entry
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
}

func New(cfg config.SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	sched, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sched:    sched,
		interval: interval,
		onStart:  cfg.RunOnStart,
		jobs:     make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}, nil
}

// Register adds a job that runs every interval, and once immediately when
// the scheduler starts if run-on-start is enabled.
func (s *Scheduler) Register(name string, job Job) error {
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	e := &entry{job: job}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithPanic(func(_ uuid.UUID, jobName string, recoverData any) {
				metrics.JobFailures.WithLabelValues(jobName).Inc()
				s.logger.Error("Job panicked",
					zap.String("job", jobName),
					zap.Any("panic", recoverData),
				)
			}),
		),
	}
	if s.onStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if err := s.run(s.ctx, name, e); errors.Is(err, ErrJobRunning) {
				s.logger.Warn("Skipping tick, job still running", zap.String("job", name))
			}
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = e
	return nil
}

// Start begins running the registered jobs.
func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Bool("run_on_start", s.onStart),
		zap.Int("jobs", len(s.jobs)),
	)
}

// RunNow runs a registered job synchronously on the caller's context.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, e)
}

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, e *entry) error {
	if !e.mu.TryLock() {
		return ErrJobRunning
	}
	defer e.mu.Unlock()

	start := time.Now()
	err := e.job(ctx)
	metrics.ObserveSince(metrics.JobDuration.WithLabelValues(name), start)

	if err != nil {
		metrics.JobFailures.WithLabelValues(name).Inc()
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("Job completed",
		zap.String("job", name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
