package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// DefaultSweepSchedule runs the sweep every fifteen minutes
const DefaultSweepSchedule = "*/15 * * * *"

// Locker guards a sweep run across processes. It reports whether the lock
// was taken and returns a release func when it was.
type Locker func(ctx context.Context) (bool, func(context.Context) error, error)

// RedisLocker takes key with SET NX for at most ttl per run
func RedisLocker(client *redis.Client, key string, ttl time.Duration) Locker {
	return func(ctx context.Context) (bool, func(context.Context) error, error) {
		return postgres.AcquireLock(ctx, client, key, uuid.NewString(), ttl)
	}
}

// Sweeper runs Workflow.SweepExpired on a cron schedule
type Sweeper struct {
	workflow *Workflow
	cron     *cron.Cron
	schedule string
	lock     Locker
	timeout  time.Duration
	logger   *observability.Logger
}

// SweeperOption configures a Sweeper
type SweeperOption func(*Sweeper)

// WithLocker makes each run skip when another process holds the lock
func WithLocker(l Locker) SweeperOption {
	return func(s *Sweeper) { s.lock = l }
}

// WithSweepTimeout bounds a single run
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSweepLogger sets the logger
func WithSweepLogger(l *observability.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = observability.OrNop(l) }
}

// NewSweeper schedules sweeps of w. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(w *Workflow, schedule string, opts ...SweeperOption) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s := &Sweeper{
		workflow: w,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		schedule: schedule,
		timeout:  time.Minute,
		logger:   observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(s.logger, "invitation sweep")
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithError(err).Error("invitation sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule invitation sweep %q: %w", schedule, err)
	}
	return s, nil
}

// Schedule returns the cron expression
func (s *Sweeper) Schedule() string {
	return s.schedule
}

// RunOnce performs one sweep now. It returns 0 without sweeping when the
// lock is held elsewhere.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.lock != nil {
		ok, release, err := s.lock(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug("invitation sweep skipped: lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	return s.workflow.SweepExpired(ctx)
}

// Start begins running on schedule
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("invitation sweeper started")
}

// Stop halts scheduling and waits for a running sweep or ctx, whichever
// ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
