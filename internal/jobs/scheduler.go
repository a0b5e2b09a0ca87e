package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"taskhub/internal/tasks"
)

const DefaultCleanupSchedule = "0 0 0 * * *"

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

// Scheduler enqueues periodic maintenance on the task stream. The worker does
// the actual work.
type Scheduler struct {
	cron     *cron.Cron
	queue    Enqueuer
	schedule string
	log      zerolog.Logger
}

func NewScheduler(queue Enqueuer, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    queue,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueCleanup); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := s.queue.Enqueue(ctx, tasks.TypeCleanup, tasks.CleanupPayload{})
	if err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
		return
	}
	s.log.Info().Str("message_id", id).Msg("cleanup enqueued")
}
