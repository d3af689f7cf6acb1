package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"jira-sync/jira"
	"jira-sync/repository"
)

const sweepBatchSize = 100

// FailedLinkRetrier re-runs sync for FAILED links. *SyncEngine satisfies it.
type FailedLinkRetrier interface {
	RetryFailed(ctx context.Context, limit int) (*SyncReport, error)
}

// Sweeper periodically re-dispatches webhook events that were never
// processed (queue full, crash, shutdown) and retries FAILED links.
type Sweeper struct {
	scheduler  *gocron.Scheduler
	events     repository.WebhookEventRepository
	queue      *TaskQueue
	processor  *WebhookProcessor
	retrier    FailedLinkRetrier
	staleAfter time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewSweeper(
	events repository.WebhookEventRepository,
	queue *TaskQueue,
	processor *WebhookProcessor,
	retrier FailedLinkRetrier,
	staleAfter time.Duration,
) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		scheduler:  gocron.NewScheduler(time.UTC),
		events:     events,
		queue:      queue,
		processor:  processor,
		retrier:    retrier,
		staleAfter: staleAfter,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers both jobs on the cron schedule and starts the scheduler.
func (s *Sweeper) Start(schedule string) error {
	jobs := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"stale-webhook-events", func(ctx context.Context) error {
			_, err := s.SweepStaleEvents(ctx)
			return err
		}},
		{"retry-failed-links", s.RetryFailedLinks},
	}

	for _, j := range jobs {
		j := j
		job, err := s.scheduler.Cron(schedule).SingletonMode().Do(func() {
			if err := j.run(s.ctx); err != nil {
				log.Printf("sweeper job failed: job=%s error=%v", j.name, err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling %s with %q: %w", j.name, schedule, err)
		}
		job.Tag(j.name)
	}

	s.scheduler.StartAsync()
	log.Printf("sweeper started: schedule=%q stale_after=%s", schedule, s.staleAfter)
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
	s.cancel()
	log.Printf("sweeper stopped")
}

// SweepStaleEvents resubmits unprocessed events older than staleAfter and
// returns how many were queued.
func (s *Sweeper) SweepStaleEvents(ctx context.Context) (int, error) {
	events, err := s.events.ListUnprocessedBefore(ctx, time.Now().Add(-s.staleAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, e := range events {
		if err := s.queue.Submit(s.processor.Task(e.ID)); err != nil {
			if jira.IsCode(err, jira.CodeQueueFull) {
				log.Printf("stale event sweep paused, queue full: queued=%d remaining=%d", queued, len(events)-queued)
				break
			}
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		log.Printf("stale webhook events requeued: count=%d", queued)
	}
	return queued, nil
}

func (s *Sweeper) RetryFailedLinks(ctx context.Context) error {
	_, err := s.retrier.RetryFailed(ctx, sweepBatchSize)
	return err
}
