package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"jira-sync/jira"
)

const recentFailureLimit = 20

// Task is one unit of background work.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// TaskFailure describes a task that returned an error or panicked.
type TaskFailure struct {
	TaskID   string    `json:"taskId"`
	Name     string    `json:"name"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// QueueStatus is a point-in-time view of the queue.
type QueueStatus struct {
	Workers        int           `json:"workers"`
	Pending        int           `json:"pending"`
	InFlight       []string      `json:"inFlight"`
	Completed      int64         `json:"completed"`
	Failed         int64         `json:"failed"`
	RecentFailures []TaskFailure `json:"recentFailures"`
}

// TaskQueue runs submitted tasks on at most workers goroutines. Failures are
// published on Failures() and kept in a short history for Status().
type TaskQueue struct {
	workers  int
	tasks    chan Task
	sem      *semaphore.Weighted
	failures chan TaskFailure

	mu        sync.Mutex
	inFlight  map[string]string
	recent    []TaskFailure
	completed int64
	failed    int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTaskQueue(workers, size int) *TaskQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		workers:  workers,
		tasks:    make(chan Task, size),
		sem:      semaphore.NewWeighted(int64(workers)),
		failures: make(chan TaskFailure, recentFailureLimit),
		inFlight: make(map[string]string),
	}
}

// Start launches the dispatcher. Tasks submitted before Start wait in the buffer.
func (q *TaskQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.dispatch(ctx)
	log.Printf("task queue started: workers=%d capacity=%d", q.workers, cap(q.tasks))
}

// Stop cancels the dispatcher and waits for running tasks or ctx expiry.
// Buffered tasks that never started are dropped.
func (q *TaskQueue) Stop(ctx context.Context) error {
	if q.cancel == nil {
		return nil
	}
	q.cancel()
	<-q.done

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		log.Printf("task queue stopped: dropped=%d", len(q.tasks))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

// Submit enqueues t without blocking. A full buffer yields QUEUE_FULL.
func (q *TaskQueue) Submit(t Task) error {
	select {
	case q.tasks <- t:
		return nil
	default:
		return jira.Errorf(jira.CodeQueueFull, "task queue is full (%d pending)", cap(q.tasks))
	}
}

// Failures publishes task failures. When nobody reads, the oldest undelivered
// failures are dropped; Status still counts them.
func (q *TaskQueue) Failures() <-chan TaskFailure {
	return q.failures
}

func (q *TaskQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	inFlight := make([]string, 0, len(q.inFlight))
	for id := range q.inFlight {
		inFlight = append(inFlight, id)
	}
	return QueueStatus{
		Workers:        q.workers,
		Pending:        len(q.tasks),
		InFlight:       inFlight,
		Completed:      q.completed,
		Failed:         q.failed,
		RecentFailures: append([]TaskFailure(nil), q.recent...),
	}
}

func (q *TaskQueue) dispatch(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			if err := q.sem.Acquire(ctx, 1); err != nil {
				return
			}
			q.wg.Add(1)
			go q.run(ctx, t)
		}
	}
}

func (q *TaskQueue) run(ctx context.Context, t Task) {
	defer q.wg.Done()
	defer q.sem.Release(1)

	q.mu.Lock()
	q.inFlight[t.ID] = t.Name
	q.mu.Unlock()

	err := runSafely(ctx, t)

	q.mu.Lock()
	delete(q.inFlight, t.ID)
	if err == nil {
		q.completed++
		q.mu.Unlock()
		return
	}
	q.failed++
	failure := TaskFailure{TaskID: t.ID, Name: t.Name, Error: err.Error(), FailedAt: time.Now()}
	q.recent = append(q.recent, failure)
	if len(q.recent) > recentFailureLimit {
		q.recent = q.recent[len(q.recent)-recentFailureLimit:]
	}
	q.mu.Unlock()

	log.Printf("task failed: task=%s name=%s error=%v", t.ID, t.Name, err)
	q.publish(failure)
}

func (q *TaskQueue) publish(f TaskFailure) {
	for {
		select {
		case q.failures <- f:
			return
		default:
		}
		// drop the oldest to make room
		select {
		case <-q.failures:
		default:
		}
	}
}

func runSafely(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Run(ctx)
}
