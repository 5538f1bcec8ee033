package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type JobType string

const (
	// JobTypeDueReminder notifies a user that a task's due date is close.
	JobTypeDueReminder JobType = "due_reminder"
	// JobTypeCleanup prunes orphaned avatar files and stale cache entries.
	JobTypeCleanup JobType = "cleanup"
)

const (
	ReminderQueue = "reminders"
	DefaultQueue  = "default"
	deadQueue     = "dead_queue"
	retryQueue    = "retry_queue"

	// scheduledSet holds jobs whose ProcessAt lies in the future, scored by
	// their due time in unix milliseconds. They never touch the live lists
	// until due, so BLPop is not woken by jobs it cannot run yet.
	scheduledSet = "scheduled_jobs"
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// Worker drains Redis list queues with a pool of goroutines. A scheduler
// goroutine promotes due jobs from the scheduled set onto their lists;
// failed jobs retry with exponential backoff before landing in the dead
// queue.
type Worker struct {
	client        *redis.Client
	log           *logrus.Logger
	handlers      map[JobType]JobHandler
	queues        []string
	schedInterval time.Duration
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient *redis.Client
	Logger      *logrus.Logger
	Queues      []string
	// SchedulerInterval is how often the scheduled set is polled for due
	// jobs. Defaults to one second.
	SchedulerInterval time.Duration
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	queues := config.Queues
	if len(queues) == 0 {
		queues = []string{ReminderQueue, DefaultQueue}
	}
	// Retried jobs land on their own list; it is always polled last.
	queues = append(queues, retryQueue)

	schedInterval := config.SchedulerInterval
	if schedInterval <= 0 {
		schedInterval = time.Second
	}

	return &Worker{
		client:        config.RedisClient,
		log:           log,
		handlers:      make(map[JobType]JobHandler),
		queues:        queues,
		schedInterval: schedInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	w.log.WithField("concurrency", concurrency).Info("starting worker")

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}

	w.wg.Add(1)
	go w.schedulerLoop()
}

func (w *Worker) Stop() {
	w.log.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(); err != nil {
				w.log.WithError(err).Error("job processing failed")
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) processNextJob() error {
	result, err := w.client.BLPop(w.ctx, 5*time.Second, w.queues...).Result()
	if err != nil {
		if err == redis.Nil || w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	jobData := result[1]

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if time.Now().Before(job.ProcessAt) {
		job.Queue = queue
		return w.park(&job)
	}

	return w.executeJob(&job)
}

// schedulerLoop moves due jobs from the scheduled set onto their lists.
func (w *Worker) schedulerLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.schedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.promoteDueJobs()
		}
	}
}

func (w *Worker) promoteDueJobs() {
	ctx, cancel := context.WithTimeout(w.ctx, 5*time.Second)
	defer cancel()

	members, err := w.client.ZRangeByScore(ctx, scheduledSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if w.ctx.Err() == nil {
			w.log.WithError(err).Error("failed to read scheduled jobs")
		}
		return
	}

	for _, member := range members {
		queue := DefaultQueue
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err == nil && job.Queue != "" {
			queue = job.Queue
		}

		// ZRem before RPush: whichever worker wins the removal owns the
		// promotion, so a job is never duplicated across workers.
		removed, err := w.client.ZRem(ctx, scheduledSet, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := w.client.RPush(ctx, queue, member).Err(); err != nil {
			w.log.WithError(err).Error("failed to promote scheduled job")
		}
	}
}

func (w *Worker) park(job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.ZAdd(w.ctx, scheduledSet, redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: jobData,
	}).Err()
}

func (w *Worker) executeJob(job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	log := w.log.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type})
	log.Debug("processing job")

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	err := handler(ctx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.WithError(err).WithField("attempt", job.Attempts).Warn("job failed, retrying")
			return w.retryJob(job)
		}

		log.WithError(err).Error("job failed permanently")
		return w.moveToDeadQueue(job, err)
	}

	log.Debug("job completed")
	return nil
}

func (w *Worker) retryJob(job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Minute
	job.ProcessAt = time.Now().Add(delay)
	job.Queue = retryQueue

	return w.park(job)
}

func (w *Worker) moveToDeadQueue(job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(w.ctx, deadQueue, deadJobData).Err()
}

// JobQueue is the producer side, used by the task handlers to schedule
// reminder jobs.
type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(queue string, jobType JobType, payload map[string]interface{}) error {
	return q.EnqueueAt(queue, jobType, payload, time.Now())
}

// EnqueueAt schedules a job for processAt. Future jobs go to the scheduled
// set and only reach the live queue once due; anything else is pushed
// directly.
func (q *JobQueue) EnqueueAt(queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) error {
	job := &Job{
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		Type:      jobType,
		Queue:     queue,
		Payload:   payload,
		Attempts:  0,
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if processAt.After(time.Now()) {
		return q.client.ZAdd(ctx, scheduledSet, redis.Z{
			Score:  float64(processAt.UnixMilli()),
			Member: jobData,
		}).Err()
	}
	return q.client.RPush(ctx, queue, jobData).Err()
}

func (q *JobQueue) QueueSize(queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

// ScheduledSize counts jobs waiting in the scheduled set.
func (q *JobQueue) ScheduledSize() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return q.client.ZCard(ctx, scheduledSet).Result()
}
