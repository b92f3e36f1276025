package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/infrastructure/logger"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobType represents the kind of maintenance work a job performs
type JobType string

const (
	// JobTypeExpiryScan walks active batches and reports upcoming and
	// overdue expiry dates
	JobTypeExpiryScan JobType = "EXPIRY_SCAN"
	// JobTypeDailySummary precomputes per-product movement summaries for a
	// finished day and re-warms valuation snapshots
	JobTypeDailySummary JobType = "DAILY_SUMMARY"
)

// AllJobTypes returns every maintenance job type in submission order
func AllJobTypes() []JobType {
	return []JobType{
		JobTypeExpiryScan,
		JobTypeDailySummary,
	}
}

// Job represents one scheduled maintenance run
type Job struct {
	ID          uuid.UUID
	Type        JobType
	Day         time.Time // UTC day the job covers
	RecordID    uuid.UUID // persistence record, Nil when the run is not tracked
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a new job instance
func NewJob(jobType JobType, day time.Time, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Day:        day,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor is the interface for executing maintenance jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 2,
		JobTimeout:        15 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// Scheduler manages scheduled maintenance jobs
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Called after a job reaches a terminal state (optional)
	onJobDone func(job *Job)
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, 100),
	}
}

// SetJobDoneCallback sets the callback invoked once a job completes or
// exhausts its retries. Jobs rescheduled for retry do not trigger it.
func (s *Scheduler) SetJobDoneCallback(cb func(job *Job)) {
	s.onJobDone = cb
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Start worker pool
	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Maintenance scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	// Close job channel
	close(s.jobs)

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Maintenance scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Maintenance scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job, retrying in place until the job
// succeeds, exhausts its retries, or the scheduler shuts down. The worker
// holds the job across retry waits so a struggling job never crowds the
// queue.
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	// The run ID rides the context so queries traced during the run carry it
	runCtx, jobLog := logger.WithJobRun(ctx, s.logger, job.ID.String())
	jobLog = jobLog.With(
		zap.Int("worker_id", workerID),
		zap.String("job_type", string(job.Type)),
	)

	for {
		// Wait out the retry delay (for retries)
		if job.NextRetryAt != nil && time.Now().Before(*job.NextRetryAt) {
			select {
			case <-runCtx.Done():
				return
			case <-time.After(time.Until(*job.NextRetryAt)):
			}
		}

		job.Start()
		jobLog.Info("Processing job")

		execCtx, cancel := context.WithTimeout(runCtx, s.config.JobTimeout)
		err := s.executor.Execute(execCtx, job)
		cancel()

		if err != nil {
			job.Fail(err.Error())
			jobLog.Error("Job failed", zap.Error(err))

			if job.ShouldRetry() {
				job.ScheduleRetry(s.config.RetryDelay)
				jobLog.Info("Job scheduled for retry",
					zap.Int("retry_count", job.RetryCount),
					zap.Int("max_retries", job.MaxRetries),
				)
				continue
			}

			s.notifyJobDone(job)
			return
		}

		job.Complete()
		jobLog.Info("Job completed successfully")
		s.notifyJobDone(job)
		return
	}
}

func (s *Scheduler) notifyJobDone(job *Job) {
	if s.onJobDone != nil {
		s.onJobDone(job)
	}
}

// ScheduleDailyMaintenance submits the full nightly job set: an expiry scan
// as of today and a summary precompute for yesterday
func (s *Scheduler) ScheduleDailyMaintenance() error {
	today := startOfUTCDay(time.Now())
	yesterday := today.AddDate(0, 0, -1)

	for _, jobType := range AllJobTypes() {
		day := today
		if jobType == JobTypeDailySummary {
			day = yesterday
		}
		job := NewJob(jobType, day, s.config.RetryAttempts)
		if err := s.SubmitJob(job); err != nil {
			return err
		}
	}

	return nil
}

// ScheduleJob schedules a single maintenance job for a specific day
func (s *Scheduler) ScheduleJob(jobType JobType, day time.Time) error {
	job := NewJob(jobType, startOfUTCDay(day), s.config.RetryAttempts)
	return s.SubmitJob(job)
}

// startOfUTCDay truncates a time to midnight of its UTC day
func startOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
