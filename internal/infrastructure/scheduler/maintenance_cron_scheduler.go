package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cronTickerInterval is the interval at which the cron scheduler checks for execution
const cronTickerInterval = 1 * time.Minute

// MaintenanceCronSchedulerConfig holds configuration for the cron-based
// maintenance scheduler
type MaintenanceCronSchedulerConfig struct {
	// Enabled indicates if the cron scheduler is enabled
	Enabled bool
	// CronHour is the hour (0-23) to run the nightly maintenance
	CronHour int
	// CronMinute is the minute (0-59) to run the nightly maintenance
	CronMinute int
	// DailyCronSchedule is the cron expression (parsed to extract hour/minute)
	DailyCronSchedule string
	// JobTimeout is the maximum time a single maintenance job can run
	JobTimeout time.Duration
	// MaxConcurrentJobs is the maximum number of concurrent maintenance jobs
	MaxConcurrentJobs int
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the delay between retries
	RetryDelay time.Duration
}

// DefaultMaintenanceCronSchedulerConfig returns default cron scheduler
// configuration. Defaults to running at 2:00 AM daily, after the trading day
// has fully closed.
func DefaultMaintenanceCronSchedulerConfig() MaintenanceCronSchedulerConfig {
	return MaintenanceCronSchedulerConfig{
		Enabled:           true,
		CronHour:          2, // 2 AM
		CronMinute:        0, // 0 minutes
		DailyCronSchedule: "0 2 * * *",
		JobTimeout:        15 * time.Minute,
		MaxConcurrentJobs: 2,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// ParseCronSchedule parses a cron expression "minute hour * * *" to extract hour and minute
// Returns defaults (2:00) if parsing fails or expression is empty
func ParseCronSchedule(cronExpr string) (hour, minute int, err error) {
	// Default values
	hour = 2
	minute = 0

	if cronExpr == "" {
		return hour, minute, nil
	}

	// Use strings.Fields for simple whitespace splitting
	parts := strings.Fields(cronExpr)

	if len(parts) < 2 {
		return hour, minute, nil
	}

	// Parse minute
	if parts[0] != "*" {
		if val, parseErr := parseIntOrDefault(parts[0], 0); parseErr == nil {
			minute = val
		}
	}

	// Parse hour
	if parts[1] != "*" {
		if val, parseErr := parseIntOrDefault(parts[1], 2); parseErr == nil {
			hour = val
		}
	}

	// Validate ranges
	if minute < 0 || minute > 59 {
		return 2, 0, fmt.Errorf("minute must be 0-59, got %d", minute)
	}
	if hour < 0 || hour > 23 {
		return 2, 0, fmt.Errorf("hour must be 0-23, got %d", hour)
	}

	return hour, minute, nil
}

// parseIntOrDefault parses an int string or returns default
func parseIntOrDefault(s string, defaultVal int) (int, error) {
	if s == "" || s == "*" {
		return defaultVal, nil
	}
	var val int
	for _, c := range s {
		if c < '0' || c > '9' {
			return defaultVal, ErrInvalidConfig
		}
		val = val*10 + int(c-'0')
	}
	return val, nil
}

// MaintenanceJobRecord represents a record of a maintenance job execution
type MaintenanceJobRecord struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	JobType     string     `gorm:"column:job_type;size:50;not null"`
	Status      string     `gorm:"column:last_run_status;size:20"`
	Error       string     `gorm:"column:last_error;type:text"`
	StartedAt   *time.Time `gorm:"column:last_run_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (MaintenanceJobRecord) TableName() string {
	return "maintenance_jobs"
}

// MaintenanceJobRepository handles persistence of maintenance job records
type MaintenanceJobRepository struct {
	db *gorm.DB
}

// NewMaintenanceJobRepository creates a new MaintenanceJobRepository
func NewMaintenanceJobRepository(db *gorm.DB) *MaintenanceJobRepository {
	return &MaintenanceJobRepository{db: db}
}

// RecordJobStart records the start of a job execution
func (r *MaintenanceJobRepository) RecordJobStart(ctx context.Context, jobType string) (uuid.UUID, error) {
	now := time.Now()
	record := &MaintenanceJobRecord{
		ID:        uuid.New(),
		JobType:   jobType,
		Status:    string(JobStatusRunning),
		StartedAt: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return uuid.Nil, err
	}
	return record.ID, nil
}

// RecordJobComplete records the completion of a job
func (r *MaintenanceJobRepository) RecordJobComplete(ctx context.Context, jobID uuid.UUID, success bool, errMsg string) error {
	now := time.Now()
	status := string(JobStatusSuccess)
	if !success {
		status = string(JobStatusFailed)
	}
	return r.db.WithContext(ctx).
		Model(&MaintenanceJobRecord{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"last_run_status": status,
			"last_error":      errMsg,
			"completed_at":    now,
			"updated_at":      now,
		}).Error
}

// GetLastJobStatus gets the most recent record for a job type
func (r *MaintenanceJobRepository) GetLastJobStatus(ctx context.Context, jobType string) (*MaintenanceJobRecord, error) {
	var record MaintenanceJobRecord
	if err := r.db.WithContext(ctx).
		Where("job_type = ?", jobType).
		Order("last_run_at DESC").
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// MaintenanceCronScheduler implements cron-based scheduling for the nightly
// stock maintenance jobs
type MaintenanceCronScheduler struct {
	config    MaintenanceCronSchedulerConfig
	executor  JobExecutor
	jobRepo   *MaintenanceJobRepository
	logger    *zap.Logger
	scheduler *Scheduler

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Last execution tracking
	lastRunAt *time.Time
	nextRunAt *time.Time
}

// NewMaintenanceCronScheduler creates a new cron-based maintenance scheduler.
// jobRepo may be nil, in which case runs are not persisted.
func NewMaintenanceCronScheduler(
	config MaintenanceCronSchedulerConfig,
	executor JobExecutor,
	jobRepo *MaintenanceJobRepository,
	logger *zap.Logger,
) *MaintenanceCronScheduler {
	schedulerConfig := SchedulerConfig{
		Enabled:           config.Enabled,
		MaxConcurrentJobs: config.MaxConcurrentJobs,
		JobTimeout:        config.JobTimeout,
		RetryAttempts:     config.RetryAttempts,
		RetryDelay:        config.RetryDelay,
	}
	scheduler := NewScheduler(schedulerConfig, executor, logger)

	s := &MaintenanceCronScheduler{
		config:    config,
		executor:  executor,
		jobRepo:   jobRepo,
		logger:    logger,
		scheduler: scheduler,
	}
	scheduler.SetJobDoneCallback(s.recordJobOutcome)

	return s
}

// Start starts the cron scheduler
func (s *MaintenanceCronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	// Start the underlying job scheduler
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Calculate next run time
	s.calculateNextRunTime()

	// Start the cron ticker
	s.wg.Add(1)
	go s.cronLoop(ctx)

	s.logger.Info("Maintenance cron scheduler started",
		zap.Int("cron_hour", s.config.CronHour),
		zap.Int("cron_minute", s.config.CronMinute),
		zap.Timep("next_run_at", s.nextRunAt),
	)

	return nil
}

// Stop stops the cron scheduler
func (s *MaintenanceCronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	// Cancel the cron loop
	if s.cancel != nil {
		s.cancel()
	}

	// Wait for cron loop to finish
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Now stop the underlying scheduler
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn("Error stopping underlying scheduler", zap.Error(err))
		}
		s.logger.Info("Maintenance cron scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Maintenance cron scheduler stop timed out")
		return ctx.Err()
	}
}

// cronLoop runs the main cron loop
func (s *MaintenanceCronScheduler) cronLoop(ctx context.Context) {
	defer s.wg.Done()

	// Use a ticker that checks every minute for cron execution
	ticker := time.NewTicker(cronTickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.shouldRun(now) {
				s.runNightlyMaintenance(ctx)
				s.calculateNextRunTime()
			}
		}
	}
}

// shouldRun checks if the cron should run at the given time
func (s *MaintenanceCronScheduler) shouldRun(now time.Time) bool {
	return now.Hour() == s.config.CronHour && now.Minute() == s.config.CronMinute
}

// calculateNextRunTime calculates the next run time
func (s *MaintenanceCronScheduler) calculateNextRunTime() {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.CronHour, s.config.CronMinute, 0, 0, now.Location())

	// If we've already passed today's run time, schedule for tomorrow
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()
}

// runNightlyMaintenance submits the nightly job set: an expiry scan as of
// today and a summary precompute for yesterday
func (s *MaintenanceCronScheduler) runNightlyMaintenance(ctx context.Context) {
	s.logger.Info("Starting nightly stock maintenance")

	now := time.Now()
	s.mu.Lock()
	s.lastRunAt = &now
	s.mu.Unlock()

	today := startOfUTCDay(now)
	yesterday := today.AddDate(0, 0, -1)

	for _, jobType := range AllJobTypes() {
		day := today
		if jobType == JobTypeDailySummary {
			day = yesterday
		}

		// Record job start
		var recordID uuid.UUID
		if s.jobRepo != nil {
			var recordErr error
			recordID, recordErr = s.jobRepo.RecordJobStart(ctx, string(jobType))
			if recordErr != nil {
				s.logger.Warn("Failed to record job start",
					zap.String("job_type", string(jobType)),
					zap.Error(recordErr),
				)
			}
		}

		// Create and submit job
		job := NewJob(jobType, day, s.config.RetryAttempts)
		job.RecordID = recordID
		if err := s.scheduler.SubmitJob(job); err != nil {
			s.logger.Error("Failed to submit maintenance job",
				zap.String("job_type", string(jobType)),
				zap.Error(err),
			)
			// Record failure
			if s.jobRepo != nil && recordID != uuid.Nil {
				_ = s.jobRepo.RecordJobComplete(ctx, recordID, false, err.Error())
			}
			continue
		}

		s.logger.Debug("Scheduled maintenance job",
			zap.String("job_type", string(jobType)),
			zap.Time("day", day),
		)
	}

	s.logger.Info("Nightly maintenance jobs scheduled",
		zap.Int("job_types", len(AllJobTypes())),
	)
}

// recordJobOutcome persists the terminal state of a processed job
func (s *MaintenanceCronScheduler) recordJobOutcome(job *Job) {
	if s.jobRepo == nil || job.RecordID == uuid.Nil {
		return
	}
	success := job.Status == JobStatusSuccess
	if err := s.jobRepo.RecordJobComplete(context.Background(), job.RecordID, success, job.Error); err != nil {
		s.logger.Warn("Failed to record job outcome",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Error(err),
		)
	}
}

// TriggerManualRun triggers a manual run of the nightly maintenance
// Note: Uses background context to avoid premature cancellation when the caller returns
func (s *MaintenanceCronScheduler) TriggerManualRun(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	go s.runNightlyMaintenance(context.Background())
	return nil
}

// TriggerJob submits a single maintenance job for a specific day
func (s *MaintenanceCronScheduler) TriggerJob(ctx context.Context, jobType JobType, day time.Time) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	switch jobType {
	case JobTypeExpiryScan, JobTypeDailySummary:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidJobType, jobType)
	}

	return s.scheduler.ScheduleJob(jobType, day)
}

// GetStatus returns the current status of the cron scheduler
func (s *MaintenanceCronScheduler) GetStatus() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"enabled":       s.config.Enabled,
		"is_running":    s.isRunning,
		"cron_hour":     s.config.CronHour,
		"cron_minute":   s.config.CronMinute,
		"cron_schedule": "Daily",
		"last_run_at":   s.lastRunAt,
		"next_run_at":   s.nextRunAt,
		"job_types":     AllJobTypes(),
	}
}

// GetNextRunAt returns when the next scheduled run will occur
func (s *MaintenanceCronScheduler) GetNextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}

// GetLastRunAt returns when the last run occurred
func (s *MaintenanceCronScheduler) GetLastRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}
