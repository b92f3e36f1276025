package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidJobType is returned for unknown maintenance job types
	ErrInvalidJobType = errors.New("invalid maintenance job type")

	// ErrSummaryComputationFailed is returned when no daily summary could be computed
	ErrSummaryComputationFailed = errors.New("daily summary computation failed")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
